package solbc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

// ProgramLogPrefix is the prefix the runtime puts in front of msg!() output.
const ProgramLogPrefix = "Program log: "

// AnchorError represents an error from Anchor framework
type AnchorError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// ErrorAnalyzer provides methods to analyze Solana transaction errors
type ErrorAnalyzer struct {
	logger *zap.Logger
}

// NewErrorAnalyzer creates a new ErrorAnalyzer instance
func NewErrorAnalyzer(logger *zap.Logger) *ErrorAnalyzer {
	return &ErrorAnalyzer{
		logger: logger.Named("error-analyzer"),
	}
}

// LastProgramLog returns the last program-emitted log line with the prefix stripped.
func LastProgramLog(logs []string) (string, bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		if strings.HasPrefix(logs[i], ProgramLogPrefix) {
			return strings.TrimPrefix(logs[i], ProgramLogPrefix), true
		}
	}
	return "", false
}

// AnalyzeRPCError analyzes a jsonrpc.RPCError and extracts detailed information
func (ea *ErrorAnalyzer) AnalyzeRPCError(err error) map[string]interface{} {
	if err == nil {
		return map[string]interface{}{
			"error": "No error provided",
		}
	}

	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return map[string]interface{}{
			"type":    "generic_error",
			"message": err.Error(),
		}
	}

	result := map[string]interface{}{
		"type":    "rpc_error",
		"code":    rpcErr.Code,
		"message": rpcErr.Message,
	}

	if strings.Contains(rpcErr.Message, "Transaction simulation failed") {
		result["simulation_failed"] = true

		if dataMap, ok := rpcErr.Data.(map[string]interface{}); ok {
			if rawLogs, ok := dataMap["logs"].([]interface{}); ok {
				logs := make([]string, 0, len(rawLogs))
				for _, entry := range rawLogs {
					if s, ok := entry.(string); ok {
						logs = append(logs, s)
					}
				}
				result["logs"] = logs

				if anchorErr, ok := ea.FindAnchorError(logs); ok {
					result["anchor_error"] = anchorErr
				}
			}

			if instrErr, ok := dataMap["err"].(map[string]interface{}); ok {
				result["instruction_error"] = instrErr
			}
		}
	}

	return result
}

// FindAnchorError looks for the last "AnchorError occurred" line in logs.
func (ea *ErrorAnalyzer) FindAnchorError(logs []string) (AnchorError, bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		if !strings.Contains(logs[i], "AnchorError") {
			continue
		}
		anchorErr := ParseAnchorErrorLog(logs[i])
		ea.logger.Debug("Anchor error detected",
			zap.Int("code", anchorErr.Code),
			zap.String("name", anchorErr.Name),
			zap.String("message", anchorErr.Msg))
		return anchorErr, true
	}
	return AnchorError{}, false
}

// ParseAnchorErrorLog parses an Anchor error log string
// Example: "Program log: AnchorError occurred. Error Code: InstructionFallbackNotFound. Error Number: 101. Error Message: Fallback functions are not supported."
func ParseAnchorErrorLog(logStr string) AnchorError {
	result := AnchorError{}

	if parts := strings.SplitN(logStr, "Error Number:", 2); len(parts) == 2 {
		numParts := strings.Split(parts[1], ".")
		_, _ = fmt.Sscanf(strings.TrimSpace(numParts[0]), "%d", &result.Code)
	}

	if parts := strings.SplitN(logStr, "Error Code:", 2); len(parts) == 2 {
		nameParts := strings.Split(parts[1], ".")
		result.Name = strings.TrimSpace(nameParts[0])
	}

	if parts := strings.SplitN(logStr, "Error Message:", 2); len(parts) == 2 {
		result.Msg = strings.TrimSuffix(strings.TrimSpace(parts[1]), ".")
	}

	return result
}

// FormatErrorAnalysis formats the error analysis for logging or display
func (ea *ErrorAnalyzer) FormatErrorAnalysis(analysis map[string]interface{}) string {
	jsonBytes, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error formatting analysis: %v", err)
	}
	return string(jsonBytes)
}
