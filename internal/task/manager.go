package task

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Manager loads and parses batch plans.
type Manager struct {
	logger *zap.Logger
}

// NewManager constructs a Manager with the given logger.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger.Named("task-manager")}
}

// LoadPlan reads a plan from YAML file
func (m *Manager) LoadPlan(path string) (*Plan, error) {
	if filepath.IsAbs(path) {
		m.logger.Debug("Using absolute path for plan file", zap.String("path", path))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return m.ParsePlan(data)
}

// ParsePlan decodes and validates a plan document.
func (m *Manager) ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	empty := 0
	for _, g := range plan.Groups {
		if len(g.Transfers) == 0 && g.Memo == "" {
			empty++
		}
	}
	if empty > 0 {
		m.logger.Warn("Plan contains empty groups, they will be skipped",
			zap.String("plan", plan.Name),
			zap.Int("empty", empty))
	}

	m.logger.Info("Loaded plan",
		zap.String("plan", plan.Name),
		zap.Int("groups", len(plan.Groups)))
	return &plan, nil
}
