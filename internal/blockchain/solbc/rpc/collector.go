// internal/blockchain/solbc/rpc/collector.go
package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	nodeRequestsDesc = prometheus.NewDesc(
		"solana_rpc_node_requests_total",
		"RPC requests per node by result.",
		[]string{"node", "result"}, nil,
	)
	nodeLatencyDesc = prometheus.NewDesc(
		"solana_rpc_node_latency_seconds",
		"Smoothed request latency per node.",
		[]string{"node"}, nil,
	)
	nodeActiveDesc = prometheus.NewDesc(
		"solana_rpc_node_active",
		"1 if the node is in rotation.",
		[]string{"node"}, nil,
	)
)

// NodeCollector отдает счетчики узлов пула в prometheus на каждом scrape.
type NodeCollector struct {
	nodes []*NodeClient
}

// Collector возвращает коллектор метрик узлов пула.
func (c *RPCClient) Collector() *NodeCollector {
	return &NodeCollector{nodes: c.nodes}
}

func (nc *NodeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nodeRequestsDesc
	ch <- nodeLatencyDesc
	ch <- nodeActiveDesc
}

func (nc *NodeCollector) Collect(ch chan<- prometheus.Metric) {
	for _, node := range nc.nodes {
		success, failed, latency := node.GetMetrics()
		ch <- prometheus.MustNewConstMetric(nodeRequestsDesc, prometheus.CounterValue, float64(success), node.URL, "success")
		ch <- prometheus.MustNewConstMetric(nodeRequestsDesc, prometheus.CounterValue, float64(failed), node.URL, "error")
		ch <- prometheus.MustNewConstMetric(nodeLatencyDesc, prometheus.GaugeValue, latency.Seconds(), node.URL)

		active := 0.0
		if node.IsActive() {
			active = 1
		}
		ch <- prometheus.MustNewConstMetric(nodeActiveDesc, prometheus.GaugeValue, active, node.URL)
	}
}
