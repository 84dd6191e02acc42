// Package vllm talks to the per-deployment vLLM inference servers: their
// Prometheus metrics exposition and their health endpoint.
package vllm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// EngineMetrics are the cache/occupancy readings scraped from one vLLM
// server. Available is false when the server could not be reached or did not
// expose the expected families yet (model still loading).
type EngineMetrics struct {
	NumGPUBlocks       int
	BlockSizeBytes     uint64
	KVCacheUsage       float64 // 0..1
	PrefixCacheHitRate float64 // 0..100
	RequestsRunning    float64
	RequestsWaiting    float64
	Available          bool
}

// Client scrapes vLLM servers on localhost (or a configured host).
type Client struct {
	Host       string
	HTTPClient *http.Client
}

func NewClient(host string) *Client {
	if host == "" {
		host = "localhost"
	}
	// Timeout is per call via context; the transport-level timeout is a
	// backstop against servers that accept and stall.
	return &Client{Host: host, HTTPClient: &http.Client{Timeout: 5 * time.Second}}
}

// Metrics scrapes and parses the server's exposition text. A scrape failure
// returns a ProbeError; a reachable server missing vLLM families returns
// zero metrics with Available=false and no error.
func (c *Client) Metrics(ctx context.Context, port int) (EngineMetrics, error) {
	var m EngineMetrics
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d/metrics", c.Host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return m, probeError{port: port, cause: err}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return m, probeError{port: port, cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return m, probeError{port: port, cause: fmt.Errorf("metrics returned %d", resp.StatusCode)}
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return m, probeError{port: port, cause: fmt.Errorf("parse exposition: %w", err)}
	}

	if mf, ok := families["vllm:cache_config_info"]; ok {
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				switch lp.GetName() {
				case "num_gpu_blocks":
					if v, err := strconv.Atoi(lp.GetValue()); err == nil {
						m.NumGPUBlocks = v
					}
				case "block_size":
					if v, err := strconv.ParseUint(lp.GetValue(), 10, 64); err == nil {
						m.BlockSizeBytes = v
					}
				}
			}
		}
		m.Available = true
	}
	if v, ok := gaugeValue(families, "vllm:kv_cache_usage_perc"); ok {
		m.KVCacheUsage = clamp01(v)
		m.Available = true
	}
	queries, _ := counterValue(families, "vllm:prefix_cache_queries_total")
	hits, _ := counterValue(families, "vllm:prefix_cache_hits_total")
	if queries > 0 {
		m.PrefixCacheHitRate = 100 * hits / queries
	}
	if v, ok := gaugeValue(families, "vllm:num_requests_running"); ok {
		m.RequestsRunning = v
	}
	if v, ok := gaugeValue(families, "vllm:num_requests_waiting"); ok {
		m.RequestsWaiting = v
	}
	return m, nil
}

// Health probes the server's /health endpoint. Any failure is a ProbeError;
// callers retry on the next tick.
func (c *Client) Health(ctx context.Context, port int) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d/health", c.Host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return probeError{port: port, cause: err}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return probeError{port: port, cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return probeError{port: port, cause: fmt.Errorf("health returned %d", resp.StatusCode)}
	}
	return nil
}

func gaugeValue(families map[string]*dto.MetricFamily, name string) (float64, bool) {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0, false
	}
	metric := mf.GetMetric()[0]
	if g := metric.GetGauge(); g != nil {
		return g.GetValue(), true
	}
	if u := metric.GetUntyped(); u != nil {
		return u.GetValue(), true
	}
	return 0, false
}

func counterValue(families map[string]*dto.MetricFamily, name string) (float64, bool) {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0, false
	}
	metric := mf.GetMetric()[0]
	if c := metric.GetCounter(); c != nil {
		return c.GetValue(), true
	}
	if u := metric.GetUntyped(); u != nil {
		return u.GetValue(), true
	}
	return 0, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
