package vllm

import "fmt"

// probeError signals an unreachable or unhealthy inference server. Non-fatal:
// the health loop counts consecutive failures and retries next tick.
type probeError struct {
	port  int
	cause error
}

func (e probeError) Error() string {
	return fmt.Sprintf("probe failed on port %d: %v", e.port, e.cause)
}

func (e probeError) Unwrap() error { return e.cause }

// IsProbeError reports whether err is a failed health/metrics probe.
func IsProbeError(err error) bool {
	_, ok := err.(probeError)
	return ok
}
