// Package telemetry polls the GPU driver and OS process table and builds
// point-in-time VRAM snapshots.
package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"blackboxd/pkg/types"
)

// DeviceQuerier reads GPU state from the driver. Implementations must honor
// the context deadline; a hung driver degrades the snapshot, never the
// caller.
type DeviceQuerier interface {
	// DeviceMemory returns total/used/free bytes for the first GPU.
	DeviceMemory(ctx context.Context) (total, used, free uint64, err error)
	// ComputeProcesses returns the processes currently holding GPU memory.
	ComputeProcesses(ctx context.Context) ([]types.ProcessMemory, error)
	// DeviceName returns the marketing name of the first GPU.
	DeviceName(ctx context.Context) (string, error)
}

// SMIQuerier queries the driver through nvidia-smi with structured argument
// lists and a bounded timeout per invocation.
type SMIQuerier struct {
	// Binary defaults to "nvidia-smi". Tests may point it at a stub.
	Binary  string
	Timeout time.Duration
}

func NewSMIQuerier() *SMIQuerier {
	return &SMIQuerier{Binary: "nvidia-smi", Timeout: 3 * time.Second}
}

func (q *SMIQuerier) query(ctx context.Context, args ...string) ([][]string, error) {
	bin := q.Binary
	if bin == "" {
		bin = "nvidia-smi"
	}
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w", bin, err)
	}
	var rows [][]string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, fields)
	}
	return rows, nil
}

func (q *SMIQuerier) DeviceMemory(ctx context.Context) (uint64, uint64, uint64, error) {
	rows, err := q.query(ctx,
		"--query-gpu=memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits")
	if err != nil {
		return 0, 0, 0, err
	}
	if len(rows) == 0 || len(rows[0]) < 3 {
		return 0, 0, 0, fmt.Errorf("nvidia-smi: no memory rows")
	}
	total := mibToBytes(parseUint(rows[0][0]))
	used := mibToBytes(parseUint(rows[0][1]))
	free := mibToBytes(parseUint(rows[0][2]))
	return total, used, free, nil
}

func (q *SMIQuerier) ComputeProcesses(ctx context.Context) ([]types.ProcessMemory, error) {
	rows, err := q.query(ctx,
		"--query-compute-apps=pid,process_name,used_memory",
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	procs := make([]types.ProcessMemory, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		used := mibToBytes(parseUint(row[2]))
		procs = append(procs, types.ProcessMemory{
			PID:           int(parseUint(row[0])),
			Name:          row[1],
			UsedBytes:     used,
			ReservedBytes: used,
		})
	}
	return procs, nil
}

func (q *SMIQuerier) DeviceName(ctx context.Context) (string, error) {
	rows, err := q.query(ctx, "--query-gpu=name", "--format=csv,noheader")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", fmt.Errorf("nvidia-smi: no device name")
	}
	return rows[0][0], nil
}

// GPUTypeFromName maps a device name to the coarse GPU type used for engine
// config selection. Unknown devices fall back to T4.
func GPUTypeFromName(name string) string {
	switch {
	case strings.Contains(name, "A100"):
		return "A100"
	case strings.Contains(name, "H100"):
		return "H100"
	case strings.Contains(name, "L40"):
		return "L40"
	default:
		return "T4"
	}
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func mibToBytes(mib uint64) uint64 { return mib * 1024 * 1024 }
