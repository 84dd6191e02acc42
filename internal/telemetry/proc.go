package telemetry

import (
	"os"
	"strconv"
	"strings"
)

// procRoot is swapped by tests to a temp directory.
var procRoot = "/proc"

// processName returns the command name from /proc/<pid>/comm, or "unknown".
func processName(pid int) string {
	b, err := os.ReadFile(procRoot + "/" + strconv.Itoa(pid) + "/comm")
	if err != nil {
		return "unknown"
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return "unknown"
	}
	return name
}

// processState returns the human form of the State: line from
// /proc/<pid>/status, e.g. "running" or "sleeping".
func processState(pid int) string {
	b, err := os.ReadFile(procRoot + "/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return "unknown"
	}
	for _, line := range strings.Split(string(b), "\n") {
		if !strings.HasPrefix(line, "State:") {
			continue
		}
		// Format: "State:\tS (sleeping)"
		v := strings.TrimSpace(strings.TrimPrefix(line, "State:"))
		if open := strings.IndexByte(v, '('); open >= 0 {
			if close := strings.IndexByte(v, ')'); close > open {
				return v[open+1 : close]
			}
		}
		return v
	}
	return "unknown"
}
