// Package engineconfig manages the per-GPU-type vLLM engine config files
// that are mounted into deployment containers.
package engineconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultMaxGPUUtilization applies when a config file is missing or does not
// pin gpu-memory-utilization.
const DefaultMaxGPUUtilization = 0.95

// Store resolves engine configs by GPU type and materializes adjusted
// copies for optimization restarts.
type Store struct {
	// Dir holds <GPUType>.yaml files. T4.yaml is the fallback.
	Dir string
	// TmpDir receives rewritten configs; defaults to os.TempDir().
	TmpDir string
}

func NewStore(dir string) *Store { return &Store{Dir: dir} }

// PathFor returns the config path for a GPU type, falling back to T4.yaml.
// An empty string means no config is available and the engine defaults apply.
func (s *Store) PathFor(gpuType string) string {
	if s.Dir == "" {
		return ""
	}
	p := filepath.Join(s.Dir, gpuType+".yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	fallback := filepath.Join(s.Dir, "T4.yaml")
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	return ""
}

// MaxGPUUtilization reads gpu-memory-utilization from a config file,
// accepting the historical underscore spellings too.
func (s *Store) MaxGPUUtilization(path string) float64 {
	doc, err := readConfig(path)
	if err != nil {
		return DefaultMaxGPUUtilization
	}
	for _, key := range []string{"gpu-memory-utilization", "gpu_memory_utilization", "max_gpu_utilization"} {
		if v, ok := doc[key]; ok {
			switch f := v.(type) {
			case float64:
				return f
			case int:
				return float64(f)
			}
		}
	}
	return DefaultMaxGPUUtilization
}

// WriteAdjusted copies the config at base with gpu-memory-utilization set to
// utilization (clamped to [0.10, 0.95]) and returns the new file's path.
// With no base config a minimal config is produced.
func (s *Store) WriteAdjusted(base, containerName string, utilization float64) (string, error) {
	if utilization < 0.10 {
		utilization = 0.10
	}
	if utilization > 0.95 {
		utilization = 0.95
	}

	doc, err := readConfig(base)
	if err != nil {
		doc = map[string]any{}
	}
	delete(doc, "gpu_memory_utilization")
	delete(doc, "max_gpu_utilization")
	doc["gpu-memory-utilization"] = utilization

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal engine config: %w", err)
	}
	dir := s.TmpDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "optimized_"+containerName+".yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("write engine config: %w", err)
	}
	return path, nil
}

func readConfig(path string) (map[string]any, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
