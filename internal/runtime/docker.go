package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultImage is the vLLM OpenAI-compatible server image.
const DefaultImage = "vllm/vllm-openai:latest"

var containerNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ContainerName derives the container name for a model id. One running
// deployment per model id means the name is unique among live containers.
func ContainerName(modelID string) string {
	return "vllm-" + containerNameSanitizer.ReplaceAllString(modelID, "-")
}

// DockerRuntime shells out to the docker CLI. Every invocation runs under a
// bounded context so a wedged daemon cannot stall callers.
type DockerRuntime struct {
	// Binary defaults to "docker". Tests may point it at a stub.
	Binary string
	Log    zerolog.Logger
}

func NewDockerRuntime(log zerolog.Logger) *DockerRuntime {
	return &DockerRuntime{Binary: "docker", Log: log.With().Str("component", "docker").Logger()}
}

func (d *DockerRuntime) bin() string {
	if d.Binary == "" {
		return "docker"
	}
	return d.Binary
}

func (d *DockerRuntime) run(ctx context.Context, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCommandTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, d.bin(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return strings.TrimSpace(stdout.String()), fmt.Errorf("%s %s: %s", d.bin(), args[0], msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// LaunchArgs returns the argument list for a launch, exposed so tests can
// assert on arguments directly instead of parsing strings.
func LaunchArgs(spec LaunchSpec) []string {
	image := spec.Image
	if image == "" {
		image = DefaultImage
	}
	args := []string{
		"run", "-d",
		"--runtime", "nvidia", "--gpus", "all",
		"-p", fmt.Sprintf("0.0.0.0:%d:8000", spec.HostPort),
		"--ipc=host",
		"--name", spec.ContainerName,
	}
	if spec.Credential != "" {
		args = append(args, "--env", "HF_TOKEN="+spec.Credential)
	}
	if spec.ConfigPath != "" {
		args = append(args, "-v", spec.ConfigPath+":/tmp/config.yaml:ro")
	}
	args = append(args, image,
		"--model", spec.ModelID,
		"--host", "0.0.0.0",
		"--trust-remote-code",
	)
	if spec.ConfigPath != "" {
		args = append(args, "--config", "/tmp/config.yaml")
	}
	return args
}

func (d *DockerRuntime) Launch(ctx context.Context, spec LaunchSpec) (Container, error) {
	out, err := d.run(ctx, LaunchArgs(spec)...)
	if err != nil {
		return Container{}, err
	}
	id := parseContainerID(out)
	if id == "" {
		return Container{}, fmt.Errorf("docker run produced no container id: %q", truncate(out, 200))
	}
	c := Container{ID: id, Name: spec.ContainerName}
	if pid, err := d.pid(ctx, id); err == nil {
		c.PID = pid
	} else {
		d.Log.Debug().Err(err).Str("container", id).Msg("pid lookup failed")
	}
	return c, nil
}

func (d *DockerRuntime) Stop(ctx context.Context, nameOrID string) error {
	_, err := d.run(ctx, "stop", nameOrID)
	if err != nil && isNoSuchContainer(err) {
		return nil
	}
	return err
}

func (d *DockerRuntime) Remove(ctx context.Context, nameOrID string) error {
	_, err := d.run(ctx, "rm", "-f", nameOrID)
	if err != nil && isNoSuchContainer(err) {
		return nil
	}
	return err
}

func (d *DockerRuntime) IsRunning(ctx context.Context, nameOrID string) (bool, error) {
	out, err := d.run(ctx, "inspect", "--format", "{{.State.Running}}", nameOrID)
	if err != nil {
		if isNoSuchContainer(err) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(out) == "true", nil
}

func (d *DockerRuntime) pid(ctx context.Context, nameOrID string) (int, error) {
	out, err := d.run(ctx, "inspect", "--format", "{{.State.Pid}}", nameOrID)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("container %s has no pid", nameOrID)
	}
	return pid, nil
}

var hexID = regexp.MustCompile(`^[0-9a-f]{12,64}$`)

// parseContainerID extracts the container id from docker run output. The id
// is the first line that is all hex; warnings can precede it.
func parseContainerID(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if hexID.MatchString(line) {
			return line[:12]
		}
	}
	return ""
}

func isNoSuchContainer(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such container")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
