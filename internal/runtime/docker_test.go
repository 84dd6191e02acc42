package runtime

import (
	"strings"
	"testing"
)

func TestContainerName(t *testing.T) {
	cases := map[string]string{
		"TinyLlama":                          "vllm-TinyLlama",
		"TinyLlama/TinyLlama-1.1B-Chat-v1.0": "vllm-TinyLlama-TinyLlama-1-1B-Chat-v1-0",
		"org/model name":                     "vllm-org-model-name",
	}
	for in, want := range cases {
		if got := ContainerName(in); got != want {
			t.Fatalf("ContainerName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestLaunchArgs(t *testing.T) {
	args := LaunchArgs(LaunchSpec{
		ModelID:       "org/model",
		ContainerName: "vllm-org-model",
		HostPort:      8003,
		Credential:    "hf_secret",
		ConfigPath:    "/etc/blackboxd/T4.yaml",
	})
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"run -d",
		"--runtime nvidia",
		"--gpus all",
		"-p 0.0.0.0:8003:8000",
		"--name vllm-org-model",
		"--env HF_TOKEN=hf_secret",
		"-v /etc/blackboxd/T4.yaml:/tmp/config.yaml:ro",
		"--model org/model",
		"--config /tmp/config.yaml",
		"--trust-remote-code",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("launch args missing %q in %q", want, joined)
		}
	}
	if args[len(args)-2] != "--config" {
		t.Fatalf("expected --config flag at tail, got %v", args[len(args)-4:])
	}
}

func TestLaunchArgsNoCredentialNoConfig(t *testing.T) {
	args := LaunchArgs(LaunchSpec{ModelID: "m", ContainerName: "vllm-m", HostPort: 8000})
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "HF_TOKEN") {
		t.Fatalf("credential leaked into args: %q", joined)
	}
	if strings.Contains(joined, "--config") {
		t.Fatalf("unexpected config mount: %q", joined)
	}
	if !strings.Contains(joined, DefaultImage) {
		t.Fatalf("default image missing: %q", joined)
	}
}

func TestParseContainerID(t *testing.T) {
	out := "WARNING: Published ports are discarded\n" +
		"4a1f0e9b2c3d4e5f66778899aabbccddeeff00112233445566778899aabbccdd\n"
	if got := parseContainerID(out); got != "4a1f0e9b2c3d" {
		t.Fatalf("parseContainerID=%q", got)
	}
	if got := parseContainerID("Error: something went wrong"); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
