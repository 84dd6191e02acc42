// Package runtime drives the container runtime that hosts vLLM deployments.
// Commands are built as argument lists, never interpolated shell strings.
package runtime

import (
	"context"
	"time"
)

// LaunchSpec describes one container launch.
type LaunchSpec struct {
	ModelID       string
	ContainerName string
	HostPort      int
	// Credential exported to the container as HF_TOKEN.
	Credential string
	// Host path of the engine config mounted read-only into the container.
	ConfigPath string
	Image      string
}

// Container identifies a launched container.
type Container struct {
	ID   string
	Name string
	PID  int
}

// ContainerRuntime abstracts the container engine. The docker CLI
// implementation is the default; tests substitute a fake.
type ContainerRuntime interface {
	// Launch starts a container and returns its identity. The container may
	// still be loading its model when Launch returns; IsRunning reports the
	// engine-level state.
	Launch(ctx context.Context, spec LaunchSpec) (Container, error)
	// Stop stops a container by name or id. Stopping an unknown container is
	// not an error.
	Stop(ctx context.Context, nameOrID string) error
	// Remove deletes a stopped container by name or id.
	Remove(ctx context.Context, nameOrID string) error
	// IsRunning reports whether the container is up at the engine level.
	IsRunning(ctx context.Context, nameOrID string) (bool, error)
}

const defaultCommandTimeout = 10 * time.Second
