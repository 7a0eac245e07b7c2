// The docker package provides utilities for creating and supervising local
// docker containers. This is used to spawn supporting services, such as the
// engines PostgreSQL database, without polluting the users system with a
// database installation.
package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

var dockerLogger = logger.Get("Docker")

type (
	// ContainerSpec describes a single supporting service container.
	ContainerSpec struct {
		Label string
		Image string
		Env   []string
		Ports nat.PortMap
	}

	Manager interface {
		SpawnContainer(ctx context.Context, spec ContainerSpec) error
		Shutdown(timeout time.Duration)
	}

	manager struct {
		cli        *client.Client
		containers map[string]string
	}
)

func NewManager() (Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to construct docker client: %w", err)
	}

	return &manager{
		cli:        cli,
		containers: make(map[string]string),
	}, nil
}

// SpawnContainer pulls the image for the spec provided and creates and
// starts a container for it. The container label must be unique within this
// manager.
func (m *manager) SpawnContainer(ctx context.Context, spec ContainerSpec) error {
	if _, ok := m.containers[spec.Label]; ok {
		return fmt.Errorf("cannot spawn container %s as label is already in use", spec.Label)
	}

	dockerLogger.Emit(logger.INFO, "Pulling image %s for container %s\n", spec.Image, spec.Label)
	reader, err := m.cli.ImagePull(ctx, spec.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", spec.Image, err)
	}
	// The pull is complete once the response stream is drained.
	io.Copy(io.Discard, reader)
	reader.Close()

	exposed := make(nat.PortSet, len(spec.Ports))
	for port := range spec.Ports {
		exposed[port] = struct{}{}
	}

	created, err := m.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          spec.Env,
			ExposedPorts: exposed,
		},
		&container.HostConfig{PortBindings: spec.Ports},
		nil, nil, spec.Label,
	)
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", spec.Label, err)
	}

	if err := m.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		m.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container %s: %w", spec.Label, err)
	}

	m.containers[spec.Label] = created.ID
	dockerLogger.Emit(logger.SUCCESS, "Container %s is UP!\n", spec.Label)
	return nil
}

// Shutdown stops and removes every container spawned by this manager.
func (m *manager) Shutdown(timeout time.Duration) {
	ctx := context.Background()
	seconds := int(timeout.Seconds())

	for label, id := range m.containers {
		dockerLogger.Emit(logger.STOP, "Closing container %s\n", label)
		if err := m.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
			dockerLogger.Emit(logger.WARNING, "Failed to stop container %s: %v\n", label, err)
		}
		if err := m.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
			dockerLogger.Emit(logger.WARNING, "Failed to remove container %s: %v\n", label, err)
		}

		delete(m.containers, label)
	}
}
