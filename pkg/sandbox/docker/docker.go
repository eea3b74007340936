package docker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/nstogner/overseer/pkg/sandbox"
)

const (
	// LabelManager is the label used to identify containers managed by this system.
	LabelManager = "manager"
	// LabelManagerValue is the value of the manager label.
	LabelManagerValue = "overseer"
	// LabelSessionID is the label used to identify which session a container belongs to.
	LabelSessionID = "session-id"
	// SandboxImage is the default sandbox container image.
	SandboxImage = "overseer-sandbox:latest"
	// ReconcileInterval is how often the Run loop checks for drift.
	ReconcileInterval = 10 * time.Second
)

// Manager implements sandbox.Manager using Docker containers. Commands are
// executed with docker exec inside a long-lived per-session container.
type Manager struct {
	client *client.Client
	image  string
}

// Verify interface compliance.
var _ sandbox.Manager = (*Manager)(nil)

// New creates a new Docker sandbox manager.
func New() (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Manager{client: cli, image: SandboxImage}, nil
}

// Run starts a long-running reconciliation loop. It periodically lists
// known sessions and ensures each has a running sandbox container.
// Orphan containers (not matching any known session) are stopped.
// Blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, sessions sandbox.SessionLister) error {
	slog.Info("Sandbox manager reconciliation loop starting")

	// Reconcile immediately on start.
	if err := m.reconcile(ctx, sessions); err != nil {
		slog.Error("Initial reconciliation failed", "error", err)
	}

	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sandbox manager reconciliation loop stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := m.reconcile(ctx, sessions); err != nil {
				slog.Error("Reconciliation failed", "error", err)
			}
		}
	}
}

// reconcile compares running containers to known sessions and reconciles.
func (m *Manager) reconcile(ctx context.Context, sessions sandbox.SessionLister) error {
	ids, err := sessions.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing session IDs: %w", err)
	}

	allContainers, err := m.listAllManagedContainers(ctx)
	if err != nil {
		return fmt.Errorf("listing managed containers: %w", err)
	}

	knownSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		knownSet[id] = true
	}

	// Stop containers for unknown sessions.
	for _, c := range allContainers {
		sessID := c.Labels[LabelSessionID]
		if !knownSet[sessID] {
			slog.Info("Stopping orphaned sandbox", "sessionID", sessID)
			m.stopContainer(ctx, sessID)
		}
	}

	return nil
}

// Ensure creates and starts a sandbox container for the session if one is
// not already running.
func (m *Manager) Ensure(ctx context.Context, sessionID string) error {
	containerName := m.containerName(sessionID)
	c, err := m.client.ContainerInspect(ctx, containerName)
	if err == nil {
		if c.State.Running {
			return nil
		}
		// A stopped container with the right name is restarted in place.
		if err := m.client.ContainerStart(ctx, c.ID, types.ContainerStartOptions{}); err != nil {
			return fmt.Errorf("restarting container: %w", err)
		}
		return nil
	}
	return m.createAndStart(ctx, sessionID)
}

// RunCommand executes a shell command in the session's sandbox via exec.
func (m *Manager) RunCommand(ctx context.Context, sessionID, command string) (*sandbox.Result, error) {
	containerName := m.containerName(sessionID)
	c, err := m.client.ContainerInspect(ctx, containerName)
	if err != nil {
		return nil, fmt.Errorf("sandbox not found for session %s: %w", sessionID, err)
	}
	if !c.State.Running {
		return nil, fmt.Errorf("sandbox exists but not running (state: %s)", c.State.Status)
	}

	execResp, err := m.client.ContainerExecCreate(ctx, c.ID, types.ExecConfig{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating exec: %w", err)
	}

	attach, err := m.client.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("attaching exec: %w", err)
	}
	defer attach.Close()

	// The exec stream multiplexes stdout/stderr; demux into one buffer so
	// output keeps its interleaved order per stream copy.
	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("reading exec output: %w", err)
	}

	inspect, err := m.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("inspecting exec: %w", err)
	}

	return &sandbox.Result{
		Output:   out.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// Status returns the status of the session's sandbox.
func (m *Manager) Status(ctx context.Context, sessionID string) (string, error) {
	containers, err := m.listContainers(ctx, sessionID)
	if err != nil {
		return "unknown", err
	}
	if len(containers) == 0 {
		return "stopped", nil
	}
	return containers[0].State, nil
}

// Close releases the Docker client resources.
func (m *Manager) Close() error {
	return m.client.Close()
}

// --- internal helpers ---

// createAndStart creates a new sandbox container and starts it.
func (m *Manager) createAndStart(ctx context.Context, sessionID string) error {
	// Ensure image exists locally.
	_, _, err := m.client.ImageInspectWithRaw(ctx, m.image)
	if err != nil {
		return fmt.Errorf("sandbox image '%s' not found: %w", m.image, err)
	}

	cfg := &container.Config{
		Image: m.image,
		// Keep the container alive; commands arrive via exec.
		Cmd: []string{"sleep", "infinity"},
		Labels: map[string]string{
			LabelManager:   LabelManagerValue,
			LabelSessionID: sessionID,
		},
	}

	containerName := m.containerName(sessionID)
	resp, err := m.client.ContainerCreate(ctx, cfg, nil, nil, nil, containerName)
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}

	if err := m.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}

	slog.Info("Sandbox started", "sessionID", sessionID, "container", containerName)
	return nil
}

// stopContainer stops and removes a container for the given session.
func (m *Manager) stopContainer(ctx context.Context, sessionID string) {
	containers, err := m.listContainers(ctx, sessionID)
	if err != nil {
		slog.Warn("Failed to list containers for stop", "sessionID", sessionID, "error", err)
		return
	}
	for _, c := range containers {
		timeout := 10
		if err := m.client.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			slog.Warn("Failed to stop container", "id", c.ID, "error", err)
		}
		if err := m.client.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			slog.Warn("Failed to remove container", "id", c.ID, "error", err)
		}
	}
}

func (m *Manager) containerName(sessionID string) string {
	return "overseer-sandbox-" + sessionID
}

func (m *Manager) listContainers(ctx context.Context, sessionID string) ([]types.Container, error) {
	return m.client.ContainerList(ctx, types.ContainerListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManager+"="+LabelManagerValue),
			filters.Arg("label", LabelSessionID+"="+sessionID),
		),
	})
}

func (m *Manager) listAllManagedContainers(ctx context.Context) ([]types.Container, error) {
	return m.client.ContainerList(ctx, types.ContainerListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManager+"="+LabelManagerValue),
		),
	})
}
