package containerdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"execengine/internal/logging"

	"go.uber.org/zap"
)

const (
	workspaceMountPath = "/workspace"
	hooksMountPath     = "/actions"
	hookRunnerPath     = "/execengine-hookrunner"
	pullCeiling        = 5 * time.Minute
	defaultPidsLimit   = 128
)

// DockerDriver implements Driver against a real Docker daemon via the
// official client SDK.
type DockerDriver struct {
	cli              *client.Client
	hookRunnerBinary string // host path to the compiled hookrunner binary
	labelKey         string // label attached to every container we create
	labelValue       string
}

// NewDockerDriver constructs a DockerDriver from environment-provided
// connection options (DOCKER_HOST etc, via client.FromEnv).
// hookRunnerBinary is the host filesystem path of the compiled
// cmd/hookrunner binary, bind-mounted read-only into every one-shot
// container so the image itself need not bundle it.
func NewDockerDriver(hookRunnerBinary string) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, wrap(KindDriverUnavailable, err)
	}
	return &DockerDriver{
		cli:              cli,
		hookRunnerBinary: hookRunnerBinary,
		labelKey:         "engine.execution",
		labelValue:       "true",
	}, nil
}

// EnsureImage succeeds if the image is locally present; otherwise it
// attempts a pull bounded by pullCeiling. It only returns an error if
// both the inspect and the pull fail.
func (d *DockerDriver) EnsureImage(ctx context.Context, name string) error {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, name)
	if err == nil {
		return nil
	}

	pullCtx, cancel := context.WithTimeout(ctx, pullCeiling)
	defer cancel()

	rc, pullErr := d.cli.ImagePull(pullCtx, name, imagetypes.PullOptions{})
	if pullErr != nil {
		return wrap(KindImageUnavailable, fmt.Errorf("pull %s: %w (inspect: %v)", name, pullErr, err))
	}
	defer rc.Close()
	if _, copyErr := io.Copy(io.Discard, rc); copyErr != nil {
		return wrap(KindImageUnavailable, fmt.Errorf("read pull stream for %s: %w", name, copyErr))
	}
	return nil
}

// RunOneshot launches, waits on, and removes one container per the
// spec in OneshotSpec. The container's entrypoint is the hookrunner
// binary (bind-mounted at hookRunnerPath), which internally sequences
// act_before, the main program, and act_after.
func (d *DockerDriver) RunOneshot(ctx context.Context, spec OneshotSpec) (RunResult, error) {
	name := fmt.Sprintf("exec-%s-%s", spec.ExecutionID, uuid.NewString()[:8])

	mounts := []mount.Mount{
		{Type: mount.TypeBind, Source: spec.ProgramDir, Target: workspaceMountPath, ReadOnly: true},
	}
	if spec.HooksDir != "" {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: spec.HooksDir, Target: hooksMountPath, ReadOnly: true})
	}
	if d.hookRunnerBinary != "" {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: d.hookRunnerBinary, Target: hookRunnerPath, ReadOnly: true})
	}

	env := make([]string, 0, len(spec.Env)+4)
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"ENGINE_WORKDIR="+workspaceMountPath,
		"ENGINE_MAIN_FILE="+spec.MainFile,
		"ENGINE_STATIC_PARAMS="+spec.StaticParams,
	)
	if spec.HooksDir != "" {
		env = append(env, "ENGINE_HOOKS_DIR="+hooksMountPath)
	}

	resources, err := resourceLimits(spec.MemoryLimit, spec.CPULimit)
	if err != nil {
		return RunResult{}, wrap(KindRuntimeRejected, err)
	}

	hostCfg := &container.HostConfig{
		AutoRemove:  false,
		Mounts:      mounts,
		Resources:   resources,
		NetworkMode: "bridge",
	}

	created, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:      spec.Image,
		WorkingDir: workspaceMountPath,
		Cmd:        []string{hookRunnerPath},
		Env:        env,
		Labels:     map[string]string{d.labelKey: d.labelValue},
	}, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return RunResult{}, classifyCreateError(err)
	}
	containerID := created.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if rmErr := d.cli.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); rmErr != nil {
			logging.L().Warn("container cleanup failed", zap.String("container_id", containerID), zap.Error(rmErr))
		}
	}()

	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return RunResult{}, wrap(KindRuntimeInternal, fmt.Errorf("start container: %w", err))
	}

	waitCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-ctx.Done():
		killCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = d.cli.ContainerKill(killCtx, containerID, "SIGKILL")
		stdout, stderr, _ := d.readLogs(context.Background(), containerID)
		return RunResult{ExitCode: -1, Stdout: stdout, Stderr: stderr}, ctx.Err()
	case werr := <-errCh:
		return RunResult{}, wrap(KindRuntimeInternal, fmt.Errorf("wait container: %w", werr))
	case resp := <-waitCh:
		exitCode = resp.StatusCode
	}

	stdout, stderr, logErr := d.readLogs(context.Background(), containerID)
	if logErr != nil {
		logging.L().Warn("read container logs failed", zap.String("container_id", containerID), zap.Error(logErr))
	}

	return RunResult{ExitCode: int(exitCode), Stdout: stdout, Stderr: stderr}, nil
}

func (d *DockerDriver) readLogs(ctx context.Context, containerID string) (string, string, error) {
	rc, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(&stdout, &stderr, rc)
	return stdout.String(), stderr.String(), err
}

// ListActive returns every running container this driver created.
func (d *DockerDriver) ListActive(ctx context.Context) ([]ActiveContainer, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: false})
	if err != nil {
		return nil, wrap(KindDriverUnavailable, err)
	}
	out := make([]ActiveContainer, 0, len(containers))
	for _, c := range containers {
		if !strings.HasPrefix(strings.TrimPrefix(firstName(c.Names), "/"), "exec-") {
			continue
		}
		out = append(out, ActiveContainer{
			ContainerID: c.ID,
			Image:       c.Image,
			Status:      c.Status,
			Name:        strings.TrimPrefix(firstName(c.Names), "/"),
		})
	}
	return out, nil
}

// LogsForImage returns the captured logs of every active container
// running exactly the given image reference.
func (d *DockerDriver) LogsForImage(ctx context.Context, image string) ([]ImageLogs, error) {
	active, err := d.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ImageLogs, 0)
	for _, c := range active {
		if c.Image != image {
			continue
		}
		stdout, stderr, err := d.readLogs(ctx, c.ContainerID)
		if err != nil {
			logging.L().Warn("logs_for_image read failed", zap.String("container_id", c.ContainerID), zap.Error(err))
			continue
		}
		out = append(out, ImageLogs{ContainerID: c.ContainerID, Stdout: stdout, Stderr: stderr})
	}
	return out, nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func classifyCreateError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "No such image") || strings.Contains(msg, "not found") {
		return wrap(KindImageUnavailable, err)
	}
	if strings.Contains(msg, "invalid") || strings.Contains(msg, "mount") {
		return wrap(KindRuntimeRejected, err)
	}
	return wrap(KindRuntimeInternal, err)
}

func resourceLimits(memoryLimit, cpuLimit string) (container.Resources, error) {
	var res container.Resources
	if memoryLimit != "" {
		bytes, err := parseMemory(memoryLimit)
		if err != nil {
			return res, fmt.Errorf("parse memory_limit %q: %w", memoryLimit, err)
		}
		res.Memory = bytes
		res.MemorySwap = bytes
	}
	if cpuLimit != "" {
		cores, err := strconv.ParseFloat(cpuLimit, 64)
		if err != nil {
			return res, fmt.Errorf("parse cpu_limit %q: %w", cpuLimit, err)
		}
		res.NanoCPUs = int64(cores * 1_000_000_000)
	}
	pids := int64(defaultPidsLimit)
	res.PidsLimit = &pids
	return res, nil
}

// parseMemory accepts the catalog's suffixed forms ("1g", "512m",
// "256k") and plain byte counts.
func parseMemory(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, errors.New("empty memory limit")
	}
	multiplier := int64(1)
	numeric := s
	switch {
	case strings.HasSuffix(s, "g"):
		multiplier = 1 << 30
		numeric = strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		multiplier = 1 << 20
		numeric = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "k"):
		multiplier = 1 << 10
		numeric = strings.TrimSuffix(s, "k")
	}
	value, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, err
	}
	return int64(value * float64(multiplier)), nil
}
