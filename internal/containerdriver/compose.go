package containerdriver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"execengine/internal/logging"
)

// RunCompose runs `docker compose up` in the directory containing
// composeFile, with PROGRAM_ID/EXECUTION_ID exported from env, and
// unconditionally runs `docker compose down` afterward regardless of
// how `up` exited (success, failure, timeout, or cancellation) so no
// compose-managed container outlives the execution (P6).
func (d *DockerDriver) RunCompose(ctx context.Context, composeFile string, env map[string]string) (RunResult, error) {
	dir := filepath.Dir(composeFile)
	envList := append(os.Environ(), flattenEnv(env)...)

	defer func() {
		downCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		downCmd := exec.CommandContext(downCtx, "docker", "compose", "-f", composeFile, "down", "--remove-orphans")
		downCmd.Dir = dir
		downCmd.Env = envList
		if out, err := downCmd.CombinedOutput(); err != nil {
			logging.L().Warn("compose down failed", zap.String("compose_file", composeFile), zap.Error(err), zap.ByteString("output", out))
		}
	}()

	var stdout, stderr bytes.Buffer
	upCmd := exec.CommandContext(ctx, "docker", "compose", "-f", composeFile, "up", "--abort-on-container-exit")
	upCmd.Dir = dir
	upCmd.Env = envList
	upCmd.Stdout = &stdout
	upCmd.Stderr = &stderr

	err := upCmd.Run()
	if ctx.Err() != nil {
		return RunResult{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return RunResult{}, wrap(KindRuntimeInternal, fmt.Errorf("compose up: %w", err))
		}
		return RunResult{ExitCode: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}

	return RunResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
