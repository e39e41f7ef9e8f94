// Package containerdriver hides the container runtime behind a
// narrow, testable interface: image presence/pull, one-shot
// container runs, compose up/down, and read-only listing/log
// queries.
package containerdriver

import (
	"context"
	"fmt"
)

// Kind classifies a driver failure so callers can react without
// string-matching error text.
type Kind string

const (
	// KindImageUnavailable means the image could not be found locally
	// and a pull also failed.
	KindImageUnavailable Kind = "image_unavailable"
	// KindDriverUnavailable means the runtime socket/daemon itself
	// could not be reached.
	KindDriverUnavailable Kind = "driver_unavailable"
	// KindRuntimeRejected means the runtime refused the request (bad
	// spec, invalid mount, etc).
	KindRuntimeRejected Kind = "runtime_rejected"
	// KindRuntimeInternal means the runtime accepted the request but
	// failed during execution for reasons outside the caller's input.
	KindRuntimeInternal Kind = "runtime_internal"
)

// Error wraps a driver failure with its Kind.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("containerdriver: %s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: cause}
}

// OneshotSpec describes one run_oneshot invocation.
type OneshotSpec struct {
	ExecutionID  string
	ProgramID    string
	Image        string
	ProgramDir   string
	HooksDir     string // empty when the program has no hooks directory
	MainFile     string // resolved filename, relative to ProgramDir
	StaticParams string // catalog-declared argv suffix, shell-quoted; see ENGINE_STATIC_PARAMS
	Env          map[string]string
	MemoryLimit  string // e.g. "1g", empty for no limit
	CPULimit     string // fractional cores, e.g. "0.5", empty for no limit
}

// RunResult is the outcome of a finished container run.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ActiveContainer describes one container the driver currently
// considers active (created by this engine).
type ActiveContainer struct {
	ContainerID string
	Image       string
	Status      string
	Name        string
}

// ImageLogs is one container's captured log streams, returned by
// LogsForImage.
type ImageLogs struct {
	ContainerID string
	Stdout      string
	Stderr      string
}

// Driver is the narrow contract the Executor and reporters depend on.
type Driver interface {
	EnsureImage(ctx context.Context, name string) error
	RunOneshot(ctx context.Context, spec OneshotSpec) (RunResult, error)
	RunCompose(ctx context.Context, composeFile string, env map[string]string) (RunResult, error)
	ListActive(ctx context.Context) ([]ActiveContainer, error)
	LogsForImage(ctx context.Context, image string) ([]ImageLogs, error)
}
