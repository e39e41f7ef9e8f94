// Package executor is the central orchestrator: it resolves a
// request against the catalog, admits it under the concurrency cap,
// records it, and dispatches an asynchronous worker that drives the
// execution through the container runtime to a terminal state.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"execengine/internal/admission"
	"execengine/internal/catalog"
	"execengine/internal/containerdriver"
	"execengine/internal/execstore"
	"execengine/internal/logging"
)

// ExecutionRequest is the transient input to Submit.
type ExecutionRequest struct {
	ProgramID  string
	Parameters map[string]string
}

// Executor wires the Catalog, Admission gate, ExecutionStore, and
// ContainerDriver together into the submit/run pipeline.
type Executor struct {
	catalog   *catalog.Catalog
	admission *admission.Gate
	store     *execstore.Store
	driver    containerdriver.Driver
}

// New returns a ready Executor.
func New(cat *catalog.Catalog, gate *admission.Gate, store *execstore.Store, driver containerdriver.Driver) *Executor {
	return &Executor{catalog: cat, admission: gate, store: store, driver: driver}
}

// Submit performs the synchronous resolve/gate/validate/provision/
// admit/record sequence and, on success, dispatches an asynchronous
// worker before returning the new execution id.
func (e *Executor) Submit(ctx context.Context, req ExecutionRequest) (string, error) {
	program, err := e.catalog.Lookup(req.ProgramID)
	if err != nil {
		return "", newSubmitError(KindNotFound, fmt.Sprintf("program %q not found", req.ProgramID), nil)
	}

	if !program.Enabled {
		return "", newSubmitError(KindDisabled, fmt.Sprintf("program %q is disabled", program.ID), nil)
	}

	settings := e.catalog.Settings()

	var mainFile string
	if program.IsCompose() {
		composePath := program.ComposePath
		if !filepath.IsAbs(composePath) {
			composePath = filepath.Join(program.Path, composePath)
		}
		if _, err := os.Stat(composePath); err != nil {
			return "", newSubmitError(KindMainFileMissing, fmt.Sprintf("compose file %q not found", composePath), nil)
		}
	} else {
		resolved, err := resolveMainFile(program)
		if err != nil {
			return "", newSubmitError(KindMainFileMissing, err.Error(), nil)
		}
		mainFile = resolved

		image := program.Image
		if image == "" {
			image = settings.DefaultImage
		}
		if err := e.driver.EnsureImage(ctx, image); err != nil {
			return "", newSubmitError(KindImageUnavailable, err.Error(), nil)
		}
	}

	reservation, err := e.admission.Reserve()
	if err != nil {
		rejected, _ := err.(admission.Rejected)
		return "", newSubmitError(KindOverloaded, err.Error(), map[string]any{
			"limit":   rejected.Limit,
			"current": rejected.Current,
		})
	}

	executionID := uuid.NewString()
	record := execstore.Execution{
		ExecutionID: executionID,
		ProgramID:   program.ID,
		Status:      execstore.StatusQueued,
		StartTime:   time.Now(),
	}
	if err := e.store.Create(record); err != nil {
		reservation.Release()
		return "", newSubmitError(KindRuntimeFailure, err.Error(), nil)
	}

	go e.runWorker(program, settings, req, executionID, mainFile, reservation)

	return executionID, nil
}

// resolveMainFile applies P4: the declared main_file wins if present,
// otherwise the first of the fixed fallback list that exists wins.
func resolveMainFile(program catalog.Program) (string, error) {
	candidates := append([]string{program.MainFile}, catalog.FallbackMainFiles...)
	seen := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, err := os.Stat(filepath.Join(program.Path, name)); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no main file found in %s (tried %s)", program.Path, strings.Join(candidates, ", "))
}

func (e *Executor) runWorker(program catalog.Program, settings catalog.Settings, req ExecutionRequest, executionID, mainFile string, reservation *admission.Reservation) {
	defer reservation.Release()

	logger := logging.WithContext(zap.String("execution_id", executionID), zap.String("program_id", program.ID))

	if err := e.store.Update(executionID, func(rec *execstore.Execution) {
		rec.Status = execstore.StatusRunning
	}); err != nil {
		logger.Error("failed to transition to running", zap.Error(err))
		return
	}

	timeout := time.Duration(settings.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	env := buildEnv(program, executionID, req.Parameters)

	var result containerdriver.RunResult
	var runErr error
	if program.IsCompose() {
		composePath := program.ComposePath
		if !filepath.IsAbs(composePath) {
			composePath = filepath.Join(program.Path, composePath)
		}
		result, runErr = e.driver.RunCompose(ctx, composePath, env)
	} else {
		image := program.Image
		if image == "" {
			image = settings.DefaultImage
		}
		hooksDir := filepath.Join(program.Path, "actions")
		if _, statErr := os.Stat(hooksDir); statErr != nil {
			hooksDir = ""
		}
		result, runErr = e.driver.RunOneshot(ctx, containerdriver.OneshotSpec{
			ExecutionID:  executionID,
			ProgramID:    program.ID,
			Image:        image,
			ProgramDir:   program.Path,
			HooksDir:     hooksDir,
			MainFile:     mainFile,
			StaticParams: program.Parameters,
			Env:          env,
			MemoryLimit:  settings.MemoryLimit,
			CPULimit:     settings.CPULimit,
		})
	}

	finish := func(mutate func(*execstore.Execution)) {
		if err := e.store.Update(executionID, mutate); err != nil {
			logger.Error("failed to record terminal state", zap.Error(err))
		}
	}

	now := time.Now()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		logger.Warn("execution timed out", zap.Duration("timeout", timeout))
		finish(func(rec *execstore.Execution) {
			rec.Status = execstore.StatusTimeout
			rec.EndTime = &now
			rec.Output = result.Stdout
			rec.Error = fmt.Sprintf("execution exceeded timeout of %s", timeout)
		})
	case runErr != nil:
		logger.Error("driver error", zap.Error(runErr))
		finish(func(rec *execstore.Execution) {
			code := -1
			rec.Status = execstore.StatusFailed
			rec.EndTime = &now
			rec.ExitCode = &code
			rec.Output = result.Stdout
			rec.Error = runErr.Error()
		})
	default:
		exitCode := result.ExitCode
		status := execstore.StatusCompleted
		errMsg := result.Stderr
		if exitCode != 0 {
			status = execstore.StatusFailed
		}
		finish(func(rec *execstore.Execution) {
			rec.Status = status
			rec.EndTime = &now
			rec.ExitCode = &exitCode
			rec.Output = result.Stdout
			rec.Error = errMsg
		})
	}
}

func buildEnv(program catalog.Program, executionID string, parameters map[string]string) map[string]string {
	env := map[string]string{
		"PROGRAM_ID":   program.ID,
		"EXECUTION_ID": executionID,
	}
	for name, value := range parameters {
		env["PARAM_"+strings.ToUpper(name)] = value
	}
	return env
}
