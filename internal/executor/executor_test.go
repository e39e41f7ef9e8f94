package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execengine/internal/admission"
	"execengine/internal/catalog"
	"execengine/internal/containerdriver"
	"execengine/internal/execstore"
)

type fakeDriver struct {
	ensureImageErr error
	runResult      containerdriver.RunResult
	runErr         error
	runDelay       time.Duration
	lastSpec       containerdriver.OneshotSpec
}

func (f *fakeDriver) EnsureImage(ctx context.Context, name string) error { return f.ensureImageErr }

func (f *fakeDriver) RunOneshot(ctx context.Context, spec containerdriver.OneshotSpec) (containerdriver.RunResult, error) {
	f.lastSpec = spec
	if f.runDelay > 0 {
		select {
		case <-time.After(f.runDelay):
		case <-ctx.Done():
			return containerdriver.RunResult{}, ctx.Err()
		}
	}
	return f.runResult, f.runErr
}

func (f *fakeDriver) RunCompose(ctx context.Context, composeFile string, env map[string]string) (containerdriver.RunResult, error) {
	return f.runResult, f.runErr
}

func (f *fakeDriver) ListActive(ctx context.Context) ([]containerdriver.ActiveContainer, error) {
	return nil, nil
}

func (f *fakeDriver) LogsForImage(ctx context.Context, image string) ([]containerdriver.ImageLogs, error) {
	return nil, nil
}

func writeCatalogFile(t *testing.T, programDir string, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	contents := `
scripts:
  - id: s1
    path: ` + programDir + `
    main_file: main.py
    enabled: true
    image: "img:1"
  - id: disabled
    path: ` + programDir + `
    enabled: false
settings:
  timeout_seconds: 2
  max_concurrent_executions: 2
` + extra
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func waitTerminal(t *testing.T, store *execstore.Store, id string) execstore.Execution {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		rec, err := store.Get(id)
		require.NoError(t, err)
		if rec.Status.IsTerminal() {
			return rec
		}
		select {
		case <-deadline:
			t.Fatalf("execution %s did not reach a terminal state", id)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func newTestExecutor(t *testing.T, driver containerdriver.Driver) (*Executor, *execstore.Store, string) {
	t.Helper()
	programDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(programDir, "main.py"), []byte("print('hi')"), 0o644))

	catPath := writeCatalogFile(t, programDir, "")
	cat, err := catalog.Load(catPath)
	require.NoError(t, err)

	store := execstore.New()
	gate := admission.NewGate(cat.Settings().MaxConcurrentExecutions)
	return New(cat, gate, store, driver), store, programDir
}

func TestSubmitHappyPath(t *testing.T) {
	driver := &fakeDriver{runResult: containerdriver.RunResult{ExitCode: 0, Stdout: "hi\n"}}
	exec, store, _ := newTestExecutor(t, driver)

	id, err := exec.Submit(context.Background(), ExecutionRequest{ProgramID: "s1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec := waitTerminal(t, store, id)
	assert.Equal(t, execstore.StatusCompleted, rec.Status)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 0, *rec.ExitCode)
	assert.Contains(t, rec.Output, "hi")
}

func TestSubmitDisabledProgramRejectedSynchronously(t *testing.T) {
	driver := &fakeDriver{}
	exec, store, _ := newTestExecutor(t, driver)

	_, err := exec.Submit(context.Background(), ExecutionRequest{ProgramID: "disabled"})
	require.Error(t, err)

	submitErr, ok := err.(*SubmitError)
	require.True(t, ok)
	assert.Equal(t, KindDisabled, submitErr.Kind)
	assert.Empty(t, store.List())
}

func TestSubmitUnknownProgram(t *testing.T) {
	driver := &fakeDriver{}
	exec, _, _ := newTestExecutor(t, driver)

	_, err := exec.Submit(context.Background(), ExecutionRequest{ProgramID: "nope"})
	require.Error(t, err)
	submitErr, ok := err.(*SubmitError)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, submitErr.Kind)
}

func TestSubmitMainFileMissingFallsBackThenFails(t *testing.T) {
	driver := &fakeDriver{}
	programDir := t.TempDir() // no main.py, run.py, app.py, index.py present
	catPath := writeCatalogFile(t, programDir, "")
	cat, err := catalog.Load(catPath)
	require.NoError(t, err)

	store := execstore.New()
	gate := admission.NewGate(cat.Settings().MaxConcurrentExecutions)
	exec := New(cat, gate, store, driver)

	_, err = exec.Submit(context.Background(), ExecutionRequest{ProgramID: "s1"})
	require.Error(t, err)
	submitErr, ok := err.(*SubmitError)
	require.True(t, ok)
	assert.Equal(t, KindMainFileMissing, submitErr.Kind)
}

func TestSubmitFallbackMainFileResolution(t *testing.T) {
	driver := &fakeDriver{runResult: containerdriver.RunResult{ExitCode: 0}}
	programDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(programDir, "run.py"), []byte("pass"), 0o644))
	catPath := writeCatalogFile(t, programDir, "")
	cat, err := catalog.Load(catPath)
	require.NoError(t, err)

	store := execstore.New()
	gate := admission.NewGate(cat.Settings().MaxConcurrentExecutions)
	exec := New(cat, gate, store, driver)

	id, err := exec.Submit(context.Background(), ExecutionRequest{ProgramID: "s1"})
	require.NoError(t, err)
	waitTerminal(t, store, id)
	assert.Equal(t, "run.py", driver.lastSpec.MainFile)
}

func TestSubmitOverloadRejected(t *testing.T) {
	driver := &fakeDriver{runDelay: 200 * time.Millisecond, runResult: containerdriver.RunResult{ExitCode: 0}}
	exec, store, _ := newTestExecutor(t, driver)

	_, err := exec.Submit(context.Background(), ExecutionRequest{ProgramID: "s1"})
	require.NoError(t, err)
	_, err = exec.Submit(context.Background(), ExecutionRequest{ProgramID: "s1"})
	require.NoError(t, err)

	_, err = exec.Submit(context.Background(), ExecutionRequest{ProgramID: "s1"})
	require.Error(t, err)
	submitErr, ok := err.(*SubmitError)
	require.True(t, ok)
	assert.Equal(t, KindOverloaded, submitErr.Kind)

	for _, rec := range store.List() {
		waitTerminal(t, store, rec.ExecutionID)
	}
}

func TestSubmitTimeout(t *testing.T) {
	driver := &fakeDriver{runDelay: 5 * time.Second, runResult: containerdriver.RunResult{ExitCode: 0}}
	programDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(programDir, "main.py"), []byte("pass"), 0o644))
	catPath := writeCatalogFile(t, programDir, "")
	// override settings with a very short timeout
	require.NoError(t, os.WriteFile(catPath, []byte(`
scripts:
  - id: s1
    path: `+programDir+`
    main_file: main.py
    enabled: true
    image: "img:1"
settings:
  timeout_seconds: 1
  max_concurrent_executions: 2
`), 0o644))
	cat, err := catalog.Load(catPath)
	require.NoError(t, err)

	store := execstore.New()
	gate := admission.NewGate(cat.Settings().MaxConcurrentExecutions)
	exec := New(cat, gate, store, driver)

	id, err := exec.Submit(context.Background(), ExecutionRequest{ProgramID: "s1"})
	require.NoError(t, err)

	rec := waitTerminal(t, store, id)
	assert.Equal(t, execstore.StatusTimeout, rec.Status)
	assert.Equal(t, 0, gate.Current())
}

func TestParameterChannels(t *testing.T) {
	driver := &fakeDriver{runResult: containerdriver.RunResult{ExitCode: 0}}
	exec, store, _ := newTestExecutor(t, driver)

	id, err := exec.Submit(context.Background(), ExecutionRequest{
		ProgramID:  "s1",
		Parameters: map[string]string{"foo": "bar"},
	})
	require.NoError(t, err)
	waitTerminal(t, store, id)

	assert.Equal(t, "bar", driver.lastSpec.Env["PARAM_FOO"])
}
