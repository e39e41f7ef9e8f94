package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execengine/internal/admission"
	"execengine/internal/catalog"
	"execengine/internal/config"
	"execengine/internal/containerdriver"
	"execengine/internal/execstore"
	"execengine/internal/executor"
	"execengine/internal/reporting"
)

type fakeDriver struct{}

func (fakeDriver) EnsureImage(ctx context.Context, name string) error { return nil }
func (fakeDriver) RunOneshot(ctx context.Context, spec containerdriver.OneshotSpec) (containerdriver.RunResult, error) {
	return containerdriver.RunResult{ExitCode: 0, Stdout: "ok"}, nil
}
func (fakeDriver) RunCompose(ctx context.Context, composeFile string, env map[string]string) (containerdriver.RunResult, error) {
	return containerdriver.RunResult{}, nil
}
func (fakeDriver) ListActive(ctx context.Context) ([]containerdriver.ActiveContainer, error) {
	return []containerdriver.ActiveContainer{}, nil
}
func (fakeDriver) LogsForImage(ctx context.Context, image string) ([]containerdriver.ImageLogs, error) {
	return []containerdriver.ImageLogs{}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *execstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	programDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(programDir, "main.py"), []byte("print(1)"), 0o644))

	catalogPath := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`
scripts:
  - id: s1
    path: `+programDir+`
    main_file: main.py
    enabled: true
    image: "img:1"
settings:
  timeout_seconds: 5
  max_concurrent_executions: 2
`), 0o644))

	cat, err := catalog.Load(catalogPath)
	require.NoError(t, err)

	store := execstore.New()
	gate := admission.NewGate(cat.Settings().MaxConcurrentExecutions)
	driver := fakeDriver{}
	exec := executor.New(cat, gate, store, driver)

	handler := &Handler{
		Catalog:           cat,
		Store:             store,
		Executor:          exec,
		Admission:         gate,
		ImageReporter:     reporting.NewImageReporter(cat),
		ContainerReporter: reporting.NewContainerReporter(driver),
	}

	return NewRouter(handler, config.Config{
		CORSAllowedOrigins: []string{"http://localhost"},
		RequestTimeout:     5 * time.Second,
		SubmissionRPM:      600,
		SubmissionBurst:    50,
	}), store
}

func TestSubmitExecutionEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"program_id": "s1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/executions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp StandardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	deadline := time.After(2 * time.Second)
	for len(store.List()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no execution record created")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubmitExecutionUnknownProgram(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"program_id": "nope"})
	req := httptest.NewRequest(http.MethodPost, "/v1/executions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListProgramsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/programs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "s1")
}
