package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"execengine/internal/admission"
	"execengine/internal/catalog"
	"execengine/internal/execstore"
	"execengine/internal/executor"
	"execengine/internal/reporting"
)

// Handler bundles the collaborators the HTTP surface dispatches to.
type Handler struct {
	Catalog           *catalog.Catalog
	Store             *execstore.Store
	Executor          *executor.Executor
	Admission         *admission.Gate
	ImageReporter     *reporting.ImageReporter
	ContainerReporter *reporting.ContainerReporter
}

type submitRequest struct {
	ProgramID  string            `json:"program_id" binding:"required"`
	Parameters map[string]string `json:"parameters"`
}

// SubmitExecution handles POST /v1/executions.
func (h *Handler) SubmitExecution(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := h.Executor.Submit(c.Request.Context(), executor.ExecutionRequest{
		ProgramID:  body.ProgramID,
		Parameters: body.Parameters,
	})
	if err != nil {
		status, code := statusForSubmitError(err)
		fail(c, status, code, err.Error())
		return
	}

	ok(c, http.StatusAccepted, gin.H{"execution_id": id})
}

// GetExecution handles GET /v1/executions/:id.
func (h *Handler) GetExecution(c *gin.Context) {
	rec, err := h.Store.Get(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, "not_found", err.Error())
		return
	}
	ok(c, http.StatusOK, rec)
}

// ListExecutions handles GET /v1/executions, with an optional
// ?status= filter.
func (h *Handler) ListExecutions(c *gin.Context) {
	statusFilter := c.Query("status")
	all := h.Store.List()
	if statusFilter == "" {
		ok(c, http.StatusOK, all)
		return
	}
	filtered := make([]execstore.Execution, 0, len(all))
	for _, rec := range all {
		if string(rec.Status) == statusFilter {
			filtered = append(filtered, rec)
		}
	}
	ok(c, http.StatusOK, filtered)
}

// ListRunningExecutions handles GET /v1/executions/running.
func (h *Handler) ListRunningExecutions(c *gin.Context) {
	ok(c, http.StatusOK, h.Store.ListRunning())
}

// PruneExecutions handles DELETE /v1/executions?terminal=true.
func (h *Handler) PruneExecutions(c *gin.Context) {
	if c.Query("terminal") != "true" {
		fail(c, http.StatusBadRequest, "invalid_request", "prune requires ?terminal=true")
		return
	}
	count := h.Store.Prune(nil)
	ok(c, http.StatusOK, gin.H{"pruned": count})
}

// ListPrograms handles GET /v1/programs.
func (h *Handler) ListPrograms(c *gin.Context) {
	ok(c, http.StatusOK, h.Catalog.AllPrograms())
}

// GetProgram handles GET /v1/programs/:id.
func (h *Handler) GetProgram(c *gin.Context) {
	program, err := h.Catalog.Lookup(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, "not_found", err.Error())
		return
	}
	ok(c, http.StatusOK, program)
}

// ListImages handles GET /v1/images.
func (h *Handler) ListImages(c *gin.Context) {
	ok(c, http.StatusOK, h.ImageReporter.List())
}

// ListActiveContainers handles GET /v1/containers.
func (h *Handler) ListActiveContainers(c *gin.Context) {
	containers, err := h.ContainerReporter.ListActive(c.Request.Context())
	if err != nil {
		fail(c, http.StatusBadGateway, "driver_unavailable", err.Error())
		return
	}
	ok(c, http.StatusOK, containers)
}

// ContainerLogsByImage handles GET /v1/containers/logs?image=....
func (h *Handler) ContainerLogsByImage(c *gin.Context) {
	image := c.Query("image")
	if image == "" {
		fail(c, http.StatusBadRequest, "invalid_request", "image query parameter is required")
		return
	}
	logs, err := h.ContainerReporter.LogsForImage(c.Request.Context(), image)
	if err != nil {
		fail(c, http.StatusBadGateway, "driver_unavailable", err.Error())
		return
	}
	ok(c, http.StatusOK, logs)
}

// ReloadCatalog handles POST /v1/catalog/reload.
func (h *Handler) ReloadCatalog(c *gin.Context) {
	if err := h.Catalog.Reload(); err != nil {
		fail(c, http.StatusInternalServerError, "reload_failed", err.Error())
		return
	}
	if h.Admission != nil {
		h.Admission.SetLimit(h.Catalog.Settings().MaxConcurrentExecutions)
	}
	ok(c, http.StatusOK, gin.H{"reloaded": true})
}

// Healthz handles GET /v1/healthz.
func (h *Handler) Healthz(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}
