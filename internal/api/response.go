// Package api is the HTTP transport collaborator: it exposes the
// engine's operations over gin, translating engine error kinds into
// HTTP status codes and wrapping every response in a standard
// envelope.
package api

import "github.com/gin-gonic/gin"

// StandardResponse is the envelope every handler returns.
type StandardResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, StandardResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, StandardResponse{Success: false, Error: message, Code: code})
}
