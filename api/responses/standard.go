// Package responses formats API payloads. Errors are RFC 7807 problem
// documents; successes share one envelope.
package responses

import (
	"net/http"
	"time"

	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// StandardResponse represents a standard API response format
type StandardResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	StandardResponse
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta describes the returned page. Totals are not computed;
// HasNext is true when the page came back full.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Count   int  `json:"count"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// NewPaginationMeta builds pagination metadata for a page of count rows
func NewPaginationMeta(page, limit, count int) *PaginationMeta {
	return &PaginationMeta{
		Page:    page,
		Limit:   limit,
		Count:   count,
		HasNext: count == limit,
		HasPrev: page > 1,
	}
}

func envelope(c *gin.Context, data interface{}) StandardResponse {
	return StandardResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   getTraceID(c),
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope(c, data))
}

// Created sends a 201 Created response
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope(c, data))
}

// Paginated sends a paginated response
func Paginated(c *gin.Context, data interface{}, pagination *PaginationMeta) {
	c.JSON(http.StatusOK, PaginatedResponse{
		StandardResponse: envelope(c, data),
		Pagination:       pagination,
	})
}

// Error sends err as an RFC 7807 problem document
func Error(c *gin.Context, err error) {
	problem := errors.ToProblem(err, c.Request.URL.Path)
	if traceID := getTraceID(c); traceID != "" {
		problem.WithTraceID(traceID)
	}
	problem.WithExtra("timestamp", time.Now().UTC().Format(time.RFC3339))

	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problem.Status, problem)
}

// getTraceID prefers the active span and falls back to the X-Trace-ID header
func getTraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return c.GetHeader("X-Trace-ID")
}
