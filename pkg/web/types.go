// Package web provides HTTP request and response types for the run API.
package web

import "github.com/dukex/stepflow/pkg/models"

// ListRunsRequest holds the query parameters of GET /runs.
type ListRunsRequest struct {
	WorkflowID string `query:"workflow_id" validate:"omitempty,max=255"`
	Status     string `query:"status"      validate:"omitempty,oneof=running success failure terminated"`
	Limit      int    `query:"limit"       validate:"gte=0,lte=1000"`
	Offset     int    `query:"offset"      validate:"gte=0"`
}

// Pagination echoes the effective paging of a listing.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListRunsResponse is returned by GET /runs.
type ListRunsResponse struct {
	Runs       []*models.Run `json:"runs"`
	Pagination Pagination    `json:"pagination"`
}

// TriggerResponse is returned when a run has been requested.
type TriggerResponse struct {
	WorkflowID string `json:"workflow_id"`
	EventID    string `json:"event_id"`
}
