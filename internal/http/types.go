package http

import (
	"github.com/fyrsmithlabs/plains/internal/entry"
	"github.com/fyrsmithlabs/plains/internal/orchestrator"
	"github.com/fyrsmithlabs/plains/internal/telemetry"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// StackSummary names a stack and its entry count.
type StackSummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StacksResponse is the response body for GET /api/v1/stacks.
type StacksResponse struct {
	Stacks []StackSummary `json:"stacks"`
}

// StackResponse is the response body for GET /api/v1/stacks/:name.
type StackResponse struct {
	Name    string        `json:"name"`
	Entries []entry.Entry `json:"entries"`
}

// SubscriptionsResponse is the response body for GET /api/v1/subscriptions.
type SubscriptionsResponse struct {
	Subscriptions []orchestrator.SubscriptionInfo `json:"subscriptions"`
}

// PublishRequest is the request body for POST /api/v1/publish.
// An empty hook list publishes the default hook.
type PublishRequest struct {
	Hooks []string `json:"hooks"`
}

// PublishResponse is the response body for POST /api/v1/publish.
type PublishResponse struct {
	Status     string      `json:"status"` // "resolved" or "rejected"
	Duration   string      `json:"duration"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// Rejection describes one rejected phase.
type Rejection struct {
	Task  string `json:"task,omitempty"`
	Phase string `json:"phase,omitempty"`
	Error string `json:"error"`
}
