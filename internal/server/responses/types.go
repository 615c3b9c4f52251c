// Package responses defines the JSON bodies served by the daemon.
package responses

import (
	"time"

	"git.home.luguber.info/inful/wikiexport/internal/eventstore"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	Uptime       float64   `json:"uptime"`
	DaemonStatus string    `json:"daemon_status,omitempty"`
}

// StatusResponse is the /status body.
type StatusResponse struct {
	Status    string                   `json:"status"`
	StartTime time.Time                `json:"start_time"`
	Uptime    float64                  `json:"uptime"`
	Interval  string                   `json:"interval,omitempty"`
	Corpora   []string                 `json:"corpora,omitempty"`
	Active    *eventstore.RunSummary   `json:"active,omitempty"`
	Last      *eventstore.RunSummary   `json:"last,omitempty"`
	History   []*eventstore.RunSummary `json:"history"`
}

// TriggerResponse is returned when a run is requested over HTTP.
type TriggerResponse struct {
	Status string `json:"status"`
	Force  bool   `json:"force,omitempty"`
}
