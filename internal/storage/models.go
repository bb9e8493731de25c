package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one client activity event (view, inquiry, call, ...).
type Interaction struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchRecord is the ledger entry for one (client, property) pair.
// ClientResponse is "" until the client answers.
type MatchRecord struct {
	ClientID       string    `json:"client_id"`
	PropertyID     string    `json:"property_id"`
	MatchScore     int       `json:"match_score"`
	MatchReasons   []string  `json:"match_reasons"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	WasSent        bool      `json:"was_sent"`
	ClientResponse string    `json:"client_response,omitempty"`
}

type IntentScoreRecord struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	OverallScore int       `json:"overall_score"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// MarketInsight is an externally supplied advisory note, optionally scoped
// to an area and/or property type.
type MarketInsight struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Area         string    `json:"area,omitempty"`
	PropertyType string    `json:"property_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Operation outcome statuses.
const (
	OperationSuccess = "success"
	OperationError   = "error"
)

// OperationLog records the outcome of one engine invocation.
type OperationLog struct {
	ID           string    `json:"id"`
	Operation    string    `json:"operation"`
	ClientID     string    `json:"client_id"`
	Status       string    `json:"status"`
	ExecutionMS  int64     `json:"execution_ms"`
	InputSummary string    `json:"input_summary"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Job status values.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PayloadJSON string    `json:"payload"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAfter    time.Time `json:"run_after"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}
