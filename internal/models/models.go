package models

import "time"

type DispatchStatus string

const (
	StatusSent    DispatchStatus = "sent"
	StatusFailed  DispatchStatus = "failed"
	StatusNotSent DispatchStatus = "not_sent"
)

type CheckpointStatus string

const (
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCrashed    CheckpointStatus = "crashed"
	CheckpointCompleted  CheckpointStatus = "completed"
	CheckpointCleared    CheckpointStatus = "cleared"
)

// Recipient is one entry of the dispatch list. Fields carries the
// personalization attributes (login_link, candidate_id, program_name, ...)
// used by the placeholder renderer. Recipients are read-only to the engine.
type Recipient struct {
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Fields map[string]string `json:"fields,omitempty"`
}

// DispatchResult records the outcome of exactly one recipient attempt.
type DispatchResult struct {
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Status      DispatchStatus `json:"status"`
	Message     string         `json:"message"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Checkpoint is the durable snapshot of run progress. NextIndex is the
// index of the first recipient that has not been attempted yet.
type Checkpoint struct {
	SessionID  string           `json:"session_id"`
	Total      int              `json:"total"`
	NextIndex  int              `json:"next_index"`
	Results    []DispatchResult `json:"results"`
	StartedAt  time.Time        `json:"started_at"`
	Status     CheckpointStatus `json:"status"`
	CrashError string           `json:"crash_error,omitempty"`
}

// Resumable reports whether this checkpoint may seed a resumed run.
// Completed and cleared checkpoints are never offered again.
func (c Checkpoint) Resumable() bool {
	return c.Status == CheckpointInProgress || c.Status == CheckpointCrashed
}

// SentFailedCounts tallies terminal statuses in a result list.
func SentFailedCounts(results []DispatchResult) (sent, failed int) {
	for _, r := range results {
		switch r.Status {
		case StatusSent:
			sent++
		case StatusFailed:
			failed++
		}
	}
	return sent, failed
}

type EventType string

const (
	EventGoogleMeet EventType = "google_meet"
	EventOutlook    EventType = "outlook"
)

// Label returns the display name for an event type.
func (t EventType) Label() string {
	switch t {
	case EventGoogleMeet:
		return "Google Meet"
	case EventOutlook:
		return "Outlook / Microsoft Teams"
	default:
		return string(t)
	}
}

// CalendarEventSpec holds the per-run invite parameters. The attendee is
// supplied per recipient at encode time, never stored here.
type CalendarEventSpec struct {
	Type           EventType `json:"type"`
	Title          string    `json:"title"`
	Date           string    `json:"date"`
	StartTime      string    `json:"start_time"`
	Duration       string    `json:"duration"`
	OrganizerName  string    `json:"organizer_name"`
	OrganizerEmail string    `json:"organizer_email"`
	Location       string    `json:"location"`
	MeetingLink    string    `json:"meeting_link"`
	Description    string    `json:"description"`
}
