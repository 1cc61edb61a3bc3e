// Package models defines the issue records shared by the HTTP surface, the
// workflow orchestrator, and the issue store.
package models

import (
	"fmt"
	"time"
)

// Rank is the priority a reporter assigns to an issue.
type Rank string

const (
	RankLow      Rank = "low"
	RankHigh     Rank = "high"
	RankCritical Rank = "critical"
)

// Ranks lists every rank in the order the form presents them.
var Ranks = []Rank{RankLow, RankHigh, RankCritical}

// Valid reports whether r is one of the known ranks.
func (r Rank) Valid() bool {
	switch r {
	case RankLow, RankHigh, RankCritical:
		return true
	}
	return false
}

// ParseRank converts a raw form value into a Rank.
func ParseRank(s string) (Rank, error) {
	r := Rank(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown rank %q", s)
	}
	return r, nil
}

// Status is the board column an issue sits in on the dashboard.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists every status in board order.
var Statuses = []Status{StatusBacklog, StatusInProgress, StatusDone}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Profile identifies a chat platform user.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	TeamID string `json:"teamId"`
}

// Channel identifies the conversation a message was posted in.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Message is the snapshot of a flagged chat message. It is captured once,
// when the reporter starts the workflow, and never re-fetched.
type Message struct {
	Channel   Channel `json:"channel"`
	Timestamp string  `json:"timestamp"`
	Text      string  `json:"text"`
	Author    Profile `json:"author"`

	// ThreadTimestamp is set when the message belongs to a thread.
	ThreadTimestamp string `json:"threadTimestamp,omitempty"`
}

// IsThreadedReply reports whether the message is a reply inside a thread
// rather than a top-level message or the parent of a thread.
func (m Message) IsThreadedReply() bool {
	return m.ThreadTimestamp != "" && m.ThreadTimestamp != m.Timestamp
}

// Issue is the persisted record of a flagged message.
type Issue struct {
	ID            string    `json:"id"`
	Rank          Rank      `json:"rank"`
	Message       Message   `json:"message"`
	ReportingUser Profile   `json:"reportingUser"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IssuePatch is a partial update. Nil fields are left unchanged.
type IssuePatch struct {
	ID     string  `json:"id"`
	Rank   *Rank   `json:"rank,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// Validate checks that the patch names an issue and only carries known values.
func (p IssuePatch) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("issue id is required")
	}
	if p.Rank != nil && !p.Rank.Valid() {
		return fmt.Errorf("unknown rank %q", *p.Rank)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("unknown status %q", *p.Status)
	}
	return nil
}

// Apply copies the patch's set fields onto issue.
func (p IssuePatch) Apply(issue *Issue) {
	if p.Rank != nil {
		issue.Rank = *p.Rank
	}
	if p.Status != nil {
		issue.Status = *p.Status
	}
}

// HealthStatus represents service health.
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}
