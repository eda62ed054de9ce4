// Package job provides the persisted job model and its state machine.
//
// ARCHITECTURE: The database IS the queue.
//   - Jobs are inserted pending by the HTTP server
//   - The worker claims the oldest pending job with a conditional update
//   - Terminal states (completed, failed) are immutable
//
// There is no in-memory queue; ClaimOldestPending is the only dequeue
// primitive.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rogermt/forgesyte-sub004/errors"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Type determines the dispatch shape and the output shape of a job.
type Type string

const (
	// TypeSingle runs exactly one tool; output is {"results": ...}
	TypeSingle Type = "single"
	// TypeMulti runs an ordered tool list; output is
	// {"plugin_id": ..., "tools": {...}}
	TypeMulti Type = "multi"
)

// Job represents one execution of a plugin's tools against one upload.
//
// Exactly one of Tool / ToolList is populated, matching Type.
// OutputPath and ErrorMessage are mutually exclusive: completed jobs have
// an output path and no error, failed jobs the reverse.
type Job struct {
	ID           string     `json:"job_id"`
	Status       Status     `json:"status"`
	PluginID     string     `json:"plugin_id"`
	Tool         *string    `json:"tool,omitempty"`
	ToolList     []string   `json:"tool_list,omitempty"`
	Type         Type       `json:"job_type"`
	InputPath    string     `json:"input_path"`
	OutputPath   *string    `json:"output_path,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Progress     *int       `json:"progress,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewSingle creates a pending single-tool job with a fresh id.
func NewSingle(pluginID, tool, inputPath string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		PluginID:  pluginID,
		Tool:      &tool,
		Type:      TypeSingle,
		InputPath: inputPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewMulti creates a pending multi-tool job with a fresh id.
// The tool order is preserved; it is the execution order.
func NewMulti(pluginID string, tools []string, inputPath string) *Job {
	now := time.Now().UTC()
	toolList := make([]string, len(tools))
	copy(toolList, tools)
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		PluginID:  pluginID,
		ToolList:  toolList,
		Type:      TypeMulti,
		InputPath: inputPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Tools returns the ordered tool list to dispatch, regardless of Type.
func (j *Job) Tools() []string {
	if j.Type == TypeSingle {
		if j.Tool == nil {
			return nil
		}
		return []string{*j.Tool}
	}
	return j.ToolList
}

// MarshalToolList converts a tool list to its JSON column representation
func MarshalToolList(tools []string) (string, error) {
	if len(tools) == 0 {
		return "", nil
	}
	data, err := json.Marshal(tools)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal tool list")
	}
	return string(data), nil
}

// UnmarshalToolList converts the JSON column representation to a tool list
func UnmarshalToolList(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var tools []string
	if err := json.Unmarshal([]byte(data), &tools); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tool list")
	}
	return tools, nil
}
