// Package plugin provides the analyzer plugin architecture.
//
// A plugin represents one analysis capability (e.g. OCR, object tracking).
// Each plugin declares a manifest of named tools; the registry owns the
// live plugin set and is the single dispatch point for tool execution.
//
// Architecture:
//   - All plugins run in-process and implement the same Plugin interface
//   - The registry's live map is the sole source of truth for what is
//     callable; manifests are descriptions, not capabilities
//   - Lifecycle names (load, unload, run_tool, validate) are reserved and
//     never valid tool names
package plugin

import (
	"context"
)

// InputKind is the media category a tool accepts.
type InputKind string

const (
	KindImage InputKind = "image"
	KindVideo InputKind = "video"
)

// IsValidInputKind returns true if the string is a known InputKind
func IsValidInputKind(s string) bool {
	switch InputKind(s) {
	case KindImage, KindVideo:
		return true
	default:
		return false
	}
}

// ToolSpec describes one tool a plugin exposes.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputKinds  []InputKind `json:"input_kinds"`
}

// Supports reports whether the tool accepts the given input kind.
func (t ToolSpec) Supports(kind InputKind) bool {
	for _, k := range t.InputKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Manifest describes a plugin and its tools
type Manifest struct {
	ID          string     `json:"id"`
	Version     string     `json:"version"`
	Description string     `json:"description"`
	Tools       []ToolSpec `json:"tools"`
}

// Tool returns the spec for the named tool, if the manifest declares it.
func (m Manifest) Tool(name string) (ToolSpec, bool) {
	for _, t := range m.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSpec{}, false
}

// Args carries the input of one tool invocation.
// Exactly one of ImageBytes / VideoPath is populated, matching the tool's
// declared input kind. Video stays on disk; only images travel by value.
type Args struct {
	JobID      string
	ImageBytes []byte
	VideoPath  string
}

// Plugin is the interface every analyzer implements.
type Plugin interface {
	// Manifest returns the plugin's static description.
	// Must be callable before Load.
	Manifest() Manifest

	// Load prepares the plugin for tool execution (model weights,
	// worker processes). Called once before the plugin enters the
	// registry's live set.
	Load(ctx context.Context) error

	// Unload releases resources. Called at shutdown.
	Unload(ctx context.Context) error

	// RunTool executes the named tool against args and returns its raw
	// result. The registry normalizes the result shape; plugins may
	// return maps, structs, or anything JSON-serializable.
	RunTool(ctx context.Context, tool string, args Args) (any, error)
}

// MapResult is an optional interface for results that provide their own
// map representation, avoiding a JSON round-trip in the registry.
type MapResult interface {
	AsMap() map[string]any
}
