package plugin

import (
	"strings"

	"github.com/rogermt/forgesyte-sub004/errors"
)

// ValidateRequest checks a submission against the live plugin set before a
// job is persisted: the plugin must be live, every tool declared, and every
// tool's input kind must match the upload kind. Validation happens at
// submit time so a bad request fails with a 4xx instead of a failed job.
func (r *Registry) ValidateRequest(pluginID string, tools []string, kind InputKind) error {
	if len(tools) == 0 {
		return errors.Wrap(errors.ErrNoToolsRequested, "at least one tool is required")
	}

	manifest, err := r.Manifest(pluginID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(tools))
	for _, tool := range tools {
		if IsReservedName(tool) {
			return errors.Wrapf(errors.ErrUnknownTool, "%s is a reserved name", tool)
		}
		spec, ok := manifest.Tool(tool)
		if !ok {
			return errors.Wrapf(errors.ErrUnknownTool,
				"plugin %s has no tool %s (valid tools: %s)", pluginID, tool, toolNames(manifest))
		}
		if !spec.Supports(kind) {
			return errors.Wrapf(errors.ErrUnsupportedInputKind,
				"tool %s does not accept %s input", tool, kind)
		}
		if seen[tool] {
			return errors.Wrapf(errors.ErrInvalidRequest, "tool %s requested more than once", tool)
		}
		seen[tool] = true
	}

	return nil
}

func toolNames(m Manifest) string {
	names := make([]string, 0, len(m.Tools))
	for _, t := range m.Tools {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}
