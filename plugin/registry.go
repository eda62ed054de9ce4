package plugin

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/rogermt/forgesyte-sub004/errors"
)

// reservedNames are lifecycle method names that can never be tool names.
// A manifest declaring one of these is rejected at load time, and dispatch
// rejects them unconditionally.
var reservedNames = map[string]bool{
	"load":     true,
	"unload":   true,
	"run_tool": true,
	"validate": true,
}

// IsReservedName reports whether name collides with plugin lifecycle names.
func IsReservedName(name string) bool {
	return reservedNames[name]
}

// Registry manages the live set of loaded plugins.
//
// Only plugins whose Load succeeded are in the live map; a plugin that
// fails to load is logged and excluded, never half-registered. All
// dispatch goes through RunTool.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	log     *zap.SugaredLogger
}

// NewRegistry creates an empty registry
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		log:     log.Named("registry"),
	}
}

// LoadAll loads each candidate plugin and registers the ones that succeed.
// Load failures, duplicate ids, and reserved tool names exclude the plugin
// and are logged; they never abort startup. Returns the number registered.
func (r *Registry) LoadAll(ctx context.Context, candidates []Plugin) int {
	loaded := 0
	for _, p := range candidates {
		manifest := p.Manifest()

		if manifest.ID == "" {
			r.log.Warnw("Skipping plugin with empty id")
			continue
		}
		if bad := firstReservedTool(manifest); bad != "" {
			r.log.Warnw("Skipping plugin with reserved tool name",
				"plugin_id", manifest.ID,
				"tool", bad,
			)
			continue
		}

		r.mu.Lock()
		if _, exists := r.plugins[manifest.ID]; exists {
			r.mu.Unlock()
			r.log.Warnw("Skipping duplicate plugin id", "plugin_id", manifest.ID)
			continue
		}
		r.mu.Unlock()

		if err := p.Load(ctx); err != nil {
			r.log.Errorw("Plugin failed to load, excluding",
				"plugin_id", manifest.ID,
				"error", err,
			)
			continue
		}

		r.mu.Lock()
		r.plugins[manifest.ID] = p
		r.mu.Unlock()

		r.log.Infow("Plugin loaded",
			"plugin_id", manifest.ID,
			"version", manifest.Version,
			"tools", len(manifest.Tools),
		)
		loaded++
	}
	return loaded
}

func firstReservedTool(m Manifest) string {
	for _, t := range m.Tools {
		if IsReservedName(t.Name) {
			return t.Name
		}
	}
	return ""
}

// Get retrieves a live plugin by id
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// List returns the manifests of all live plugins, sorted by id.
func (r *Registry) List() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	manifests := make([]Manifest, 0, len(r.plugins))
	for _, p := range r.plugins {
		manifests = append(manifests, p.Manifest())
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].ID < manifests[j].ID
	})
	return manifests
}

// Manifest returns the manifest of one live plugin.
// Returns ErrUnknownPlugin if the id is not in the live set.
func (r *Registry) Manifest(id string) (Manifest, error) {
	p, ok := r.Get(id)
	if !ok {
		return Manifest{}, errors.Wrapf(errors.ErrUnknownPlugin, "plugin %s", id)
	}
	return p.Manifest(), nil
}

// RunTool dispatches one tool invocation to a live plugin and normalizes
// the result to a map.
//
// Returns ErrUnknownPlugin for an id outside the live set and
// ErrUnknownTool for a reserved name or a tool the manifest does not
// declare. Plugin execution errors are wrapped with ErrPluginFailed.
func (r *Registry) RunTool(ctx context.Context, pluginID, tool string, args Args) (map[string]any, error) {
	p, ok := r.Get(pluginID)
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownPlugin, "plugin %s", pluginID)
	}

	if IsReservedName(tool) {
		return nil, errors.Wrapf(errors.ErrUnknownTool, "%s is a reserved name", tool)
	}
	if _, ok := p.Manifest().Tool(tool); !ok {
		return nil, errors.Wrapf(errors.ErrUnknownTool, "plugin %s has no tool %s", pluginID, tool)
	}

	result, err := p.RunTool(ctx, tool, args)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrPluginFailed, "plugin %s tool %s: %v", pluginID, tool, err)
	}

	normalized, err := normalizeResult(result)
	if err != nil {
		return nil, errors.Wrapf(err, "plugin %s tool %s returned unserializable result", pluginID, tool)
	}
	return normalized, nil
}

// normalizeResult converts an arbitrary tool result to a map.
// Maps pass through, MapResult implementations provide their own map, and
// everything else goes through a JSON round-trip.
func normalizeResult(result any) (map[string]any, error) {
	switch v := result.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case MapResult:
		return v.AsMap(), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal tool result")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "tool result is not an object")
	}
	return m, nil
}

// UnloadAll unloads every live plugin and empties the registry.
// Unload errors are logged, not returned; shutdown proceeds regardless.
func (r *Registry) UnloadAll(ctx context.Context) {
	r.mu.Lock()
	plugins := r.plugins
	r.plugins = make(map[string]Plugin)
	r.mu.Unlock()

	ids := make([]string, 0, len(plugins))
	for id := range plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := plugins[id].Unload(ctx); err != nil {
			r.log.Errorw("Plugin unload failed", "plugin_id", id, "error", err)
			continue
		}
		r.log.Debugw("Plugin unloaded", "plugin_id", id)
	}
}
