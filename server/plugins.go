package server

import (
	"net/http"

	"github.com/rogermt/forgesyte-sub004/plugin"
)

// pluginSummary is the list-endpoint view of a plugin.
type pluginSummary struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// handleListPlugins returns the live plugin set.
//
//	GET /v1/plugins
func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	manifests := s.registry.List()
	summaries := make([]pluginSummary, 0, len(manifests))
	for _, m := range manifests {
		summaries = append(summaries, pluginSummary{
			ID:          m.ID,
			Version:     m.Version,
			Description: m.Description,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// manifestResponse is the manifest-endpoint view of a plugin.
type manifestResponse struct {
	ID      string            `json:"id"`
	Version string            `json:"version"`
	Tools   []plugin.ToolSpec `json:"tools"`
}

// handlePluginManifest returns one live plugin's tools.
//
//	GET /v1/plugins/{id}/manifest
func (s *Server) handlePluginManifest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	manifest, err := s.registry.Manifest(id)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manifestResponse{
		ID:      manifest.ID,
		Version: manifest.Version,
		Tools:   manifest.Tools,
	})
}
