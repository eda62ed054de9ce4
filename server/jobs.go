package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rogermt/forgesyte-sub004/errors"
	"github.com/rogermt/forgesyte-sub004/job"
)

// jobResponse is the status-endpoint view of a job.
// Results is the output document, inlined verbatim so the tool order
// written by the worker survives; it is present iff the job completed.
type jobResponse struct {
	JobID        string          `json:"job_id"`
	Status       job.Status      `json:"status"`
	PluginID     string          `json:"plugin_id"`
	JobType      job.Type        `json:"job_type"`
	Tool         *string         `json:"tool,omitempty"`
	ToolList     []string        `json:"tool_list,omitempty"`
	Results      json.RawMessage `json:"results,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// handleGetJob returns one job's current state.
//
//	GET /v1/jobs/{job_id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job_id")

	j, err := s.jobs.Get(id)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	resp := jobResponse{
		JobID:        j.ID,
		Status:       j.Status,
		PluginID:     j.PluginID,
		JobType:      j.Type,
		Tool:         j.Tool,
		ToolList:     j.ToolList,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}

	if j.Status == job.StatusCompleted && j.OutputPath != nil {
		results, err := s.loadResults(*j.OutputPath, j.Type)
		if err != nil {
			s.logger.Errorw("Failed to load job results",
				"job_id", j.ID,
				"output_path", *j.OutputPath,
				"error", err,
			)
			writeErrorFromErr(w, errors.Wrapf(errors.ErrServiceUnavailable, "failed to load job results: %v", err))
			return
		}
		resp.Results = results
	}

	writeJSON(w, http.StatusOK, resp)
}

// loadResults reads the output blob and extracts the results payload.
// Single-tool documents are {"results": X} and X is returned; multi-tool
// documents are returned whole. The raw bytes pass through untouched to
// preserve the tools key order.
func (s *Server) loadResults(outputKey string, jobType job.Type) (json.RawMessage, error) {
	absPath, err := s.blobs.Open(outputKey)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	if jobType == job.TypeSingle {
		var doc struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return doc.Results, nil
	}
	return json.RawMessage(data), nil
}
