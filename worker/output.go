package worker

import (
	"bytes"
	"encoding/json"

	"github.com/rogermt/forgesyte-sub004/errors"
)

// orderedToolResults serializes tool results as a JSON object whose keys
// appear in execution order. encoding/json sorts map keys, so the multi
// tool output shape needs its own marshaller to keep the insertion order
// clients rely on.
type orderedToolResults struct {
	order   []string
	results map[string]map[string]any
}

func newOrderedToolResults() *orderedToolResults {
	return &orderedToolResults{
		results: make(map[string]map[string]any),
	}
}

func (r *orderedToolResults) add(tool string, result map[string]any) {
	if _, exists := r.results[tool]; !exists {
		r.order = append(r.order, tool)
	}
	r.results[tool] = result
}

// MarshalJSON writes the results object with keys in insertion order.
func (r *orderedToolResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tool := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tool)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal tool name %s", tool)
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(r.results[tool])
		if err != nil {
			return nil, errors.Wrapf(err, "marshal result for tool %s", tool)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// singleOutput is the output document of a single-tool job.
type singleOutput struct {
	Results map[string]any `json:"results"`
}

// multiOutput is the output document of a multi-tool job.
// Tools preserves the execution order of the tool list.
type multiOutput struct {
	PluginID string              `json:"plugin_id"`
	Tools    *orderedToolResults `json:"tools"`
}
