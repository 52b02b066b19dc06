package models

import "encoding/json"

// NodeStatus is the result status of a handler's NodeOutcome.
type NodeStatus string

const (
	NodeSuccess        NodeStatus = "success"
	NodePartialSuccess NodeStatus = "partial_success"
	NodeRetry          NodeStatus = "retry"
	NodeFail           NodeStatus = "fail"
)

// IsSuccessLike reports whether s counts as success-like for goal-gate
// evaluation: Success or PartialSuccess.
func (s NodeStatus) IsSuccessLike() bool {
	return s == NodeSuccess || s == NodePartialSuccess
}

// NodeOutcome is the result of executing one node handler.
type NodeOutcome struct {
	Status            NodeStatus         `json:"status"`
	Notes             string             `json:"notes,omitempty"`
	ContextUpdates    map[string]json.RawMessage `json:"context_updates,omitempty"`
	PreferredLabel    string             `json:"preferred_label,omitempty"`
	SuggestedNextIDs  []string           `json:"suggested_next_ids,omitempty"`
}

// RuntimeContext is a mapping from dotted string keys to JSON values,
// mutated only by merging NodeOutcome.ContextUpdates and by reserved
// runner writes ("outcome", "preferred_label", "graph.*" mirrors).
type RuntimeContext struct {
	values map[string]json.RawMessage
}

// NewRuntimeContext returns an empty RuntimeContext.
func NewRuntimeContext() *RuntimeContext {
	return &RuntimeContext{values: make(map[string]json.RawMessage)}
}

// Set writes a raw JSON value under key, overwriting any prior value.
func (c *RuntimeContext) Set(key string, value json.RawMessage) {
	c.values[key] = value
}

// SetString is a convenience wrapper that JSON-encodes a string value.
func (c *RuntimeContext) SetString(key, value string) {
	b, _ := json.Marshal(value)
	c.values[key] = b
}

// Get returns the raw JSON value stored at key, if any.
func (c *RuntimeContext) Get(key string) (json.RawMessage, bool) {
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the string decoding of the value at key, or "" with
// ok=false when absent or not a JSON string.
func (c *RuntimeContext) GetString(key string) (string, bool) {
	raw, ok := c.values[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Merge applies a set of context_updates, overwriting existing keys.
func (c *RuntimeContext) Merge(updates map[string]json.RawMessage) {
	for k, v := range updates {
		c.values[k] = v
	}
}

// Keys returns all keys currently set, for diagnostics (e.g.
// checkpoint_saved.state_summary.context_keys_count).
func (c *RuntimeContext) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a shallow copy of the underlying map, suitable for
// embedding in a PipelineRunResult.
func (c *RuntimeContext) Snapshot() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// PipelineRunResult is the terminal result of a Pipeline Runner run.
type PipelineRunResult struct {
	RunID          string                     `json:"run_id"`
	Status         NodeStatus                 `json:"status"`
	FailureReason  string                     `json:"failure_reason,omitempty"`
	CompletedNodes []string                   `json:"completed_nodes"`
	NodeOutcomes   map[string]NodeOutcome     `json:"node_outcomes"`
	Context        map[string]json.RawMessage `json:"context"`
}
