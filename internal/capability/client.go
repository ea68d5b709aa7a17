// Package capability abstracts the generative model behind the pipeline's
// non-deterministic stages: candidate discovery, the strategy review opinion
// and the report narrative. Everything else in the pipeline is deterministic
// and never touches this package.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyluth/porta/pkg/blackboard"
)

// Task identifies which stage is asking, so backends can pick output
// formats (JSON vs prose) and mocks can pick canned answers.
type Task string

const (
	// TaskDiscovery asks for new portfolio candidates as JSON.
	TaskDiscovery Task = "discovery"

	// TaskReview asks for a strategy opinion as JSON.
	TaskReview Task = "review"

	// TaskSummary asks for a short prose summary for the report.
	TaskSummary Task = "summary"
)

// Validate checks the task is a known value.
func (t Task) Validate() error {
	switch t {
	case TaskDiscovery, TaskReview, TaskSummary:
		return nil
	default:
		return fmt.Errorf("invalid task: %s", t)
	}
}

// Client is a generative model backend. Implementations must be safe for
// concurrent use; stages may run in the same wave.
type Client interface {
	// Generate produces a completion for the prompt. For TaskDiscovery and
	// TaskReview the response is a JSON document; for TaskSummary it is
	// markdown prose.
	Generate(ctx context.Context, task Task, prompt string) (string, error)
}

// discoveryResponse mirrors the JSON shape TaskDiscovery prompts ask for.
type discoveryResponse struct {
	NewCandidates []blackboard.Candidate `json:"new_candidates"`
}

// ReviewOpinion is the parsed result of a TaskReview completion.
type ReviewOpinion struct {
	Opinion    string  `json:"opinion"`
	Preference string  `json:"preference"`
	Adjustment float64 `json:"adjustment"`
}

// ParseCandidates decodes a TaskDiscovery completion. Responses wrapped in
// markdown code fences are unwrapped first.
func ParseCandidates(raw string) ([]blackboard.Candidate, error) {
	var resp discoveryResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse discovery response: %w", err)
	}
	return resp.NewCandidates, nil
}

// ParseReview decodes a TaskReview completion.
func ParseReview(raw string) (ReviewOpinion, error) {
	var op ReviewOpinion
	if err := json.Unmarshal([]byte(stripFences(raw)), &op); err != nil {
		return ReviewOpinion{}, fmt.Errorf("failed to parse review response: %w", err)
	}
	return op, nil
}

// stripFences removes a surrounding markdown code fence if present. Models
// frequently wrap JSON in ```json blocks even when told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
