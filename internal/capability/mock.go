package capability

import (
	"context"
	"fmt"
)

// Mock is an offline Client returning canned responses. It backs tests and
// the CLI's --mock mode, where the full pipeline runs without network access
// or an API key.
type Mock struct {
	// Overrides replaces the canned response for a task when set.
	Overrides map[Task]string

	// Err is returned from every call when set.
	Err error
}

// NewMock creates a mock with the default canned responses.
func NewMock() *Mock {
	return &Mock{}
}

// Generate implements Client.
func (m *Mock) Generate(ctx context.Context, task Task, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Overrides != nil {
		if resp, ok := m.Overrides[task]; ok {
			return resp, nil
		}
	}

	switch task {
	case TaskDiscovery:
		return mockDiscovery, nil
	case TaskReview:
		return mockReview, nil
	case TaskSummary:
		return mockSummary, nil
	default:
		return "", fmt.Errorf("invalid task: %s", task)
	}
}

const mockDiscovery = `{
  "new_candidates": [
    {
      "ticker": "NVDA",
      "name": "NVIDIA Corp",
      "reason": "Strong AI datacenter growth momentum"
    }
  ]
}`

const mockReview = `{
  "opinion": "Recent momentum signals have been performing well in this market environment",
  "preference": "momentum",
  "adjustment": 2
}`

const mockSummary = `Momentum signals strengthened across the batch while fundamentals held ` +
	`steady; the one new candidate enters at a volatility-reduced weight and no ` +
	`risk warnings are outstanding.`
