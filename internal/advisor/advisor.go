// Package advisor is the AI Advisor boundary (spec.md §6, §4.8): a thin,
// advisory-only client over a generative model. It never mutates state —
// the Orchestrator's deterministic pipeline is always the final say — and
// every failure mode collapses to a single AIError so callers can fall back
// to pure EDF.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/lineflow/scheduler/internal/domain"
	lferrors "github.com/lineflow/scheduler/internal/errors"
)

// Request carries everything the advisor needs to propose a hint.
type Request struct {
	OperatorText string
	Schedule     domain.Schedule
	Pending      []domain.SalesOrder
	EDFBaseline  []string // SO ids in EDF order
}

// Hint is the advisor's advisory output: a suggested ordering and priority
// bumps. The Orchestrator applies PriorityUpdates through the Gateway and
// then plans the orders in OrderedSOIDs order; the Policy Sorter only
// orders accepted sales orders the hint leaves out.
type Hint struct {
	OrderedSOIDs    []string
	PriorityUpdates map[string]int
	Explanation     string
}

// Advisor is the narrow interface the Orchestrator depends on.
type Advisor interface {
	Advise(ctx context.Context, req Request) (Hint, error)
}

// GenAI implements Advisor against Google's generative model API.
type GenAI struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAI builds a client. apiKey and model come from the AI_API_KEY and
// AI_MODEL_NAME configuration variables.
func NewGenAI(ctx context.Context, apiKey, model string, timeout time.Duration) (*GenAI, error) {
	if apiKey == "" {
		return nil, &lferrors.AIError{Reason: "AI_API_KEY is empty"}
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, &lferrors.AIError{Reason: "failed to create genai client", Err: err}
	}
	return &GenAI{client: client, model: model, timeout: timeout}, nil
}

type adviceResponse struct {
	OrderedSOIDs    []string       `json:"ordered_so_ids"`
	PriorityUpdates map[string]int `json:"priority_updates"`
	Explanation     string         `json:"explanation"`
}

// Advise asks the model for a reordering of req.Pending, informed by
// req.OperatorText, the current schedule, and the EDF baseline. Any
// response that does not cover exactly req.Pending's SO ids is rejected as
// an AIError rather than silently accepted.
func (g *GenAI) Advise(ctx context.Context, req Request) (Hint, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := buildPrompt(req)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	result, err := g.client.Models.GenerateContent(callCtx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Hint{}, &lferrors.AIError{Reason: "generate content failed", Err: err}
	}
	text := result.Text()
	if text == "" {
		return Hint{}, &lferrors.AIError{Reason: "empty response from model"}
	}

	var parsed adviceResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Hint{}, &lferrors.AIError{Reason: "malformed advisor response", Err: err}
	}

	if err := validateCoverage(parsed.OrderedSOIDs, req.Pending); err != nil {
		return Hint{}, &lferrors.AIError{Reason: err.Error()}
	}

	return Hint{
		OrderedSOIDs:    parsed.OrderedSOIDs,
		PriorityUpdates: parsed.PriorityUpdates,
		Explanation:     parsed.Explanation,
	}, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Operator instruction: %s\n", req.OperatorText)
	fmt.Fprintf(&b, "EDF baseline order: %s\n", strings.Join(req.EDFBaseline, ", "))
	fmt.Fprintf(&b, "Pending sales orders: %d\n", len(req.Pending))
	for _, so := range req.Pending {
		fmt.Fprintf(&b, "- %s: product=%s qty=%d deadline=%s priority=%d customer=%s\n",
			so.ID, so.ProductID, so.Quantity, so.Deadline.Format(time.RFC3339), so.Priority, so.Customer.Name)
	}
	b.WriteString("Respond with JSON: {\"ordered_so_ids\": [...], \"priority_updates\": {...}, \"explanation\": \"...\"}. ")
	b.WriteString("ordered_so_ids must contain every pending sales order id exactly once.")
	return b.String()
}

func validateCoverage(ordered []string, pending []domain.SalesOrder) error {
	want := make(map[string]bool, len(pending))
	for _, so := range pending {
		want[so.ID] = true
	}
	if len(ordered) != len(want) {
		return fmt.Errorf("advisor returned %d ids, expected %d", len(ordered), len(want))
	}
	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if !want[id] {
			return fmt.Errorf("advisor returned unknown sales order id %q", id)
		}
		if seen[id] {
			return fmt.Errorf("advisor returned duplicate sales order id %q", id)
		}
		seen[id] = true
	}
	return nil
}

var _ Advisor = (*GenAI)(nil)
