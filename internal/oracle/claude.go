package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ShayCichocki/nimbus/pkg/models"
)

const selectActionTool = "select_action"

const systemPrompt = `You drive an autonomous software project through the stages planning, implementation, testing and review.
Each turn you choose exactly one next action from the offered candidates by calling the select_action tool.
Prefer actions that produce the artifacts the current stage still lacks. Never invent action names.`

// ClaudeDecider asks Claude to pick the next action.
type ClaudeDecider struct {
	client    *Client
	limiter   *rate.Limiter
	maxTokens int64
	logger    *zap.Logger
}

// ClaudeOption configures a ClaudeDecider.
type ClaudeOption func(*ClaudeDecider)

// WithRateLimit limits calls to r per second with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(r float64, burst int) ClaudeOption {
	return func(d *ClaudeDecider) {
		if r <= 0 {
			d.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithMaxTokens caps the response size.
func WithMaxTokens(n int64) ClaudeOption {
	return func(d *ClaudeDecider) {
		if n > 0 {
			d.maxTokens = n
		}
	}
}

// WithClaudeLogger sets the logger.
func WithClaudeLogger(l *zap.Logger) ClaudeOption {
	return func(d *ClaudeDecider) { d.logger = l }
}

// NewClaudeDecider creates a decider backed by client.
func NewClaudeDecider(client *Client, opts ...ClaudeOption) *ClaudeDecider {
	d := &ClaudeDecider{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(0.5), 2),
		maxTokens: 1024,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Tracker returns the token tracker of the underlying client.
func (d *ClaudeDecider) Tracker() *TokenTracker {
	return d.client.Tracker()
}

// Decide implements Decider.
func (d *ClaudeDecider) Decide(ctx context.Context, dc models.DecisionContext, candidates []models.ActionDescriptor) (Decision, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Decision{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	resp, err := d.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     d.client.Model(),
		MaxTokens: d.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(dc, candidates))),
		},
		Tools: []anthropic.ToolUnionParam{selectActionDefinition(candidates)},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("API call failed: %w", err)
	}
	d.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			if variant.Name != selectActionTool {
				continue
			}
			dec, err := parseSelection([]byte(variant.Input))
			if err != nil {
				return Decision{}, err
			}
			d.logger.Debug("oracle selected action",
				zap.String("action", dec.Action),
				zap.String("reason", dec.Reason))
			return dec, nil
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		}
	}

	return ParseText(text.String())
}

func selectActionDefinition(candidates []models.ActionDescriptor) anthropic.ToolUnionParam {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        selectActionTool,
			Description: anthropic.String("Select the next action to execute"),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"enum":        names,
						"description": "Name of the chosen action",
					},
					"details": map[string]interface{}{
						"type":        "object",
						"description": "Parameters for the action",
					},
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "One sentence on why this action is next",
					},
				},
				Required: []string{"name"},
			},
		},
	}
}

type selection struct {
	Name    string         `json:"name"`
	Action  string         `json:"action"`
	Details map[string]any `json:"details"`
	Reason  string         `json:"reason"`
}

func parseSelection(raw []byte) (Decision, error) {
	var sel selection
	if err := json.Unmarshal(raw, &sel); err != nil {
		return Decision{}, fmt.Errorf("parse selection: %w", err)
	}
	name := sel.Name
	if name == "" {
		name = sel.Action
	}
	if name == "" {
		return Decision{}, fmt.Errorf("selection has no action name: %w", ErrInvalidSelection)
	}
	if sel.Details == nil {
		sel.Details = map[string]any{}
	}
	return Decision{Action: name, Details: sel.Details, Reason: sel.Reason}, nil
}

// ParseText extracts a selection from a free text reply containing a JSON
// object such as {"name": "write_tests", "details": {}}.
func ParseText(text string) (Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Decision{}, fmt.Errorf("no selection in reply: %w", ErrInvalidSelection)
	}
	return parseSelection([]byte(text[start : end+1]))
}

// BuildPrompt renders the decision context for the model.
func BuildPrompt(dc models.DecisionContext, candidates []models.ActionDescriptor) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## State\nstate: %s\n", dc.State)
	if dc.Stage != "" {
		fmt.Fprintf(&sb, "stage: %s\n", dc.Stage)
	}
	if dc.Project != "" {
		fmt.Fprintf(&sb, "project: %s\nversioned: %t\n", dc.Project, dc.IsVersioned)
	}
	if len(dc.Files) > 0 {
		fmt.Fprintf(&sb, "files: %s\n", strings.Join(dc.Files, ", "))
	}
	if len(dc.Recommendation) > 0 {
		fmt.Fprintf(&sb, "recommended: %s\n", strings.Join(dc.Recommendation, ", "))
	}

	m := dc.Metrics
	fmt.Fprintf(&sb, "\n## Metrics\naction_frequency: %.3f\nerror_rate: %.2f\ntest_coverage_proxy: %.2f\ncommit_frequency: %.2f\n",
		m.ActionFrequency, m.ErrorRate, m.TestCoverageProxy, m.CommitFrequency)

	if len(dc.RecentExperiences) > 0 {
		sb.WriteString("\n## Recent experiences\n")
		for _, e := range dc.RecentExperiences {
			fmt.Fprintf(&sb, "- %s: %s -> %s", e.Scenario, e.Action, e.Outcome)
			if e.LessonLearned != "" {
				fmt.Fprintf(&sb, " (%s)", e.LessonLearned)
			}
			sb.WriteString("\n")
		}
	}

	if len(dc.LongTermMemory) > 0 {
		keys := make([]string, 0, len(dc.LongTermMemory))
		for k := range dc.LongTermMemory {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\n## Memory\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %v\n", k, dc.LongTermMemory[k])
		}
	}

	sb.WriteString("\n## Candidates\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s [%s]: %s\n", c.Name, c.Category, c.Description)
	}
	return sb.String()
}
