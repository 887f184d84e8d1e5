package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"castmon/internal/llm"
	"castmon/internal/model"
)

// Options tunes semantic rule evaluation. Zero values fall back to the
// documented defaults.
type Options struct {
	// Model is the primary model name. Required.
	Model string
	// Fallbacks are tried in order after the primary is exhausted.
	Fallbacks []string
	// AttemptsPerModel is the number of completion calls per model (default 3).
	AttemptsPerModel int
	// RetryDelays is the delay sequence between attempts on the same model
	// (default 15s, 20s). The last value is reused when attempts outnumber
	// delays.
	RetryDelays []time.Duration
	// Timeout bounds each completion call (default 45s).
	Timeout time.Duration
	// FallbackVerdict is returned when every model exhausts every attempt
	// (default false: no violation).
	FallbackVerdict bool
}

func (o Options) withDefaults() Options {
	if o.AttemptsPerModel < 1 {
		o.AttemptsPerModel = 3
	}
	if len(o.RetryDelays) == 0 {
		o.RetryDelays = []time.Duration{15 * time.Second, 20 * time.Second}
	}
	if o.Timeout <= 0 {
		o.Timeout = 45 * time.Second
	}
	return o
}

// SemanticRule asks an LLM whether a post violates a natural-language
// criterion. Evaluation never fails: if every candidate model is exhausted
// the configured fallback verdict is returned.
type SemanticRule struct {
	name      string
	criterion string
	completer llm.Completer
	opts      Options
	log       *slog.Logger
}

// NewSemanticRule creates a rule named name that judges posts against the
// given criterion through completer.
func NewSemanticRule(completer llm.Completer, name, criterion string, opts Options, log *slog.Logger) *SemanticRule {
	return &SemanticRule{
		name:      name,
		criterion: criterion,
		completer: completer,
		opts:      opts.withDefaults(),
		log:       log,
	}
}

type verdict struct {
	Violates bool   `json:"violates"`
	Reason   string `json:"reason"`
}

// Check evaluates the post. The first successfully parsed response decides;
// a missing "violates" field counts as no violation.
func (r *SemanticRule) Check(ctx context.Context, post model.Post) bool {
	messages := []llm.Message{
		{
			Role: "system",
			Content: fmt.Sprintf(`You are a content moderator. Analyze if the following post violates this rule:
%s

Respond with a JSON object: {"violates": true/false, "reason": "brief explanation"}`, r.criterion),
		},
		{
			Role:    "user",
			Content: "Post content: " + post.Content,
		},
	}

	for _, modelName := range r.candidates() {
		var result verdict
		attempt := func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()

			body, err := r.completer.Complete(cctx, modelName, messages)
			if err != nil {
				return retry.RetryableError(err)
			}
			// Decode into a fresh value: a partially decoded body from a
			// failed attempt must not leak into a later attempt's verdict.
			var v verdict
			if err := json.Unmarshal([]byte(body), &v); err != nil {
				return retry.RetryableError(fmt.Errorf("decode verdict: %w", err))
			}
			result = v
			return nil
		}

		if err := retry.Do(ctx, r.backoff(), attempt); err != nil {
			r.log.Warn("model exhausted", "rule", r.name, "model", modelName, "error", err)
			continue
		}
		return result.Violates
	}

	r.log.Warn("all models exhausted, using fallback verdict",
		"rule", r.name, "verdict", r.opts.FallbackVerdict)
	return r.opts.FallbackVerdict
}

// Describe returns the configured rule name.
func (r *SemanticRule) Describe() string {
	return r.name
}

// candidates returns the primary model followed by each fallback not equal
// to the primary, duplicates removed, in configured order.
func (r *SemanticRule) candidates() []string {
	out := []string{r.opts.Model}
	seen := map[string]bool{r.opts.Model: true}
	for _, m := range r.opts.Fallbacks {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// backoff walks the configured delay sequence, reusing the last value, and
// caps total attempts at AttemptsPerModel.
func (r *SemanticRule) backoff() retry.Backoff {
	next := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		i := next
		if i >= len(r.opts.RetryDelays) {
			i = len(r.opts.RetryDelays) - 1
		}
		next++
		return r.opts.RetryDelays[i], false
	})
	return retry.WithMaxRetries(uint64(r.opts.AttemptsPerModel-1), b)
}
