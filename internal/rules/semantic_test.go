package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"castmon/internal/llm"
	"castmon/internal/model"
)

// scriptedCompleter returns the configured response per model, recording
// every call.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses map[string]string // model -> body; missing model fails
	calls     []string
}

func (c *scriptedCompleter) Complete(_ context.Context, model string, _ []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, model)
	body, ok := c.responses[model]
	if !ok {
		return "", errors.New("provider unavailable")
	}
	return body, nil
}

func (c *scriptedCompleter) callCount(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.calls {
		if m == model {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOpts(primary string, fallbacks ...string) Options {
	return Options{
		Model:            primary,
		Fallbacks:        fallbacks,
		AttemptsPerModel: 3,
		RetryDelays:      []time.Duration{time.Millisecond},
		Timeout:          time.Second,
	}
}

func TestSemanticRuleVerdicts(t *testing.T) {
	post := model.Post{ID: "p1", AuthorID: "42", Content: "some post"}

	tests := []struct {
		name      string
		responses map[string]string
		opts      Options
		want      bool
	}{
		{
			name:      "violation detected",
			responses: map[string]string{"primary": `{"violates": true, "reason": "lyrics"}`},
			opts:      fastOpts("primary"),
			want:      true,
		},
		{
			name:      "no violation",
			responses: map[string]string{"primary": `{"violates": false, "reason": "clean"}`},
			opts:      fastOpts("primary"),
			want:      false,
		},
		{
			name:      "missing violates field defaults to false",
			responses: map[string]string{"primary": `{"reason": "no opinion"}`},
			opts:      fastOpts("primary"),
			want:      false,
		},
		{
			name:      "all models fail returns default fallback verdict",
			responses: map[string]string{},
			opts:      fastOpts("primary", "backup"),
			want:      false,
		},
		{
			name:      "all models fail returns configured fallback verdict",
			responses: map[string]string{},
			opts: Options{
				Model:            "primary",
				AttemptsPerModel: 2,
				RetryDelays:      []time.Duration{time.Millisecond},
				Timeout:          time.Second,
				FallbackVerdict:  true,
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedCompleter{responses: tt.responses}
			r := NewSemanticRule(c, "Test Rule", "detect bad posts", tt.opts, discardLogger())
			got := r.Check(context.Background(), post)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Check() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSemanticRuleFallbackModel(t *testing.T) {
	c := &scriptedCompleter{responses: map[string]string{
		"backup": `{"violates": true, "reason": "caught by fallback"}`,
	}}
	r := NewSemanticRule(c, "Negativity", "detect negativity", fastOpts("primary", "backup"), discardLogger())

	got := r.Check(context.Background(), model.Post{Content: "ugh"})
	if !got {
		t.Fatal("expected fallback model verdict to be used")
	}

	if n := c.callCount("primary"); n != 3 {
		t.Errorf("primary attempted %d times, want 3", n)
	}
	if n := c.callCount("backup"); n != 1 {
		t.Errorf("backup attempted %d times, want 1", n)
	}
}

func TestSemanticRuleRetriesMalformedJSON(t *testing.T) {
	// Malformed bodies count as failed attempts; the model is exhausted and
	// the fallback verdict applies.
	c := &scriptedCompleter{responses: map[string]string{
		"primary": `not json at all`,
	}}
	r := NewSemanticRule(c, "Rule", "criterion", fastOpts("primary"), discardLogger())

	got := r.Check(context.Background(), model.Post{Content: "hi"})
	if got {
		t.Fatal("expected fallback verdict false")
	}
	if n := c.callCount("primary"); n != 3 {
		t.Errorf("primary attempted %d times, want 3", n)
	}
}

func TestSemanticRuleVerdictFreshPerAttempt(t *testing.T) {
	// Attempt 1 partially decodes (violates is set before the reason field
	// errors); attempt 2 succeeds with no violates field. The verdict must
	// come from the successful body alone and default to false.
	calls := 0
	c := completerFunc(func(_ context.Context, _ string, _ []llm.Message) (string, error) {
		calls++
		if calls == 1 {
			return `{"violates": true, "reason": 123}`, nil
		}
		return `{"reason": "clean"}`, nil
	})
	r := NewSemanticRule(c, "Rule", "criterion", fastOpts("primary"), discardLogger())

	if got := r.Check(context.Background(), model.Post{Content: "hi"}); got {
		t.Fatal("absent violates field must default to false")
	}
	if calls != 2 {
		t.Errorf("completer called %d times, want 2", calls)
	}
}

func TestSemanticRulePrompt(t *testing.T) {
	var captured []llm.Message
	c := completerFunc(func(_ context.Context, _ string, messages []llm.Message) (string, error) {
		captured = messages
		return `{"violates": false}`, nil
	})
	r := NewSemanticRule(c, "Song Lyrics", "Detect posts that are song lyrics", fastOpts("primary"), discardLogger())
	r.Check(context.Background(), model.Post{Content: "never gonna give you up"})

	if len(captured) != 2 {
		t.Fatalf("got %d messages, want 2", len(captured))
	}
	if captured[0].Role != "system" || captured[1].Role != "user" {
		t.Errorf("unexpected roles: %q, %q", captured[0].Role, captured[1].Role)
	}
	wantUser := "Post content: never gonna give you up"
	if diff := cmp.Diff(wantUser, captured[1].Content); diff != "" {
		t.Errorf("user message mismatch (-want +got):\n%s", diff)
	}
}

type completerFunc func(ctx context.Context, model string, messages []llm.Message) (string, error)

func (f completerFunc) Complete(ctx context.Context, model string, messages []llm.Message) (string, error) {
	return f(ctx, model, messages)
}

func TestSemanticRuleCandidates(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		fallbacks []string
		want      []string
	}{
		{
			name:    "no fallbacks",
			primary: "a",
			want:    []string{"a"},
		},
		{
			name:      "fallbacks appended in order",
			primary:   "a",
			fallbacks: []string{"b", "c"},
			want:      []string{"a", "b", "c"},
		},
		{
			name:      "primary duplicate removed",
			primary:   "a",
			fallbacks: []string{"a", "b"},
			want:      []string{"a", "b"},
		},
		{
			name:      "duplicate fallback removed",
			primary:   "a",
			fallbacks: []string{"b", "b", "c"},
			want:      []string{"a", "b", "c"},
		},
		{
			name:      "empty fallback skipped",
			primary:   "a",
			fallbacks: []string{"", "b"},
			want:      []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSemanticRule(nil, "r", "c", fastOpts(tt.primary, tt.fallbacks...), discardLogger())
			if diff := cmp.Diff(tt.want, r.candidates()); diff != "" {
				t.Errorf("candidates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSemanticRuleDescribe(t *testing.T) {
	r := NewSemanticRule(nil, "Song Lyrics", "Detect posts that are song lyrics", fastOpts("m"), discardLogger())
	if diff := cmp.Diff("Song Lyrics", r.Describe()); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}
