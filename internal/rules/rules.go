// Package rules implements the per-user moderation rule engine.
package rules

import (
	"context"
	"fmt"
	"strings"

	"castmon/internal/model"
)

// Rule is one moderation check. The set of implementations is closed:
// WordsRule and SemanticRule.
type Rule interface {
	// Check reports whether the post violates the rule.
	Check(ctx context.Context, post model.Post) bool
	// Describe returns the stable description recorded with a violation.
	Describe() string
}

// WordsRule flags posts containing any of the configured forbidden words.
// Matching is case-insensitive and whole-word only: both the content and
// each word are padded with spaces before the substring comparison, so
// "spam" does not match inside "spammer".
type WordsRule struct {
	words []string
}

// NewWordsRule creates a rule from a list of forbidden words.
func NewWordsRule(words []string) *WordsRule {
	lowered := make([]string, len(words))
	for i, w := range words {
		lowered[i] = strings.ToLower(w)
	}
	return &WordsRule{words: lowered}
}

// Check reports whether the post contains a forbidden word.
func (r *WordsRule) Check(_ context.Context, post model.Post) bool {
	content := " " + strings.ToLower(post.Content) + " "
	for _, w := range r.words {
		if strings.Contains(content, " "+w+" ") {
			return true
		}
	}
	return false
}

// Describe returns the violation description for this rule.
func (r *WordsRule) Describe() string {
	return fmt.Sprintf("Used forbidden word (%s)", strings.Join(r.words, "/"))
}
