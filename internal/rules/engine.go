package rules

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"castmon/internal/model"
)

// RuleSet is the ordered collection of rules configured for one user.
type RuleSet struct {
	UserID string
	rules  []Rule
}

// NewRuleSet creates a rule set for userID.
func NewRuleSet(userID string, rs []Rule) *RuleSet {
	return &RuleSet{UserID: userID, rules: rs}
}

// Rules returns the owned rules in configured order.
func (s *RuleSet) Rules() []Rule {
	return s.rules
}

// Check evaluates every rule against the post and returns the descriptions
// of all violated rules in configured order. There is no short-circuit: each
// rule always runs so a single pass captures every violation.
func (s *RuleSet) Check(ctx context.Context, post model.Post) []string {
	var violated []string
	for _, r := range s.rules {
		if r.Check(ctx, post) {
			violated = append(violated, r.Describe())
		}
	}
	return violated
}

// Engine routes posts to the rule set registered for their author.
// All state is instance-local so independent engines can coexist.
type Engine struct {
	mu    sync.RWMutex
	users map[string]*RuleSet
	log   *slog.Logger
}

// NewEngine creates an empty engine.
func NewEngine(log *slog.Logger) *Engine {
	return &Engine{
		users: make(map[string]*RuleSet),
		log:   log,
	}
}

// SetUserRules registers rules for a user, replacing any existing rule set.
// Registration is last-write-wins, not additive.
func (e *Engine) SetUserRules(userID string, rs []Rule) {
	e.mu.Lock()
	e.users[userID] = NewRuleSet(userID, rs)
	e.mu.Unlock()
	e.log.Info("configured user rules", "user_id", userID, "rules", len(rs))
}

// UserRules returns the rule set for userID, if registered.
func (e *Engine) UserRules(userID string) (*RuleSet, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rs, ok := e.users[userID]
	return rs, ok
}

// UserIDs returns every registered user id in sorted order.
func (e *Engine) UserIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.users))
	for id := range e.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CheckPost evaluates the post against its author's rule set. Posts from
// authors with no registered rules yield no violations.
func (e *Engine) CheckPost(ctx context.Context, post model.Post) []string {
	rs, ok := e.UserRules(post.AuthorID)
	if !ok {
		return nil
	}
	return rs.Check(ctx, post)
}
