// Package monitor orchestrates monitoring passes over configured users.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"castmon/internal/farcaster"
	"castmon/internal/llm"
	"castmon/internal/model"
	"castmon/internal/rules"
	"castmon/internal/storage"
	"castmon/internal/webhook"
)

// Notifier receives one event per newly recorded violation.
type Notifier interface {
	Submit(webhook.Event)
}

// Monitor runs the fetch → scan → persist → notify pipeline. Per-user and
// per-post failures are logged and isolated; the pipeline itself never
// returns an error past the monitoring entry points.
type Monitor struct {
	engine    *rules.Engine
	store     storage.Storage
	source    farcaster.Source
	completer llm.Completer
	ruleOpts  rules.Options
	notifier  Notifier
	log       *slog.Logger

	mu         sync.RWMutex
	deliveries map[string]model.Delivery
}

// New creates a Monitor. notifier may be nil when no webhook is configured.
func New(engine *rules.Engine, store storage.Storage, source farcaster.Source,
	completer llm.Completer, opts rules.Options, notifier Notifier, log *slog.Logger) *Monitor {
	return &Monitor{
		engine:     engine,
		store:      store,
		source:     source,
		completer:  completer,
		ruleOpts:   opts,
		notifier:   notifier,
		log:        log,
		deliveries: make(map[string]model.Delivery),
	}
}

// AddUserWithRules configures moderation rules for a user, replacing any
// previous configuration (last write wins). delivery, when non-nil, is
// attached to outbound notifications for this user and has no effect on
// whether violations are recorded.
func (m *Monitor) AddUserWithRules(userID string, words []string, specs []model.RuleSpec, delivery *model.Delivery) {
	var rs []rules.Rule
	if len(words) > 0 {
		rs = append(rs, rules.NewWordsRule(words))
	}
	for _, spec := range specs {
		rs = append(rs, rules.NewSemanticRule(m.completer, spec.Name, spec.Description, m.ruleOpts, m.log))
	}
	m.engine.SetUserRules(userID, rs)

	m.mu.Lock()
	if delivery != nil {
		m.deliveries[userID] = *delivery
	} else {
		delete(m.deliveries, userID)
	}
	m.mu.Unlock()
}

// UserConfig is the JSON shape used to configure one user, shared by the
// HTTP API and the users-file loaded by cmd/monitor.
type UserConfig struct {
	UserID         string           `json:"user_id"`
	ForbiddenWords []string         `json:"forbidden_words,omitempty"`
	LLMRules       []model.RuleSpec `json:"llm_rules,omitempty"`
	GroupID        string           `json:"group_id,omitempty"`
	RuleID         string           `json:"rule_id,omitempty"`
	WalletAddress  string           `json:"wallet_address,omitempty"`
}

// Configure applies a batch of user configurations.
func (m *Monitor) Configure(users []UserConfig) error {
	for _, u := range users {
		if u.UserID == "" {
			return fmt.Errorf("user_id is required")
		}
		delivery, err := u.delivery()
		if err != nil {
			return fmt.Errorf("user %s: %w", u.UserID, err)
		}
		m.AddUserWithRules(u.UserID, u.ForbiddenWords, u.LLMRules, delivery)
	}
	return nil
}

func (u UserConfig) delivery() (*model.Delivery, error) {
	if u.GroupID == "" && u.RuleID == "" && u.WalletAddress == "" {
		return nil, nil
	}
	var d model.Delivery
	var err error
	if u.GroupID != "" {
		if d.GroupID, err = uuid.Parse(u.GroupID); err != nil {
			return nil, fmt.Errorf("invalid group_id: %w", err)
		}
	}
	if u.RuleID != "" {
		if d.RuleID, err = uuid.Parse(u.RuleID); err != nil {
			return nil, fmt.Errorf("invalid rule_id: %w", err)
		}
	}
	d.WalletAddress = u.WalletAddress
	return &d, nil
}

// MonitorUser scans one user's casts from the last days days and returns the
// number of newly recorded violations. A fetch failure ends the pass for this
// user with zero violations; it never propagates.
func (m *Monitor) MonitorUser(ctx context.Context, fid int64, days int) int {
	m.log.Info("monitoring user", "fid", fid, "days", days)

	posts, err := m.source.UserCasts(ctx, fid, days)
	if err != nil {
		m.log.Error("fetch casts", "fid", fid, "error", err)
		return 0
	}
	if len(posts) == 0 {
		m.log.Info("no casts to analyze", "fid", fid)
		return 0
	}

	m.log.Debug("scanning casts", "fid", fid, "count", len(posts))

	found := 0
	for _, post := range posts {
		for _, desc := range m.engine.CheckPost(ctx, post) {
			created, err := m.store.AddViolation(ctx, model.Violation{
				PostID:         post.ID,
				AuthorID:       post.AuthorID,
				Rule:           desc,
				Timestamp:      post.Timestamp,
				ContentSnippet: post.Content,
			})
			if err != nil {
				m.log.Error("record violation", "post_id", post.ID, "rule", desc, "error", err)
				continue
			}
			if !created {
				continue
			}
			found++
			m.log.Info("violation recorded", "post_id", post.ID, "rule", desc)
			m.notify(post, desc)
		}
	}

	m.log.Info("analysis complete", "fid", fid, "new_violations", found)
	return found
}

// MonitorAllUsers scans every registered user and returns per-user violation
// counts. User ids that are not numeric FIDs are skipped with a warning.
func (m *Monitor) MonitorAllUsers(ctx context.Context, days int) map[string]int {
	results := make(map[string]int)
	for _, userID := range m.engine.UserIDs() {
		fid, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			m.log.Warn("skipping invalid FID", "user_id", userID)
			continue
		}
		results[userID] = m.MonitorUser(ctx, fid, days)
	}
	return results
}

// Run repeatedly monitors all users every interval until ctx is cancelled.
// A pass runs immediately on start.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, days int) {
	m.MonitorAllUsers(ctx, days)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.MonitorAllUsers(ctx, days)
		}
	}
}

func (m *Monitor) notify(post model.Post, desc string) {
	if m.notifier == nil {
		return
	}
	m.mu.RLock()
	d := m.deliveries[post.AuthorID]
	m.mu.RUnlock()

	m.notifier.Submit(webhook.Event{
		GroupID:       d.GroupID,
		MemberFID:     post.AuthorID,
		MemberAddress: d.WalletAddress,
		RuleID:        d.RuleID,
		ViolationType: desc,
		Evidence:      post.Content,
		CastHash:      post.ID,
		DetectedAt:    post.Timestamp,
	})
}
