// Package model defines the domain types used across the application.
package model

import "github.com/google/uuid"

// Post represents a single cast fetched from the post source.
// Timestamp is the source timestamp in RFC 3339 form, normalized to UTC.
type Post struct {
	ID        string `json:"post_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Violation is one recorded rule breach for one post. The pair
// (PostID, Rule) is unique across the store.
type Violation struct {
	ID             int64  `json:"id"`
	PostID         string `json:"post_id"`
	AuthorID       string `json:"author_id"`
	Rule           string `json:"rule_violated"`
	Timestamp      string `json:"timestamp"`
	ContentSnippet string `json:"content_snippet"`
}

// RuleSpec configures one LLM-judged rule for a user.
type RuleSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Delivery carries the backend identifiers attached to outbound violation
// notifications for a user. It has no effect on rule evaluation.
type Delivery struct {
	GroupID       uuid.UUID
	RuleID        uuid.UUID
	WalletAddress string
}
