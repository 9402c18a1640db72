package persistence

import (
	"context"

	"github.com/asaidimu/go-sieve/core/filter"
)

// DocumentStore persists documents grouped into named collections.
type DocumentStore interface {
	// InsertDocuments stores docs in collection and returns them as stored.
	// A document without an "id" field is given one; the input is not
	// modified.
	InsertDocuments(ctx context.Context, collection string, docs []filter.Document) ([]filter.Document, error)

	// ListDocuments returns the documents of collection in insertion order.
	// An unknown collection yields an empty slice.
	ListDocuments(ctx context.Context, collection string) ([]filter.Document, error)
}

// RuleSetStore persists rule sets.
type RuleSetStore interface {
	// SaveRuleSet inserts rs, or replaces the stored rule set with the same ID.
	SaveRuleSet(ctx context.Context, rs RuleSet) error

	// GetRuleSet returns ErrRuleSetNotFound when id is unknown.
	GetRuleSet(ctx context.Context, id string) (*RuleSet, error)

	// ListRuleSets returns all rule sets ordered by creation time.
	ListRuleSets(ctx context.Context) ([]RuleSet, error)

	// DeleteRuleSet returns ErrRuleSetNotFound when id is unknown.
	DeleteRuleSet(ctx context.Context, id string) error
}

// Store is the storage backend of the persistence service.
type Store interface {
	DocumentStore
	RuleSetStore
}
