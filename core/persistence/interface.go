package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/asaidimu/go-sieve/core/filter"
)

var (
	// ErrRuleSetNotFound is returned when no rule set has the requested ID.
	ErrRuleSetNotFound = errors.New("rule set not found")
	// ErrInvalidRuleSet is returned when a rule set lacks a name or collection.
	ErrInvalidRuleSet = errors.New("invalid rule set")
	// ErrInvalidCollection is returned for an empty collection name.
	ErrInvalidCollection = errors.New("invalid collection name")
)

type PersistenceEventType string

const (
	DocumentCreateStart   PersistenceEventType = "document:create:start"
	DocumentCreateSuccess PersistenceEventType = "document:create:success"
	DocumentCreateFailed  PersistenceEventType = "document:create:failed"
	DocumentReadStart     PersistenceEventType = "document:read:start"
	DocumentReadSuccess   PersistenceEventType = "document:read:success"
	DocumentReadFailed    PersistenceEventType = "document:read:failed"

	FilterStart    PersistenceEventType = "filter:start"
	FilterSuccess  PersistenceEventType = "filter:success"
	FilterFailed   PersistenceEventType = "filter:failed"
	RecordExcluded PersistenceEventType = "filter:record:excluded"

	RuleSetSaveStart     PersistenceEventType = "ruleset:save:start"
	RuleSetSaveSuccess   PersistenceEventType = "ruleset:save:success"
	RuleSetSaveFailed    PersistenceEventType = "ruleset:save:failed"
	RuleSetDeleteStart   PersistenceEventType = "ruleset:delete:start"
	RuleSetDeleteSuccess PersistenceEventType = "ruleset:delete:success"
	RuleSetDeleteFailed  PersistenceEventType = "ruleset:delete:failed"

	SubscriptionRegister   PersistenceEventType = "subscription:register"
	SubscriptionUnregister PersistenceEventType = "subscription:unregister"
)

// PersistenceEvent is published on the event bus for every service operation.
type PersistenceEvent struct {
	Type       PersistenceEventType `json:"type"`                 // e.g. 'filter:success'
	Timestamp  int64                `json:"timestamp"`            // Unix milliseconds.
	Operation  string               `json:"operation"`            // e.g. 'filter', 'insert'.
	Collection *string              `json:"collection,omitempty"` // Collection affected, if any.
	Input      any                  `json:"input,omitempty"`
	Output     any                  `json:"output,omitempty"`
	Error      *string              `json:"error,omitempty"`
	Query      any                  `json:"query,omitempty"` // Rules used by a filter run.
	Duration   *int64               `json:"duration,omitempty"`
	Context    map[string]any       `json:"context,omitempty"`
}

type EventCallbackFunction func(ctx context.Context, event PersistenceEvent) error

// SubscriptionInfo describes an active subscription.
type SubscriptionInfo struct {
	Id          *string              `json:"id"`
	Event       PersistenceEventType `json:"event"`
	Label       *string              `json:"label,omitempty"`
	Description *string              `json:"description,omitempty"`
	Unsubscribe func()               `json:"-"`
}

// RegisterSubscriptionOptions defines options for registering a subscription.
type RegisterSubscriptionOptions struct {
	Event       PersistenceEventType `json:"event"`
	Label       *string              `json:"label,omitempty"`
	Description *string              `json:"description,omitempty"`
	Callback    EventCallbackFunction
}

// RuleSet is a named, stored list of rules bound to one collection.
type RuleSet struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Collection string       `json:"collection"`
	Rules      filter.Rules `json:"rules"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// QueryResult is the outcome of filtering a collection.
type QueryResult struct {
	Data   []filter.Document `json:"documents"`
	Count  int               `json:"count"`
	Report filter.Report     `json:"report"`
}

// PersistenceInterface is the service the HTTP API and examples program
// against.
type PersistenceInterface interface {
	Insert(ctx context.Context, collection string, docs []filter.Document) ([]filter.Document, error)
	Documents(ctx context.Context, collection string) ([]filter.Document, error)
	Query(ctx context.Context, collection string, rules []filter.Rule) (*QueryResult, error)

	SaveRuleSet(ctx context.Context, rs RuleSet) (*RuleSet, error)
	RuleSet(ctx context.Context, id string) (*RuleSet, error)
	RuleSets(ctx context.Context) ([]RuleSet, error)
	DeleteRuleSet(ctx context.Context, id string) error
	ApplyRuleSet(ctx context.Context, id string) (*QueryResult, error)

	RegisterSubscription(options RegisterSubscriptionOptions) string
	UnregisterSubscription(id string)
	Subscriptions() ([]SubscriptionInfo, error)
}
