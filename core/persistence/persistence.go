// Package persistence runs the filter engine over stored collections. It
// combines a Store, a filter.Engine and an event bus: every operation emits
// start, success and failure events that callers can subscribe to.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-sieve/core/filter"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persistence is the main implementation of PersistenceInterface.
type Persistence struct {
	store         Store
	engine        *filter.Engine
	logger        *zap.Logger
	subscriptions map[string]*SubscriptionInfo // To store unsubscribe functions
	subMu         sync.RWMutex                 // Mutex to protect subscriptions map
	bus           *events.TypedEventBus[PersistenceEvent]
	now           func() time.Time
}

// NewPersistence creates the service over store. A nil logger discards
// output.
func NewPersistence(store Store, logger *zap.Logger) (*Persistence, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bus, err := events.NewTypedEventBus[PersistenceEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	return &Persistence{
		store:         store,
		engine:        filter.NewEngine(filter.WithLogger(logger.Named("filter"))),
		logger:        logger,
		subscriptions: make(map[string]*SubscriptionInfo),
		bus:           bus,
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}, nil
}

// Insert stores documents in a collection and returns them with their IDs.
func (p *Persistence) Insert(ctx context.Context, collection string, docs []filter.Document) ([]filter.Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return withEventEmission(p, "insert", collection, createEvents, docs, nil, func() ([]filter.Document, error) {
		stored, err := p.store.InsertDocuments(ctx, collection, docs)
		if err != nil {
			return nil, fmt.Errorf("failed to insert documents into %s: %w", collection, err)
		}
		p.logger.Debug("Documents inserted", zap.String("collection", collection), zap.Int("count", len(stored)))
		return stored, nil
	})
}

// Documents returns every document of a collection.
func (p *Persistence) Documents(ctx context.Context, collection string) ([]filter.Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return withEventEmission(p, "read", collection, readEvents, nil, nil, func() ([]filter.Document, error) {
		docs, err := p.store.ListDocuments(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to read documents from %s: %w", collection, err)
		}
		return docs, nil
	})
}

// Query filters the documents of a collection with rules. Each record the
// engine excludes for missing fields is also published as a RecordExcluded
// event.
func (p *Persistence) Query(ctx context.Context, collection string, rules []filter.Rule) (*QueryResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return withEventEmission(p, "filter", collection, filterEvents, nil, filter.Rules(rules), func() (*QueryResult, error) {
		docs, err := p.store.ListDocuments(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to read documents from %s: %w", collection, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		matched, report := p.engine.Evaluate(docs, rules)
		for _, exclusion := range report.Excluded {
			event := createEvent(RecordExcluded, "filter", collection, nil, nil, nil, nil, time.Time{})
			event.Context = map[string]any{"index": exclusion.Index, "missing": exclusion.Missing}
			p.emitEvent(event)
		}

		p.logger.Info("Collection filtered",
			zap.String("collection", collection),
			zap.Int("rules", len(rules)),
			zap.Int("total", report.Total),
			zap.Int("matched", report.Matched),
			zap.Int("excluded", len(report.Excluded)),
		)
		return &QueryResult{Data: matched, Count: len(matched), Report: report}, nil
	})
}

// SaveRuleSet creates a rule set, or updates it when rs.ID names an
// existing one. The stored rule set is returned.
func (p *Persistence) SaveRuleSet(ctx context.Context, rs RuleSet) (*RuleSet, error) {
	rs.Name = strings.TrimSpace(rs.Name)
	rs.Collection = strings.TrimSpace(rs.Collection)
	if rs.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRuleSet)
	}
	if rs.Collection == "" {
		return nil, fmt.Errorf("%w: collection is required", ErrInvalidRuleSet)
	}
	for i, rule := range rs.Rules {
		if rule == nil {
			return nil, fmt.Errorf("%w: rule %d is nil", ErrInvalidRuleSet, i)
		}
	}
	if rs.Rules == nil {
		rs.Rules = filter.Rules{}
	}

	return withEventEmission(p, "save_ruleset", rs.Collection, saveEvents, rs, nil, func() (*RuleSet, error) {
		now := p.now()
		rs.CreatedAt = now
		if rs.ID == "" {
			rs.ID = uuid.New().String()
		} else {
			existing, err := p.store.GetRuleSet(ctx, rs.ID)
			switch {
			case err == nil:
				rs.CreatedAt = existing.CreatedAt
			case !errors.Is(err, ErrRuleSetNotFound):
				return nil, fmt.Errorf("failed to look up rule set %s: %w", rs.ID, err)
			}
		}
		rs.UpdatedAt = now

		if err := p.store.SaveRuleSet(ctx, rs); err != nil {
			return nil, fmt.Errorf("failed to save rule set %s: %w", rs.ID, err)
		}
		p.logger.Info("Rule set saved", zap.String("id", rs.ID), zap.String("name", rs.Name), zap.Int("rules", len(rs.Rules)))
		return &rs, nil
	})
}

// RuleSet returns the rule set with the given ID.
func (p *Persistence) RuleSet(ctx context.Context, id string) (*RuleSet, error) {
	rs, err := p.store.GetRuleSet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule set %s: %w", id, err)
	}
	return rs, nil
}

// RuleSets returns all rule sets.
func (p *Persistence) RuleSets(ctx context.Context) ([]RuleSet, error) {
	sets, err := p.store.ListRuleSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	return sets, nil
}

// DeleteRuleSet removes the rule set with the given ID.
func (p *Persistence) DeleteRuleSet(ctx context.Context, id string) error {
	_, err := withEventEmission(p, "delete_ruleset", "", deleteEvents, id, nil, func() (string, error) {
		if err := p.store.DeleteRuleSet(ctx, id); err != nil {
			return "", fmt.Errorf("failed to delete rule set %s: %w", id, err)
		}
		return id, nil
	})
	return err
}

// ApplyRuleSet filters the rule set's collection with its rules.
func (p *Persistence) ApplyRuleSet(ctx context.Context, id string) (*QueryResult, error) {
	rs, err := p.RuleSet(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, rs.Collection, rs.Rules)
}

// RegisterSubscription registers a callback for a specific persistence event. It returns
// a unique ID that can be used to unregister the subscription later.
func (p *Persistence) RegisterSubscription(options RegisterSubscriptionOptions) string {
	p.subMu.Lock()
	unsubscribe := p.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()
	p.subscriptions[id] = &SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}
	p.subMu.Unlock()

	p.emitEvent(createEvent(SubscriptionRegister, "register_subscription", "",
		map[string]any{"event": options.Event, "label": options.Label},
		map[string]any{"subscriptionId": id}, nil, nil, time.Time{}))
	return id
}

// UnregisterSubscription removes a subscription by its ID.
func (p *Persistence) UnregisterSubscription(id string) {
	p.subMu.Lock()
	info, ok := p.subscriptions[id]
	if ok {
		info.Unsubscribe()
		delete(p.subscriptions, id)
	}
	p.subMu.Unlock()

	if ok {
		p.emitEvent(createEvent(SubscriptionUnregister, "unregister_subscription", "",
			map[string]any{"subscriptionId": id}, nil, nil, nil, time.Time{}))
	}
}

// Subscriptions returns a list of all currently active subscriptions.
func (p *Persistence) Subscriptions() ([]SubscriptionInfo, error) {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(p.subscriptions))
	for _, sub := range p.subscriptions {
		subs = append(subs, *sub)
	}

	return subs, nil
}

func validateCollection(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCollection)
	}
	return nil
}

var _ PersistenceInterface = (*Persistence)(nil)
