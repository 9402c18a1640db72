package filter

import (
	"fmt"

	"github.com/asaidimu/go-sieve/utils"
	"go.uber.org/zap"
)

// Exclusion describes a record dropped because some rule targets did not
// resolve on it.
type Exclusion struct {
	Index   int      `json:"index"`
	Missing []string `json:"missing"`
}

// Report summarises one filter run.
type Report struct {
	Total    int         `json:"total"`
	Matched  int         `json:"matched"`
	Excluded []Exclusion `json:"excluded,omitempty"`
}

// Observer is notified of every excluded record, in input order.
type Observer func(Exclusion)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger that receives exclusion warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers a callback for excluded records.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// Engine applies rule lists to record collections. It holds no state between
// calls and is safe for concurrent use.
type Engine struct {
	logger   *zap.Logger
	observer Observer
}

// NewEngine creates an Engine. Without options it logs nowhere.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine()

// Records filters records with a silent engine.
func Records(records []Document, rules []Rule) []Document {
	return defaultEngine.Apply(records, rules)
}

// Apply returns the records that resolve every rule target and satisfy
// every rule, in input order.
func (e *Engine) Apply(records []Document, rules []Rule) []Document {
	out, _ := Evaluate(e, records, rules)
	return out
}

// Evaluate is Apply with the run's Report.
func (e *Engine) Evaluate(records []Document, rules []Rule) ([]Document, Report) {
	return Evaluate(e, records, rules)
}

// Apply filters a slice of any record shape accepted by Resolve.
func Apply[T any](e *Engine, records []T, rules []Rule) []T {
	out, _ := Evaluate(e, records, rules)
	return out
}

// Evaluate filters records in two phases. Records missing any rule target
// are excluded and reported; the rest are kept when every rule matches. The
// input slice and its records are never modified.
func Evaluate[T any](e *Engine, records []T, rules []Rule) ([]T, Report) {
	kept, report := selectIndices(e, records, rules)
	out := make([]T, 0, len(kept))
	for _, i := range kept {
		out = append(out, records[i])
	}
	return out, report
}

// ApplyStructs filters Go structs by viewing each as a document through its
// JSON encoding. Rule paths therefore use JSON field names.
func ApplyStructs[T any](e *Engine, items []T, rules []Rule) ([]T, error) {
	docs := make([]map[string]any, len(items))
	for i, item := range items {
		doc, err := utils.StructToDocument(item)
		if err != nil {
			return nil, fmt.Errorf("convert item %d: %w", i, err)
		}
		docs[i] = doc
	}

	kept, _ := selectIndices(e, docs, rules)
	out := make([]T, 0, len(kept))
	for _, i := range kept {
		out = append(out, items[i])
	}
	return out, nil
}

// selectIndices returns the indices of the records that pass both phases.
func selectIndices[T any](e *Engine, records []T, rules []Rule) ([]int, Report) {
	if e == nil {
		e = defaultEngine
	}
	report := Report{Total: len(records)}
	kept := make([]int, 0, len(records))

	targets := make([]Path, len(rules))
	for i, rule := range rules {
		targets[i] = target(rule)
	}

	for index, record := range records {
		if missing := missingTargets(record, targets); len(missing) > 0 {
			exclusion := Exclusion{Index: index, Missing: missing}
			report.Excluded = append(report.Excluded, exclusion)
			e.logger.Warn("Record excluded: required fields missing",
				zap.Int("index", index),
				zap.Strings("missing", missing),
			)
			if e.observer != nil {
				e.observer(exclusion)
			}
			continue
		}
		if matchesAll(record, rules) {
			kept = append(kept, index)
		}
	}

	report.Matched = len(kept)
	e.logger.Debug("Filter applied",
		zap.Int("rules", len(rules)),
		zap.Int("total", report.Total),
		zap.Int("matched", report.Matched),
		zap.Int("excluded", len(report.Excluded)),
	)
	return kept, report
}

func missingTargets(record any, targets []Path) []string {
	var missing []string
	for _, path := range targets {
		if _, ok := Resolve(record, path); !ok {
			missing = append(missing, path.String())
		}
	}
	return missing
}

func matchesAll(record any, rules []Rule) bool {
	for _, rule := range rules {
		if !ApplyRule(record, rule) {
			return false
		}
	}
	return true
}
