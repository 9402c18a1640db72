package persistence

import (
	"time"
)

// operationEvents names the events emitted around one operation.
type operationEvents struct {
	start   PersistenceEventType
	success PersistenceEventType
	failed  PersistenceEventType
}

var (
	createEvents = operationEvents{DocumentCreateStart, DocumentCreateSuccess, DocumentCreateFailed}
	readEvents   = operationEvents{DocumentReadStart, DocumentReadSuccess, DocumentReadFailed}
	filterEvents = operationEvents{FilterStart, FilterSuccess, FilterFailed}
	saveEvents   = operationEvents{RuleSetSaveStart, RuleSetSaveSuccess, RuleSetSaveFailed}
	deleteEvents = operationEvents{RuleSetDeleteStart, RuleSetDeleteSuccess, RuleSetDeleteFailed}
)

// emitEvent is a helper method to emit events
func (p *Persistence) emitEvent(event PersistenceEvent) {
	if p.bus != nil {
		p.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps an operation with start, success, and failure events
func withEventEmission[T any](
	p *Persistence,
	operation string,
	collection string,
	kinds operationEvents,
	input any,
	queryParam any,
	fn func() (T, error),
) (T, error) {
	startTime := time.Now()

	p.emitEvent(createEvent(kinds.start, operation, collection, input, nil, queryParam, nil, startTime))

	result, err := fn()
	if err != nil {
		errStr := err.Error()
		p.emitEvent(createEvent(kinds.failed, operation, collection, input, nil, queryParam, &errStr, startTime))
		var zero T
		return zero, err
	}

	p.emitEvent(createEvent(kinds.success, operation, collection, input, result, queryParam, nil, startTime))
	return result, nil
}
