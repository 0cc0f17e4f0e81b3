package telemetry

import (
	"context"
	"errors"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/telemetry/domain"
)

// EventEmitter emits session lifecycle events (e.g. to Kafka or OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.SessionEvent) error
}

// Multi fans an event out to every non-nil emitter and joins their errors.
func Multi(emitters ...EventEmitter) EventEmitter {
	var list []EventEmitter
	for _, e := range emitters {
		if e != nil {
			list = append(list, e)
		}
	}
	return multiEmitter(list)
}

type multiEmitter []EventEmitter

func (m multiEmitter) Emit(ctx context.Context, event *domain.SessionEvent) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
