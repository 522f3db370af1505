// Package observe carries best-effort lifecycle events out of the agents.
package observe

import (
	"fmt"

	"go.uber.org/zap"
)

// Observer receives lifecycle events. Implementations may fail; callers
// should wrap them with Safe so failures never reach control flow.
type Observer interface {
	Log(ticketID, event string, payload map[string]any) error
}

// Func adapts a function to the Observer interface.
type Func func(ticketID, event string, payload map[string]any) error

// Log calls f.
func (f Func) Log(ticketID, event string, payload map[string]any) error {
	return f(ticketID, event, payload)
}

// Nop discards every event.
type Nop struct{}

// Log implements Observer.
func (Nop) Log(string, string, map[string]any) error { return nil }

// Safe guards an observer: errors are logged and panics recovered.
type Safe struct {
	inner Observer
}

// NewSafe wraps o. A nil observer yields a Safe that drops everything.
func NewSafe(o Observer) *Safe {
	if s, ok := o.(*Safe); ok {
		return s
	}
	return &Safe{inner: o}
}

// Emit delivers an event, swallowing any failure.
func (s *Safe) Emit(ticketID, event string, payload map[string]any) {
	if s == nil || s.inner == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("observe: observer panicked",
				zap.String("ticket_id", ticketID),
				zap.String("event", event),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	if err := s.inner.Log(ticketID, event, payload); err != nil {
		zap.L().Warn("observe: observer failed",
			zap.String("ticket_id", ticketID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// Log implements Observer so a Safe can be nested in Multi.
func (s *Safe) Log(ticketID, event string, payload map[string]any) error {
	s.Emit(ticketID, event, payload)
	return nil
}

// Multi fans events out to several observers. Each one is guarded so a
// failing observer does not starve the rest.
type Multi []Observer

// Log implements Observer.
func (m Multi) Log(ticketID, event string, payload map[string]any) error {
	for _, o := range m {
		if o == nil {
			continue
		}
		NewSafe(o).Emit(ticketID, event, payload)
	}
	return nil
}

// Zap logs each event at debug level.
type Zap struct {
	Logger *zap.Logger
}

// Log implements Observer.
func (z Zap) Log(ticketID, event string, payload map[string]any) error {
	log := z.Logger
	if log == nil {
		log = zap.L()
	}
	log.Debug("observe: "+event,
		zap.String("ticket_id", ticketID),
		zap.Any("payload", payload),
	)
	return nil
}
