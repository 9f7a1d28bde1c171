package repository

import (
	"context"
	"errors"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
)

// MultiRecorder writes every event to all sinks. One failing sink does not stop the others.
type MultiRecorder struct {
	sinks []domrepo.DecisionRecorder
}

func NewMultiRecorder(sinks ...domrepo.DecisionRecorder) *MultiRecorder {
	out := make([]domrepo.DecisionRecorder, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiRecorder{sinks: out}
}

func (m *MultiRecorder) Record(ctx context.Context, ev *models.DecisionEvent) error {
	if ev == nil {
		return nil
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiRecorder) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports how many sinks are attached.
func (m *MultiRecorder) Len() int { return len(m.sinks) }
