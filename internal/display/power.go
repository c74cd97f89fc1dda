package display

import (
	"context"
	"fmt"
	"sync"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
)

// PowerSetter switches the secondary display on or off.
type PowerSetter interface {
	SetPower(ctx context.Context, on bool) error
}

// Power tries each strategy in order and stops at the first that succeeds.
type Power struct {
	strategies []Strategy
	last       string
	log        logger.Logger
	mu         sync.Mutex
}

func NewPower(strategies []Strategy, log logger.Logger) *Power {
	return &Power{strategies: strategies, log: log}
}

func (p *Power) SetPower(ctx context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, s := range p.strategies {
		if err := s.SetPower(ctx, on); err != nil {
			p.log.Debug().Str("method", s.Name()).Err(err).Msg("Display power method failed")
			errs = append(errs, err)
			continue
		}
		if p.last != s.Name() {
			p.log.Debug().Str("method", s.Name()).Msg("Display power method selected")
		}
		p.last = s.Name()

		return nil
	}

	return errors.New().Wrap(ErrTotalFailure, errors.Join(errs...)).
		WithMessage(fmt.Sprintf("all %d display power methods failed", len(p.strategies)))
}

// LastMethod returns the name of the most recent successful strategy.
func (p *Power) LastMethod() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
