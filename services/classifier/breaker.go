package classifier

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
)

type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
	CallTimeout time.Duration
}

// guardedClassifier bounds every call with a deadline and stops calling the
// provider after MaxFailures consecutive failures until OpenTimeout passes.
type guardedClassifier struct {
	next        interfaces.Classifier
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
}

func WithBreaker(next interfaces.Classifier, cfg BreakerConfig, log logger.Logger) interfaces.Classifier {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// a cancelled pass says nothing about the provider
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("classifier %s circuit breaker changed from %s to %s", name, from.String(), to.String())
		},
	}
	return &guardedClassifier{
		next:        next,
		cb:          gobreaker.NewCircuitBreaker(settings),
		callTimeout: cfg.CallTimeout,
	}
}

func (g *guardedClassifier) Name() string {
	return g.next.Name()
}

func (g *guardedClassifier) Classify(ctx context.Context, req dto.ClassificationRequest) (*dto.ClassificationResult, error) {
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}

	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Classify(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Wrapf(ErrUnavailable, "%s: %s", g.next.Name(), err.Error())
		}
		return nil, err
	}
	result, _ := res.(*dto.ClassificationResult)
	if result == nil {
		return nil, ErrEmptyResponse
	}
	return result, nil
}

func (g *guardedClassifier) State() gobreaker.State {
	return g.cb.State()
}

func (g *guardedClassifier) Close() error {
	if closer, ok := g.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
