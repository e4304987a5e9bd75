package classifier

import (
	"context"

	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
)

// New builds the configured provider wrapped in a circuit breaker.
func New(ctx context.Context, cfg *config.ClassifierConfig, log logger.Logger) (interfaces.Classifier, error) {
	var (
		provider interfaces.Classifier
		err      error
	)

	switch cfg.Provider {
	case enum.ClassifierOpenAI:
		provider, err = NewOpenAIClassifier(cfg, log)
	case enum.ClassifierGemini:
		provider, err = NewGeminiClassifier(ctx, cfg, log)
	case enum.ClassifierBedrock:
		provider, err = NewBedrockClassifier(ctx, cfg, log)
	case enum.ClassifierHTTP:
		provider, err = NewGatewayClassifier(cfg, log)
	default:
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	log.Infof("classifier provider %s initialized", provider.Name())
	return WithBreaker(provider, BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerTimeout,
		CallTimeout: cfg.Timeout,
	}, log), nil
}
