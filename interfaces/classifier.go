package interfaces

import (
	"context"

	"github.com/customeros/mailpulse/dto"
)

type Classifier interface {
	Name() string
	Classify(ctx context.Context, req dto.ClassificationRequest) (*dto.ClassificationResult, error)
}
