package classifier

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

type geminiClassifier struct {
	client      *genai.Client
	model       string
	maxBodySize int
	log         logger.Logger
}

func NewGeminiClassifier(ctx context.Context, cfg *config.ClassifierConfig, log logger.Logger) (interfaces.Classifier, error) {
	if cfg.GeminiApiKey == "" {
		return nil, errors.Wrap(ErrMissingApiKey, "gemini")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.GeminiApiKey)}
	if cfg.GeminiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.GeminiEndpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}
	return &geminiClassifier{
		client:      client,
		model:       cfg.GeminiModel,
		maxBodySize: cfg.MaxBodySize,
		log:         log,
	}, nil
}

func (c *geminiClassifier) Name() string {
	return enum.ClassifierGemini.String()
}

func (c *geminiClassifier) Classify(ctx context.Context, req dto.ClassificationRequest) (*dto.ClassificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GeminiClassifier.Classify")
	defer span.Finish()
	tracing.TagComponentAnalysis(span)
	span.SetTag("model", c.model)

	model := c.client.GenerativeModel(c.model)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(req, c.maxBodySize)))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "gemini generate content failed")
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	c.log.Debugf("gemini classification response: %s", sb.String())

	result, err := parseResult(sb.String())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

func (c *geminiClassifier) Close() error {
	return c.client.Close()
}
