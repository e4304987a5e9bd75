package classifier

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

type openAIClassifier struct {
	client      *openai.Client
	model       string
	maxBodySize int
	log         logger.Logger
}

func NewOpenAIClassifier(cfg *config.ClassifierConfig, log logger.Logger) (interfaces.Classifier, error) {
	if cfg.OpenAIApiKey == "" {
		return nil, errors.Wrap(ErrMissingApiKey, "openai")
	}
	clientConfig := openai.DefaultConfig(cfg.OpenAIApiKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}
	return &openAIClassifier{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.OpenAIModel,
		maxBodySize: cfg.MaxBodySize,
		log:         log,
	}, nil
}

func (c *openAIClassifier) Name() string {
	return enum.ClassifierOpenAI.String()
}

func (c *openAIClassifier) Classify(ctx context.Context, req dto.ClassificationRequest) (*dto.ClassificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OpenAIClassifier.Classify")
	defer span.Finish()
	tracing.TagComponentAnalysis(span)
	span.SetTag("model", c.model)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(req, c.maxBodySize),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "openai chat completion failed")
	}
	if len(resp.Choices) == 0 {
		tracing.TraceErr(span, ErrEmptyResponse)
		return nil, ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	c.log.Debugf("openai classification response: %s", content)

	result, err := parseResult(content)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.LogObjectAsJson(span, "result", result)
	return result, nil
}
