package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

const (
	anthropicVersion   = "bedrock-2023-05-31"
	bedrockMaxTokens   = 512
	bedrockTemperature = 0.1
)

type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockClassifier struct {
	client      bedrockInvoker
	modelID     string
	maxBodySize int
	log         logger.Logger
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

func NewBedrockClassifier(ctx context.Context, cfg *config.ClassifierConfig, log logger.Logger) (interfaces.Classifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws config")
	}
	return newBedrockClassifier(bedrockruntime.NewFromConfig(awsCfg), cfg, log), nil
}

func newBedrockClassifier(client bedrockInvoker, cfg *config.ClassifierConfig, log logger.Logger) *bedrockClassifier {
	return &bedrockClassifier{
		client:      client,
		modelID:     cfg.BedrockModelID,
		maxBodySize: cfg.MaxBodySize,
		log:         log,
	}
}

func (c *bedrockClassifier) Name() string {
	return enum.ClassifierBedrock.String()
}

func (c *bedrockClassifier) Classify(ctx context.Context, req dto.ClassificationRequest) (*dto.ClassificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BedrockClassifier.Classify")
	defer span.Finish()
	tracing.TagComponentAnalysis(span)
	span.SetTag("model", c.modelID)

	payload, err := json.Marshal(anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        bedrockMaxTokens,
		Temperature:      bedrockTemperature,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: buildPrompt(req, c.maxBodySize)}},
			},
		},
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to marshal bedrock payload")
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to invoke bedrock model")
	}

	var out anthropicResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to decode bedrock response")
	}

	var sb strings.Builder
	for _, content := range out.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}
	c.log.Debugf("bedrock classification response: %s", sb.String())

	result, err := parseResult(sb.String())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}
