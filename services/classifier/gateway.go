package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

const gatewayApiKeyHeader = "X-CLASSIFIER-API-KEY"

// gatewayClassifier posts {subject, body} to an internal AI service and
// expects {sentiment, category, labels} back.
type gatewayClassifier struct {
	url         string
	apiKey      string
	maxBodySize int
	client      *http.Client
	log         logger.Logger
}

func NewGatewayClassifier(cfg *config.ClassifierConfig, log logger.Logger) (interfaces.Classifier, error) {
	if cfg.HTTPUrl == "" {
		return nil, ErrMissingEndpoint
	}
	return &gatewayClassifier{
		url:         cfg.HTTPUrl,
		apiKey:      cfg.HTTPApiKey,
		maxBodySize: cfg.MaxBodySize,
		client:      &http.Client{Timeout: cfg.Timeout},
		log:         log,
	}, nil
}

func (c *gatewayClassifier) Name() string {
	return enum.ClassifierHTTP.String()
}

func (c *gatewayClassifier) Classify(ctx context.Context, req dto.ClassificationRequest) (*dto.ClassificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GatewayClassifier.Classify")
	defer span.Finish()
	tracing.TagComponentAnalysis(span)

	req.Body = truncateBody(req.Body, c.maxBodySize)
	payload, err := json.Marshal(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(payload))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(gatewayApiKeyHeader, c.apiKey)
	}
	httpReq = tracing.InjectSpanContextIntoHTTPRequest(httpReq, span)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, string(body))
		tracing.TraceErr(span, err)
		return nil, err
	}

	result, err := parseResult(string(body))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.LogObjectAsJson(span, "result", result)
	return result, nil
}
