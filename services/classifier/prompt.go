package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/dto"
)

const (
	defaultMaxBodySize = 8000
	truncationNotice   = "\n[... Content truncated due to size limits ...]"
)

var (
	ErrUnknownProvider = errors.New("unknown classifier provider")
	ErrEmptyResponse   = errors.New("empty classifier response")
	ErrUnavailable     = errors.New("classifier unavailable")
	ErrMissingEndpoint = errors.New("classifier endpoint not configured")
	ErrMissingApiKey   = errors.New("classifier api key not configured")
	errNoJSONObject    = errors.New("no json object in classifier response")
)

const promptFormat = `Analyze this email and provide:
1. Sentiment (positive/negative/neutral)
2. Category (complaint/suggestion/inquiry/compliment/other)
3. Key topics (as labels, maximum 3 labels, in English)

Email subject: %s
Email content:
%s

Respond in JSON format with these fields: sentiment, category, labels`

func buildPrompt(req dto.ClassificationRequest, maxBodySize int) string {
	return fmt.Sprintf(promptFormat, req.Subject, truncateBody(req.Body, maxBodySize))
}

// truncateBody cuts body to at most maxBodySize bytes on a rune boundary.
func truncateBody(body string, maxBodySize int) string {
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	if len(body) <= maxBodySize {
		return body
	}
	cut := maxBodySize
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + truncationNotice
}

// parseResult decodes the model output. Models sometimes wrap the object in
// prose or code fences, so the outermost braces are tried as a fallback.
func parseResult(text string) (*dto.ClassificationResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var result dto.ClassificationResult
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return &result, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSONObject
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode classifier response")
	}
	return &result, nil
}
