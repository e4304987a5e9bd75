package dto

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/internal/enum"
)

const MaxLabels = 3

var ErrMalformedClassification = errors.New("malformed classification result")

type ClassificationRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type ClassificationResult struct {
	Sentiment string   `json:"sentiment"`
	Category  string   `json:"category"`
	Labels    []string `json:"labels"`
}

// Validate normalizes the result in place and rejects results the worker
// must not persist.
func (r *ClassificationResult) Validate() error {
	if r == nil {
		return errors.Wrap(ErrMalformedClassification, "empty result")
	}

	labels := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		labels = append(labels, l)
		if len(labels) == MaxLabels {
			break
		}
	}
	if len(labels) == 0 {
		return errors.Wrap(ErrMalformedClassification, "no labels")
	}
	r.Labels = labels

	sentiment, ok := enum.ParseSentiment(r.Sentiment)
	if !ok {
		return errors.Wrapf(ErrMalformedClassification, "unknown sentiment %q", r.Sentiment)
	}
	category, ok := enum.ParseCategory(r.Category)
	if !ok {
		return errors.Wrapf(ErrMalformedClassification, "unknown category %q", r.Category)
	}
	r.Sentiment = sentiment.String()
	r.Category = category.String()
	return nil
}

func (r *ClassificationResult) SentimentValue() enum.Sentiment {
	s, _ := enum.ParseSentiment(r.Sentiment)
	return s
}

func (r *ClassificationResult) CategoryValue() enum.Category {
	c, _ := enum.ParseCategory(r.Category)
	return c
}

type MailRecordFilter struct {
	Label     string
	Sentiment string
	Limit     int
}

type RecordCounts struct {
	Total        int64 `json:"total"`
	Classified   int64 `json:"classified"`
	Unclassified int64 `json:"unclassified"`
}
