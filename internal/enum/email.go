package enum

import "strings"

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

func (s Sentiment) String() string {
	return string(s)
}

func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// ParseSentiment is lenient about case and surrounding whitespace.
func ParseSentiment(value string) (Sentiment, bool) {
	s := Sentiment(strings.ToLower(strings.TrimSpace(value)))
	return s, s.IsValid()
}

type Category string

const (
	CategoryComplaint  Category = "complaint"
	CategorySuggestion Category = "suggestion"
	CategoryInquiry    Category = "inquiry"
	CategoryCompliment Category = "compliment"
	CategoryOther      Category = "other"
)

func (c Category) String() string {
	return string(c)
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryComplaint, CategorySuggestion, CategoryInquiry, CategoryCompliment, CategoryOther:
		return true
	}
	return false
}

// ParseCategory is lenient about case and surrounding whitespace, like
// ParseSentiment.
func ParseCategory(value string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	return c, c.IsValid()
}

type ConnectionState string

const (
	ConnectionDisconnected  ConnectionState = "disconnected"
	ConnectionConnecting    ConnectionState = "connecting"
	ConnectionAuthenticated ConnectionState = "authenticated"
	ConnectionIdle          ConnectionState = "idle"
	ConnectionFetching      ConnectionState = "fetching"
)

func (t ConnectionState) String() string {
	return string(t)
}

type ClassifierProvider string

const (
	ClassifierOpenAI  ClassifierProvider = "openai"
	ClassifierGemini  ClassifierProvider = "gemini"
	ClassifierBedrock ClassifierProvider = "bedrock"
	ClassifierHTTP    ClassifierProvider = "http"
)

func (t ClassifierProvider) String() string {
	return string(t)
}
