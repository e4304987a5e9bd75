package classifier

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpulse/dto"
)

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "short", truncateBody("short", 100))

	long := strings.Repeat("a", 20)
	truncated := truncateBody(long, 10)
	assert.Equal(t, strings.Repeat("a", 10)+truncationNotice, truncated)

	// "ü" is two bytes; cutting at 2 must not split it
	multi := truncateBody("aüüüü", 2)
	assert.True(t, utf8.ValidString(multi))
	assert.True(t, strings.HasPrefix(multi, "a"+truncationNotice))
}

func TestTruncateBody_DefaultLimit(t *testing.T) {
	body := strings.Repeat("x", defaultMaxBodySize+1)
	assert.True(t, strings.HasSuffix(truncateBody(body, 0), truncationNotice))
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(dto.ClassificationRequest{Subject: "Late delivery", Body: "Where is my order?"}, 100)
	assert.Contains(t, prompt, "Email subject: Late delivery")
	assert.Contains(t, prompt, "Where is my order?")
	assert.Contains(t, prompt, "maximum 3 labels")
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *dto.ClassificationResult
		wantErr bool
	}{
		{
			name:  "plain json",
			input: `{"sentiment":"negative","category":"complaint","labels":["delivery","refund"]}`,
			want:  &dto.ClassificationResult{Sentiment: "negative", Category: "complaint", Labels: []string{"delivery", "refund"}},
		},
		{
			name:  "wrapped in prose",
			input: "Here you go:\n```json\n{\"sentiment\":\"positive\",\"category\":\"compliment\",\"labels\":[\"support\"]}\n```",
			want:  &dto.ClassificationResult{Sentiment: "positive", Category: "compliment", Labels: []string{"support"}},
		},
		{name: "empty", input: "   ", wantErr: true},
		{name: "no object", input: "I cannot classify this", wantErr: true},
		{name: "broken object", input: "{sentiment: }", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
