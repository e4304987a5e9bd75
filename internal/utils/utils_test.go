package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailSubject(t *testing.T) {
	tests := map[string]string{
		"Late delivery":           "Late delivery",
		"RE: Late delivery":       "Late delivery",
		"Re: Fwd: Late delivery":  "Late delivery",
		"  fw[2]: Late delivery ": "Late delivery",
		"Re:":                     "",
		"Regarding delivery":      "Regarding delivery",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeEmailSubject(in), in)
	}
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@example.com", NormalizeMessageID(" <abc@example.com> "))
	assert.Equal(t, "abc@example.com", NormalizeMessageID("abc@example.com"))
	assert.Empty(t, NormalizeMessageID(""))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", FirstNonEmpty("", "  ", "b", "c"))
	assert.Empty(t, FirstNonEmpty("", " "))
}

func TestExtractDomainFromEmail(t *testing.T) {
	assert.Equal(t, "example.com", ExtractDomainFromEmail("jane@Example.com"))
	assert.Equal(t, "example.com", ExtractDomainFromEmail("Jane Doe <jane@example.com>"))
	assert.Empty(t, ExtractDomainFromEmail("jane"))
	assert.Empty(t, ExtractDomainFromEmail("jane@"))
	assert.Empty(t, ExtractDomainFromEmail(""))
}

func TestGenerateMessageID(t *testing.T) {
	first := GenerateMessageID("example.com", "jane@example.com")
	second := GenerateMessageID("example.com", "jane@example.com")

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "<"))
	assert.True(t, strings.HasSuffix(first, "@example.com>"))
	local := strings.SplitN(NormalizeMessageID(first), "@", 2)[0]
	assert.Len(t, strings.Split(local, "."), 3)

	assert.True(t, strings.HasSuffix(GenerateMessageID("", ""), "@localhost>"))
}
