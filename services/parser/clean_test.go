package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanBody(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "boundary and part headers",
			input:    "--Boundary123\nContent-Type: text/plain\n\nActual message body here that is long enough",
			expected: "Actual message body here that is long enough",
		},
		{
			name:     "closing boundary and transfer encoding",
			input:    "--abc\r\nContent-Type: text/plain;\r\n charset=\"utf-8\"\r\nContent-Transfer-Encoding: 7bit\r\n\r\nHello team\r\n--abc--\r\n",
			expected: "Hello team",
		},
		{
			name:     "blank runs collapse",
			input:    "first\n\n\n   \nsecond",
			expected: "first\n\nsecond",
		},
		{
			name:     "html is flattened",
			input:    "<div>Hello<br/>World</div>",
			expected: "Hello World",
		},
		{
			name:     "script and style are dropped",
			input:    "<html><head><style>p{}</style></head><body><p>Visible &amp; kept</p><script>x()</script></body></html>",
			expected: "Visible & kept",
		},
		{
			name:     "any element name triggers stripping",
			input:    "<section>Hello</section><article>World</article>",
			expected: "Hello World",
		},
		{
			name:     "namespaced office tags",
			input:    "<o:p>Hello</o:p> <label>World</label>",
			expected: "Hello World",
		},
		{
			name:     "bracketed links are not html",
			input:    "See <https://example.com/orders> for details",
			expected: "See <https://example.com/orders> for details",
		},
		{
			name:     "angle bracket addresses are not html",
			input:    "On Monday Bob <bob@example.com> wrote:\n> thanks",
			expected: "On Monday Bob <bob@example.com> wrote:\n> thanks",
		},
		{
			name:     "signature separator survives",
			input:    "Thanks\n-- \nBob",
			expected: "Thanks\n-- \nBob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanBody(tt.input))
		})
	}
}

func TestStripHTML_NoTagsRemain(t *testing.T) {
	out := StripHTML("<div>Hello<br/>World</div>")
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "World")
	assert.NotContains(t, out, "<")
	assert.NotContains(t, out, ">")
}

func TestExtractLeakedContent(t *testing.T) {
	body := "intro --Content-Type: text/html -- Actual message body here that is long enough"
	assert.Equal(t, "Actual message body here that is long enough", ExtractLeakedContent(body))

	// nothing substantial, body kept as is
	short := "a --Content-Type: x-- b"
	assert.Equal(t, short, ExtractLeakedContent(short))

	plain := "No headers -- in here at all, just dashes"
	assert.Equal(t, plain, ExtractLeakedContent(plain))
}
