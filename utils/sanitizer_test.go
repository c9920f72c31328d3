package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreviewText(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		maxLen int
		want   string
	}{
		{
			name:   "plain text passes through",
			body:   "hello world",
			maxLen: 150,
			want:   "hello world",
		},
		{
			name:   "html stripped and entities decoded",
			body:   "<p>Tom &amp; Jerry</p><script>alert(1)</script>",
			maxLen: 150,
			want:   "Tom & Jerry",
		},
		{
			name:   "whitespace collapsed",
			body:   "a\n\n  b\t c",
			maxLen: 150,
			want:   "a b c",
		},
		{
			name:   "truncated with ellipsis",
			body:   "abcdefghij",
			maxLen: 5,
			want:   "abcde...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreviewText(tt.body, tt.maxLen))
		})
	}
}

func TestSanitizeHTMLStrictRemovesMarkup(t *testing.T) {
	assert.Equal(t, "click", SanitizeHTMLStrict(`<a href="http://x">click</a>`))
}
