package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy for user-generated content
	StrictPolicy *bluemonday.Policy
	// UGCPolicy for rich text content
	UGCPolicy *bluemonday.Policy
)

func init() {
	// Initialize strict policy
	StrictPolicy = bluemonday.StrictPolicy()

	// Initialize UGC (User Generated Content) policy
	UGCPolicy = bluemonday.UGCPolicy()

	// Allow additional safe elements for email content
	UGCPolicy.AllowElements("p", "br", "div", "span", "h1", "h2", "h3", "h4", "h5", "h6")
	UGCPolicy.AllowElements("strong", "em", "u", "s", "code", "pre")
	UGCPolicy.AllowElements("ul", "ol", "li")
	UGCPolicy.AllowElements("blockquote")
	UGCPolicy.AllowElements("a", "img")
	UGCPolicy.AllowElements("table", "thead", "tbody", "tr", "th", "td")

	// Allow safe attributes
	UGCPolicy.AllowAttrs("href").OnElements("a")
	UGCPolicy.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	UGCPolicy.AllowAttrs("class", "id").Globally()
	UGCPolicy.AllowAttrs("style").OnElements("span", "div", "p")

	// Require URLs to be safe
	UGCPolicy.RequireParseableURLs(true)
	UGCPolicy.AllowURLSchemes("http", "https", "mailto")
}

// SanitizeHTML sanitizes HTML content using the UGC policy
func SanitizeHTML(content string) string {
	return UGCPolicy.Sanitize(content)
}

// SanitizeHTMLStrict sanitizes HTML content using the strict policy (removes all HTML)
func SanitizeHTMLStrict(content string) string {
	return StrictPolicy.Sanitize(content)
}

// StripHTML removes all HTML tags from content
func StripHTML(content string) string {
	return StrictPolicy.Sanitize(content)
}

// PreviewText builds a short plain-text preview from an email body.
// HTML bodies are stripped down to text, entities decoded, whitespace
// collapsed, and the result truncated to maxLen runes with an ellipsis.
func PreviewText(body string, maxLen int) string {
	text := html.UnescapeString(StripHTML(body))
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if maxLen > 0 && len(runes) > maxLen {
		return strings.TrimSpace(string(runes[:maxLen])) + "..."
	}
	return text
}
