// ABOUTME: Entry content normalization before storage
// ABOUTME: HTML bodies become markdown; plain text passes through untouched

package update

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// htmlTagPattern matches common HTML tags
var htmlTagPattern = regexp.MustCompile(`<\s*(p|div|span|a|br|img|h[1-6]|ul|ol|li|table|tr|td|th|strong|em|b|i|code|pre|blockquote)[^>]*>`)

// looksLikeHTML reports whether content appears to be HTML rather than plain
// text or already-clean markup.
func looksLikeHTML(content string) bool {
	if strings.Contains(content, "<!DOCTYPE") || strings.Contains(content, "<html") {
		return true
	}
	return htmlTagPattern.MatchString(content)
}

// NormalizeContent converts HTML entry bodies to markdown so stored content
// is uniform. Non-HTML content and failed conversions pass through unchanged.
func NormalizeContent(content string) string {
	if content == "" || !looksLikeHTML(content) {
		return content
	}

	markdown, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(markdown)
}
