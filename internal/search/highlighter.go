package search

// Highlight truncates content to maxLen runes and appends "..." when cut.
func Highlight(content string, maxLen int) string {
	if maxLen <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}
