package utils

// Truncate shortens content to maxLen runes, appending "..." when it had to cut.
func Truncate(content string, maxLen int) string {
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}

// Truncate80 is the common log-line truncation width.
func Truncate80(content string) string {
	return Truncate(content, 80)
}

// Truncate1000 is the 1000-rune error-message truncation width.
func Truncate1000(content string) string {
	return Truncate(content, 1000)
}
