package runner

import "strings"

var inputKeywords = []string{
	"enter", "input", "password", "press", "continue",
	"[y/n]", "(y/n)", "choose", "select",
}

// AwaitingInput guesses whether the last line of output is a prompt.
func AwaitingInput(lastLine string) bool {
	line := strings.TrimSpace(lastLine)
	if line == "" {
		return false
	}
	if strings.HasSuffix(line, ":") || strings.HasSuffix(line, "?") {
		return true
	}
	lower := strings.ToLower(line)
	for _, kw := range inputKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
