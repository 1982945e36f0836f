package session

import (
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// formatChat collapses runs of whitespace in text, prefixes it with
// "<username>: ", and splits the result into chunks of at most 64
// bytes — the fixed width of a Message packet's text field — so only
// the first chunk carries the username prefix.
func formatChat(username, text string) []string {
	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	full := fmt.Sprintf("<%s>: %s", username, collapsed)

	var lines []string
	b := []byte(full)
	for len(b) > 0 {
		n := 64
		if n > len(b) {
			n = len(b)
		}
		lines = append(lines, string(b[:n]))
		b = b[n:]
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}
