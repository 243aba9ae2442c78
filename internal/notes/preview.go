package notes

import (
	"strings"
	"unicode/utf8"
)

// ContentPreview returns at most maxLines lines and maxRunes characters of
// content, appending "..." when anything was cut.
func ContentPreview(content string, maxLines, maxRunes int) string {
	if content == "" || maxLines <= 0 || maxRunes <= 0 {
		return ""
	}

	truncated := false
	// Find the position of the Nth newline
	found := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			found++
			if found == maxLines {
				content = content[:i]
				truncated = true
				break
			}
		}
	}

	if utf8.RuneCountInString(content) > maxRunes {
		runes := []rune(content)
		content = string(runes[:maxRunes])
		truncated = true
	}

	content = strings.TrimRight(content, " \t\r\n")
	if truncated {
		return content + "..."
	}
	return content
}

// CountLines returns the number of lines in content.
// An empty string has 0 lines.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}
