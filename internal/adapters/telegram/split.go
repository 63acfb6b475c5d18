package telegram

import (
	"strings"
	"unicode/utf8"
)

const messageLimit = 4096

// SplitMessage режет текст на части, укладывающиеся в лимит Bot API.
// Разрезы идут по границам строк, чтобы не рвать форматирование;
// строка длиннее лимита режется жёстко.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if utf8.RuneCountInString(trimmed) <= messageLimit {
		return []string{trimmed}
	}

	var (
		parts []string
		buf   []rune
	)
	flush := func() {
		chunk := strings.Trim(string(buf), "\n")
		if chunk != "" {
			parts = append(parts, chunk)
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(trimmed, "\n") {
		runes := []rune(line)
		for len(runes) > messageLimit {
			flush()
			parts = append(parts, string(runes[:messageLimit]))
			runes = runes[messageLimit:]
		}
		if len(buf)+len(runes)+1 > messageLimit {
			flush()
		}
		if len(buf) > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, runes...)
	}
	flush()

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}
