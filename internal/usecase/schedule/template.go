package schedule

import (
	"strings"
	"time"
)

// RenderTemplate подставляет плейсхолдеры {name} и {time} в текст вопроса.
func RenderTemplate(text, name string, now time.Time) string {
	replacer := strings.NewReplacer(
		"{name}", name,
		"{time}", now.Format("15:04"),
	)
	return replacer.Replace(text)
}
