package service

import (
	"regexp"
	"strings"
)

var thinkBlock = regexp.MustCompile(`(?is)^\s*<think>(.*?)</think>`)

// splitThinking separa un bloque <think>...</think> inicial del contenido visible.
// Algunos modelos locales lo incluyen en la respuesta no streaming.
func splitThinking(raw string) (thinking, content string) {
	s := strings.TrimPrefix(raw, "\uFEFF")
	m := thinkBlock.FindStringSubmatchIndex(s)
	if m == nil {
		return "", strings.TrimSpace(s)
	}
	thinking = strings.TrimSpace(s[m[2]:m[3]])
	content = strings.TrimSpace(s[m[1]:])
	return thinking, content
}
