package ai

import (
	"regexp"
	"strings"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	scriptBlocks   = regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	dangerousTags  = regexp.MustCompile(`(?i)</?(script|iframe|object|embed|link|meta)[^>]*>`)
	surroundQuotes = []string{`"`, `'`, "“", "”", "*"}
)

// cleanText strips control characters and markup that must never reach a
// rendered story, then trims. Line breaks are kept.
func cleanText(s string) string {
	s = scriptBlocks.ReplaceAllString(s, "")
	s = dangerousTags.ReplaceAllString(s, "")
	s = controlChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// cleanTitle collapses a generated title to one line without wrapping quotes.
func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(cleanText(s)), " ")
	for {
		trimmed := s
		for _, q := range surroundQuotes {
			trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, q), q)
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// ParseTags splits a comma-separated list, trimming each tag and dropping
// empty ones.
func ParseTags(s string) []string {
	tags := []string{}
	for _, tag := range strings.Split(s, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// dedupSources keeps one source per URI at the position it first appears,
// carrying the title of its last occurrence.
func dedupSources(sources []Source) []Source {
	index := make(map[string]int, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if i, ok := index[s.URI]; ok {
			out[i] = s
			continue
		}
		index[s.URI] = len(out)
		out = append(out, s)
	}
	return out
}
