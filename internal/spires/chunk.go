package spires

import (
	"regexp"
	"strings"
)

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// SplitSentences splits text after sentence-ending punctuation.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// ChunkText groups sentences into consecutive windows of at most n sentences.
// n <= 0 returns the text unchanged.
func ChunkText(text string, n int) []string {
	if n <= 0 {
		return []string{text}
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return []string{text}
	}
	var chunks []string
	for i := 0; i < len(sentences); i += n {
		end := min(i+n, len(sentences))
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
	}
	return chunks
}

// mergeRaw folds next into into: lists are concatenated, anything else is replaced.
func mergeRaw(into, next RawResponse) RawResponse {
	if next == nil {
		return into
	}
	if into == nil {
		into = RawResponse{}
	}
	for k, v := range next {
		if nv, ok := v.([]any); ok {
			if cur, ok := into[k].([]any); ok {
				into[k] = append(cur, nv...)
				continue
			}
		}
		into[k] = v
	}
	return into
}
