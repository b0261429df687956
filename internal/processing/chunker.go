// Package processing prepares document text for the task stages: chunking
// and embeddings.
package processing

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ChunkText splits into paragraph chunks of at most DefaultChunkSize runes.
func ChunkText(text string) []string {
	return ChunkTextSize(text, DefaultChunkSize, DefaultChunkOverlap)
}

// ChunkTextSize splits text on blank lines, then splits very long paragraphs
// into max-rune windows sharing overlap runes with their predecessor.
func ChunkTextSize(text string, max, overlap int) []string {
	if overlap >= max {
		overlap = 0
	}
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, splitLong(p, max, overlap)...)
	}
	return out
}

func splitLong(s string, max, overlap int) []string {
	runes := []rune(s)
	if len(runes) <= max {
		return []string{s}
	}
	var res []string
	for i := 0; i < len(runes); i += max - overlap {
		end := i + max
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[i:end])); chunk != "" {
			res = append(res, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return res
}

// PackChunks merges adjacent chunks, separated by a blank line, while the
// result stays within max runes. Chunks already longer than max stay alone.
func PackChunks(chunks []string, max int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, c := range chunks {
		n := utf8.RuneCountInString(c)
		if curLen > 0 && curLen+2+n > max {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(c)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}
