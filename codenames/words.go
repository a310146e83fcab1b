package codenames

import (
	"bufio"
	_ "embed"
	"io"
	"strings"
)

//go:embed words.txt
var defaultWords string

// DefaultWords returns the built-in corpus.
func DefaultWords() []string {
	words, _ := LoadWords(strings.NewReader(defaultWords))
	return words
}

// LoadWords reads one word per line. Blank lines are skipped and duplicates
// (case-insensitive) keep their first occurrence.
func LoadWords(r io.Reader) ([]string, error) {
	seen := map[string]struct{}{}
	var words []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		key := normalizeWord(word)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		words = append(words, word)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}
