package triggers

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Lexicon is one trigger category with its normalized term list.
type Lexicon struct {
	Category string
	Terms    []string
}

// defaultLexicons cover the categories the auditors rely on when no lexicon
// directory is configured. Terms are normalized at load time, so mixed case
// and punctuation here are fine.
var defaultLexicons = map[string][]string{
	"profanity": {
		"damn", "hell", "crap", "shit", "fuck", "bastard", "asshole", "bitch",
	},
	"sarcasm": {
		"oh great", "yeah right", "sure you did", "how wonderful", "good luck with that",
	},
	"stop_words": {
		"whatever", "not my problem", "calm down", "as i already said", "listen to me",
	},
	"buying_signal": {
		"how much", "what does it cost", "send me the contract", "ready to buy",
		"sign up", "payment link", "invoice",
	},
}

// LoadLexicons builds the category lists from built-in defaults plus optional
// per-category term files (<dir>/<category>.txt, one term per line, '#'
// comments). A file with the same name as a default category replaces it.
func LoadLexicons(dir string) ([]Lexicon, error) {
	byCategory := map[string][]string{}
	for cat, terms := range defaultLexicons {
		byCategory[cat] = normalizeTerms(terms)
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read lexicon dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
				continue
			}
			category := strings.TrimSuffix(e.Name(), ".txt")
			terms, err := readTermFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			if len(terms) > 0 {
				byCategory[category] = terms
			}
		}
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	out := make([]Lexicon, 0, len(categories))
	for _, cat := range categories {
		out = append(out, Lexicon{Category: cat, Terms: byCategory[cat]})
	}
	return out, nil
}

func readTermFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexicon file: %w", err)
	}
	defer f.Close()

	var terms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lexicon file %s: %w", path, err)
	}
	return normalizeTerms(terms), nil
}

func normalizeTerms(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := map[string]bool{}
	for _, t := range raw {
		n := Normalize(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
