package heuristics

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPatterns are matched case-insensitively. Doubled words come first so
// "so so" wins over a lone "so".
var DefaultPatterns = []string{
	`\bthe\s+the\b`, `\band\s+and\b`, `\bso\s+so\b`,
	`\bu+m+\b`, `\bu+h+\b`, `\ba+h+\b`, `\bh+m+\b`, `\berm+\b`, `\ber+\b`, `\behm\b`,
	`\byou\s+know\b`, `\bi\s+mean\b`, `\bsort\s+of\b`, `\bkind\s+of\b`,
	`\byeah\b`, `\bso\b`, `\bwell\b`, `\blike\b`,
	`\bactually\b`, `\bbasically\b`, `\bliterally\b`,
}

// DefaultStrong are hesitation sounds and stutters that may warn even when
// the same term warned recently.
var DefaultStrong = []string{
	"um", "umm", "uh", "uhh", "hmm", "erm", "er", "ehm",
	"the the", "and and", "so so",
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	wordToken  = regexp.MustCompile(`[a-zA-Z']+`)
)

// Vocabulary is the filler word list. It is data, not code: deployments may
// replace it through a YAML file.
type Vocabulary struct {
	re     *regexp.Regexp
	strong map[string]struct{}
}

// vocabularyFile is the on-disk shape of a vocabulary override.
type vocabularyFile struct {
	Patterns []string `yaml:"patterns"`
	Strong   []string `yaml:"strong"`
}

func NewVocabulary(patterns, strong []string) (*Vocabulary, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("filler vocabulary has no patterns")
	}

	re, err := regexp.Compile(`(?i)(?:` + strings.Join(patterns, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filler patterns: %w", err)
	}

	v := &Vocabulary{re: re, strong: make(map[string]struct{}, len(strong))}
	for _, s := range strong {
		v.strong[Normalize(s)] = struct{}{}
	}
	return v, nil
}

func DefaultVocabulary() *Vocabulary {
	v, err := NewVocabulary(DefaultPatterns, DefaultStrong)
	if err != nil {
		panic("heuristics: default vocabulary does not compile: " + err.Error())
	}
	return v
}

// LoadVocabulary reads a YAML file with `patterns` and `strong` lists. An
// omitted list falls back to the default one.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filler vocabulary: %w", err)
	}

	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse filler vocabulary %s: %w", path, err)
	}
	if len(f.Patterns) == 0 {
		f.Patterns = DefaultPatterns
	}
	if f.Strong == nil {
		f.Strong = DefaultStrong
	}
	return NewVocabulary(f.Patterns, f.Strong)
}

// Find returns every filler occurrence in text, normalized, in order.
func (v *Vocabulary) Find(text string) []string {
	matches := v.re.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = Normalize(m)
	}
	return out
}

func (v *Vocabulary) IsStrong(term string) bool {
	_, ok := v.strong[Normalize(term)]
	return ok
}

// Normalize lowercases a term and collapses inner whitespace.
func Normalize(term string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(term)), " ")
}

// Tokens splits text into lowercase words.
func Tokens(text string) []string {
	words := wordToken.FindAllString(strings.ToLower(text), -1)
	return words
}

// Unique returns terms with duplicates removed, keeping first-seen order.
func Unique(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
