// Package atomizer maps raw text to a sequence of discrete tokens for model
// consumption, either one character at a time or by greedily consuming
// multi-character symbols from a configured vocabulary.
package atomizer

import (
	"fmt"
	"sort"

	"clgen/pkg/config"
)

var DebugLog func(string, ...interface{})

// Atomizer converts between text, token strings and vocabulary indices.
type Atomizer interface {
	// Vocab returns the vocabulary, indexed by token id.
	Vocab() []string

	// TokenizeString splits text into token strings.
	TokenizeString(text string) []string

	// AtomizeString splits text into vocabulary indices. Tokens outside the
	// vocabulary are an error.
	AtomizeString(text string) ([]int, error)

	// DeatomizeIndices reassembles text from vocabulary indices.
	DeatomizeIndices(indices []int) string
}

// FromCorpus constructs the atomizer configured for the corpus, deriving the
// vocabulary from the preprocessed corpus text.
func FromCorpus(cfg *config.Corpus, text string) (Atomizer, error) {
	if cfg.GreedyMulticharAtomizer != nil {
		return DeriveGreedyAtomizer(text, cfg.GreedyMulticharAtomizer.Tokens)
	}
	return DeriveCharAtomizer(text), nil
}

// CharAtomizer tokenizes one character at a time.
type CharAtomizer struct {
	vocab []string
	index map[string]int
}

// DeriveCharAtomizer builds a character atomizer whose vocabulary is the set
// of characters appearing in text, sorted for deterministic token ids.
func DeriveCharAtomizer(text string) *CharAtomizer {
	seen := make(map[rune]bool)
	for _, r := range text {
		seen[r] = true
	}

	vocab := make([]string, 0, len(seen))
	for r := range seen {
		vocab = append(vocab, string(r))
	}
	sort.Strings(vocab)

	if DebugLog != nil {
		DebugLog("derived character vocabulary of %d atoms", len(vocab))
	}
	return NewCharAtomizer(vocab)
}

func NewCharAtomizer(vocab []string) *CharAtomizer {
	index := make(map[string]int, len(vocab))
	for i, tok := range vocab {
		index[tok] = i
	}
	return &CharAtomizer{vocab: vocab, index: index}
}

func (a *CharAtomizer) Vocab() []string { return a.vocab }

func (a *CharAtomizer) TokenizeString(text string) []string {
	tokens := make([]string, 0, len(text))
	for _, r := range text {
		tokens = append(tokens, string(r))
	}
	return tokens
}

func (a *CharAtomizer) AtomizeString(text string) ([]int, error) {
	indices := make([]int, 0, len(text))
	for _, r := range text {
		id, ok := a.index[string(r)]
		if !ok {
			return nil, fmt.Errorf("character %q is not in the vocabulary", r)
		}
		indices = append(indices, id)
	}
	return indices, nil
}

func (a *CharAtomizer) DeatomizeIndices(indices []int) string {
	return deatomize(a.vocab, indices)
}

// GreedyAtomizer tokenizes by consuming the longest matching multi-character
// token at each position, falling back to single characters.
type GreedyAtomizer struct {
	multichar []string // sorted longest first
	vocab     []string
	index     map[string]int
}

// DeriveGreedyAtomizer builds a greedy atomizer from the configured
// multi-character tokens plus every character of text not covered by them.
func DeriveGreedyAtomizer(text string, tokens []string) (*GreedyAtomizer, error) {
	multichar := make([]string, 0, len(tokens))
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("greedy atomizer token must not be empty")
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		multichar = append(multichar, tok)
	}
	// Longest match wins, ties broken lexicographically for determinism.
	sort.Slice(multichar, func(i, j int) bool {
		if len(multichar[i]) != len(multichar[j]) {
			return len(multichar[i]) > len(multichar[j])
		}
		return multichar[i] < multichar[j]
	})

	a := &GreedyAtomizer{multichar: multichar}

	vocabSet := make(map[string]bool)
	for _, tok := range a.tokenize(text) {
		vocabSet[tok] = true
	}
	for _, tok := range multichar {
		vocabSet[tok] = true
	}

	a.vocab = make([]string, 0, len(vocabSet))
	for tok := range vocabSet {
		a.vocab = append(a.vocab, tok)
	}
	sort.Strings(a.vocab)

	a.index = make(map[string]int, len(a.vocab))
	for i, tok := range a.vocab {
		a.index[tok] = i
	}

	if DebugLog != nil {
		DebugLog("derived greedy vocabulary of %d atoms (%d multi-character)",
			len(a.vocab), len(multichar))
	}
	return a, nil
}

func (a *GreedyAtomizer) tokenize(text string) []string {
	var tokens []string
	runes := []rune(text)
	for pos := 0; pos < len(runes); {
		matched := false
		rest := string(runes[pos:])
		for _, tok := range a.multichar {
			if len(tok) <= len(rest) && rest[:len(tok)] == tok {
				tokens = append(tokens, tok)
				pos += len([]rune(tok))
				matched = true
				break
			}
		}
		if !matched {
			tokens = append(tokens, string(runes[pos]))
			pos++
		}
	}
	return tokens
}

func (a *GreedyAtomizer) Vocab() []string { return a.vocab }

func (a *GreedyAtomizer) TokenizeString(text string) []string {
	return a.tokenize(text)
}

func (a *GreedyAtomizer) AtomizeString(text string) ([]int, error) {
	tokens := a.tokenize(text)
	indices := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		id, ok := a.index[tok]
		if !ok {
			return nil, fmt.Errorf("token %q is not in the vocabulary", tok)
		}
		indices = append(indices, id)
	}
	return indices, nil
}

func (a *GreedyAtomizer) DeatomizeIndices(indices []int) string {
	return deatomize(a.vocab, indices)
}

func deatomize(vocab []string, indices []int) string {
	var out []byte
	for _, id := range indices {
		if id >= 0 && id < len(vocab) {
			out = append(out, vocab[id]...)
		}
	}
	return string(out)
}
