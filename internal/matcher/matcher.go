// Package matcher answers "does this text contain any of these phrases" in a
// single pass, using an Aho-Corasick automaton built once per phrase set.
//
// Matching works on the bytes of lower-cased UTF-8. Because UTF-8 is
// self-synchronizing, a byte-level substring hit is always a hit on whole
// characters, so no rune decoding is needed on the hot path.
package matcher

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/KafClaw/lorebot/internal/config"
)

// MaxStates bounds the automaton size. One state is needed per distinct phrase prefix.
const MaxStates = 1 << 24

var (
	// ErrEmptyPhrase is returned for a zero-length phrase, which would match every text.
	ErrEmptyPhrase = errors.New("empty phrase")
	// ErrTooLarge is returned when the phrases need more than MaxStates states.
	ErrTooLarge = errors.New("phrase set too large")
)

// Index is a compiled phrase set. It is immutable and safe for concurrent use.
type Index struct {
	phrases []string
	states  int
	ac      *ahocorasick.AhoCorasick
}

// Build compiles phrases into an Index. Phrases are lower-cased; order and
// duplicates do not affect results. An empty phrase list yields an Index that
// matches nothing.
func Build(phrases []string) (*Index, error) {
	ix := &Index{phrases: make([]string, 0, len(phrases))}
	for _, p := range phrases {
		p = strings.ToLower(p)
		if p == "" {
			return nil, &config.ConfigError{Err: fmt.Errorf("matcher: %w", ErrEmptyPhrase)}
		}
		ix.phrases = append(ix.phrases, p)
	}

	ix.states = trieSize(ix.phrases)
	if ix.states > MaxStates {
		return nil, &config.ConfigError{Err: fmt.Errorf("matcher: %w: %d states, limit %d", ErrTooLarge, ix.states, MaxStates)}
	}
	if len(ix.phrases) == 0 {
		return ix, nil
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		MatchKind: ahocorasick.LeftMostLongestMatch,
		DFA:       true,
	})
	ac := builder.Build(ix.phrases)
	ix.ac = &ac
	return ix, nil
}

// trieSize counts the distinct prefixes of phrases, root included. Over the
// sorted set each phrase adds the bytes it does not share with its predecessor.
func trieSize(phrases []string) int {
	sorted := slices.Clone(phrases)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	n, prev := 1, ""
	for _, p := range sorted {
		n += len(p) - commonPrefix(prev, p)
		prev = p
	}
	return n
}

func commonPrefix(a, b string) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}

// Match reports whether lowered contains any phrase. lowered must already be
// lower-cased; use MatchString for raw text.
func (ix *Index) Match(lowered string) bool {
	if ix == nil || ix.ac == nil {
		return false
	}
	return ix.ac.Iter(lowered).Next() != nil
}

// MatchString lower-cases text and reports whether it contains any phrase.
func (ix *Index) MatchString(text string) bool {
	return ix.Match(strings.ToLower(text))
}

// Len returns the number of phrases compiled into the index.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.phrases)
}

// Phrases returns a copy of the compiled phrases in build order.
func (ix *Index) Phrases() []string {
	if ix == nil {
		return nil
	}
	return append([]string(nil), ix.phrases...)
}

// States returns the number of automaton states, including the root.
func (ix *Index) States() int {
	if ix == nil {
		return 0
	}
	return ix.states
}
