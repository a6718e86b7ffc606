package matcher

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/KafClaw/lorebot/internal/config"
)

func mustBuild(t *testing.T, phrases ...string) *Index {
	t.Helper()
	ix, err := Build(phrases)
	if err != nil {
		t.Fatalf("build %v: %v", phrases, err)
	}
	return ix
}

func naive(phrases []string, text string) bool {
	text = strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func TestMatchBasic(t *testing.T) {
	ix := mustBuild(t, "lore", "shut up", "tell me")
	cases := []struct {
		text string
		want bool
	}{
		{"tell me the Lore", true},
		{"LORE?", true},
		{"folklore is fun", true},
		{"please SHUT UP now", true},
		{"shutup", false},
		{"lor e", false},
		{"", false},
		{"tell  me", false},
	}
	for _, tc := range cases {
		if got := ix.MatchString(tc.text); got != tc.want {
			t.Fatalf("MatchString(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestMatchOverlappingPatterns(t *testing.T) {
	ix := mustBuild(t, "he", "she", "his", "hers")
	for _, text := range []string{"ushers", "xsh", "ahishe", "h"} {
		if got, want := ix.Match(text), naive(ix.Phrases(), text); got != want {
			t.Fatalf("Match(%q) = %v, want %v", text, got, want)
		}
	}

	// Only reachable through a fail link: "abcd" fails over to "bc".
	ix = mustBuild(t, "abcd", "bc")
	if !ix.Match("xabce") {
		t.Fatal("expected suffix pattern to match through fail link")
	}
	if ix.Match("abdc") {
		t.Fatal("unexpected match")
	}
}

func TestMatchUnicodeCaseInsensitive(t *testing.T) {
	ix := mustBuild(t, "ÄRGER", "日本")
	if !ix.MatchString("so ein ärger") {
		t.Fatal("expected lower-cased umlaut to match")
	}
	if !ix.MatchString("I love 日本!") {
		t.Fatal("expected CJK match")
	}
	if ix.MatchString("日 本") {
		t.Fatal("unexpected match across a space")
	}
}

func TestEmptyIndexMatchesNothing(t *testing.T) {
	ix := mustBuild(t)
	if ix.Len() != 0 || ix.States() != 1 {
		t.Fatalf("expected empty index with root only, got len=%d states=%d", ix.Len(), ix.States())
	}
	if ix.Match("anything at all") || ix.Match("") {
		t.Fatal("empty index should never match")
	}
	var nilIx *Index
	if nilIx.Match("x") {
		t.Fatal("nil index should never match")
	}
}

func TestBuildRejectsEmptyPhrase(t *testing.T) {
	_, err := Build([]string{"ok", ""})
	if !errors.Is(err, ErrEmptyPhrase) {
		t.Fatalf("expected ErrEmptyPhrase, got %v", err)
	}
	var cerr *config.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *config.ConfigError, got %T", err)
	}
}

func TestBuildSharesPrefixes(t *testing.T) {
	ix := mustBuild(t, "lore", "lord", "lo")
	// root + l, o, r, e, d
	if ix.States() != 6 {
		t.Fatalf("expected 6 states, got %d", ix.States())
	}

	ix = mustBuild(t, "LORE", "lore", "folk", "folklore")
	// root + l, o, r, e + f, o, l, k, l, o, r, e
	if ix.States() != 13 {
		t.Fatalf("expected duplicates to share states, got %d", ix.States())
	}
}

func TestBuildRejectsOversizedPhraseSet(t *testing.T) {
	_, err := Build([]string{strings.Repeat("a", MaxStates)})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	var cerr *config.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *config.ConfigError, got %T", err)
	}
}

const alphabet = "abcAB c"

func randString(r *rand.Rand, maxLen int) string {
	n := r.IntN(maxLen + 1)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[r.IntN(len(alphabet))])
	}
	return sb.String()
}

func TestMatchAgreesWithNaiveSearch(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 300; round++ {
		var phrases []string
		for i := 0; i < 1+r.IntN(6); i++ {
			p := strings.TrimSpace(randString(r, 4))
			if p == "" {
				p = "a"
			}
			phrases = append(phrases, p)
		}
		ix := mustBuild(t, phrases...)
		for i := 0; i < 50; i++ {
			text := randString(r, 30)
			if got, want := ix.MatchString(text), naive(phrases, text); got != want {
				t.Fatalf("phrases=%q text=%q: got %v want %v", phrases, text, got, want)
			}
		}
	}
}

func TestMatchIsPermutationInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	phrases := []string{"ab", "bca", "c", "aab", "b c", "cab"}
	base := mustBuild(t, phrases...)
	for round := 0; round < 20; round++ {
		shuffled := append([]string(nil), phrases...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		ix := mustBuild(t, shuffled...)
		for i := 0; i < 100; i++ {
			text := randString(r, 20)
			if ix.MatchString(text) != base.MatchString(text) {
				t.Fatalf("permutation %q disagrees on %q", shuffled, text)
			}
		}
	}
}

func TestMatchConcurrentReaders(t *testing.T) {
	ix := mustBuild(t, "lore", "legend")
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if !ix.Match("an old legend") {
					t.Error("expected match")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkMatch(b *testing.B) {
	phrases := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		phrases = append(phrases, strings.Repeat(string(rune('a'+i%26)), 1+i%7)+"lore")
	}
	ix, err := Build(phrases)
	if err != nil {
		b.Fatal(err)
	}
	text := strings.ToLower(strings.Repeat("the quick brown fox jumps over the lazy dog ", 50))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Match(text)
	}
}
