// Package practice scores a learner's spoken take against the reference
// segment text.
//
// The transcribed take and the reference are tokenised, aligned word by word
// with a minimal-cost edit alignment, and each aligned pair is scored by a
// combination of Double Metaphone phonetic encoding and Jaro-Winkler string
// similarity. Phonetic agreement is weighted up so that a learner who says
// the right word with imperfect spelling-level recognition ("nite" for
// "night") is not punished for the recogniser's orthography.
package practice

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// phoneticFloor is the minimum similarity credited to a pair of words whose
// Double Metaphone codes overlap: they sound alike even if the recognised
// spelling drifted.
const phoneticFloor = 0.9

// WordScore is the per-word outcome of an alignment.
type WordScore struct {
	// Expected is the reference word, empty for an extra spoken word.
	Expected string `json:"expected,omitempty"`

	// Heard is the recognised word, empty for a missed reference word.
	Heard string `json:"heard,omitempty"`

	// Similarity is the pair's score in [0, 1]. Zero for missed or extra
	// words.
	Similarity float64 `json:"similarity"`

	// Phonetic reports whether the pair matched on phonetic codes.
	Phonetic bool `json:"phonetic"`
}

// Score is the result of comparing a take against its reference text.
type Score struct {
	// Overall is the aggregate score in [0, 1]: the summed pair
	// similarities divided by the longer of the two word counts.
	Overall float64 `json:"overall"`

	// Words is the full alignment in reference order, with extra spoken
	// words interleaved where the alignment placed them.
	Words []WordScore `json:"words"`

	// Missing counts reference words with no spoken counterpart.
	Missing int `json:"missing"`

	// Extra counts spoken words with no reference counterpart.
	Extra int `json:"extra"`
}

// Scorer aligns and scores takes. It is read-only after construction and
// safe for concurrent use.
type Scorer struct{}

// NewScorer returns a ready-to-use Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score compares the recognised take against the reference sentence.
// Both sides are lowercased and stripped of punctuation before alignment.
// An empty reference yields a zero score.
func (s *Scorer) Score(reference, heard string) Score {
	expected := tokenize(reference)
	spoken := tokenize(heard)
	if len(expected) == 0 {
		return Score{}
	}

	words := align(expected, spoken)

	var total float64
	result := Score{Words: words}
	for _, w := range words {
		total += w.Similarity
		switch {
		case w.Heard == "":
			result.Missing++
		case w.Expected == "":
			result.Extra++
		}
	}

	denom := max(len(expected), len(spoken))
	result.Overall = total / float64(denom)
	return result
}

// tokenize lowercases the text and splits it into words, dropping
// punctuation but keeping intra-word apostrophes and hyphens.
func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			return unicode.ToLower(r)
		case r == '\'' || r == '-':
			return r
		default:
			return ' '
		}
	}, text)

	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		if f := strings.Trim(f, "'-"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// align computes a minimal-cost edit alignment between the expected and
// spoken word sequences. Substituting a pair costs 1 minus its similarity;
// dropping or inserting a word costs 1, so close-sounding pairs are
// preferred over skip-and-insert.
func align(expected, spoken []string) []WordScore {
	n, m := len(expected), len(spoken)

	cost := make([][]float64, n+1)
	for i := range cost {
		cost[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		cost[i][0] = float64(i)
	}
	for j := 1; j <= m; j++ {
		cost[0][j] = float64(j)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sim, _ := wordSimilarity(expected[i-1], spoken[j-1])
			sub := cost[i-1][j-1] + (1 - sim)
			del := cost[i-1][j] + 1
			ins := cost[i][j-1] + 1
			cost[i][j] = min(sub, del, ins)
		}
	}

	// Traceback, preferring substitution on ties so aligned pairs survive.
	var rev []WordScore
	i, j := n, m
	for i > 0 || j > 0 {
		if i > 0 && j > 0 {
			sim, phonetic := wordSimilarity(expected[i-1], spoken[j-1])
			if cost[i][j] == cost[i-1][j-1]+(1-sim) {
				rev = append(rev, WordScore{
					Expected:   expected[i-1],
					Heard:      spoken[j-1],
					Similarity: sim,
					Phonetic:   phonetic,
				})
				i, j = i-1, j-1
				continue
			}
		}
		if i > 0 && (j == 0 || cost[i][j] == cost[i-1][j]+1) {
			rev = append(rev, WordScore{Expected: expected[i-1]})
			i--
			continue
		}
		rev = append(rev, WordScore{Heard: spoken[j-1]})
		j--
	}

	out := make([]WordScore, len(rev))
	for k := range rev {
		out[k] = rev[len(rev)-1-k]
	}
	return out
}

// wordSimilarity scores a word pair in [0, 1]. Identical words score 1.
// Words whose Double Metaphone codes overlap score at least phoneticFloor;
// otherwise the Jaro-Winkler similarity is used directly.
func wordSimilarity(a, b string) (score float64, phonetic bool) {
	if a == b {
		return 1, false
	}

	jw := matchr.JaroWinkler(a, b, false)

	if codesOverlap(a, b) {
		return max(jw, phoneticFloor), true
	}
	return jw, false
}

// codesOverlap reports whether any Double Metaphone code of a matches any
// code of b. Empty codes (very short or vowel-only words) never match.
func codesOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || (bs != "" && x == bs) {
			return true
		}
	}
	return false
}
