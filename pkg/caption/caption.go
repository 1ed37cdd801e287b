// Package caption turns noisy caption streams and free-form text into clean,
// time-aligned transcript segments.
//
// The primary input is a line-oriented cue format in which each cue carries a
// "HH:MM:SS.mmm --> HH:MM:SS.mmm" timing line followed by one or two text
// lines. Auto-generated streams in this format exhibit two artifacts the
// [Normalizer] resolves:
//
//   - Rolling-caption echoes: near-zero-duration cues that repeat the previous
//     line for a karaoke-style reveal. These are discarded entirely.
//   - Inline per-word timing markers ("<00:00:02.000><c> world</c>") embedded
//     in the authoritative text line. These are stripped.
//
// After cleaning, short cue fragments are merged left-to-right into
// sentence-like units so that playback slices align with natural phrases.
//
// The secondary input is unstructured text with optional "[MM:SS]"-style
// timestamp prefixes; see [Normalizer.ParseFreeText].
//
// Parsing never fails: malformed or empty input yields an empty segment list,
// which downstream components treat as "no transcript available".
package caption

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Default normalization policy values. They encode one caption provider's
// observed behaviour and are overridable via [Option] values because other
// providers may not exhibit the same artifacts.
const (
	// DefaultEchoCutoff is the cue duration (seconds) below which a cue is
	// treated as a rolling-caption echo and discarded.
	DefaultEchoCutoff = 0.05

	// DefaultMergeCharCap is the maximum merged text length during the
	// sentence-merge pass.
	DefaultMergeCharCap = 200

	// DefaultMergeGapCap is the maximum gap (seconds) between two cues that
	// may be merged into one sentence.
	DefaultMergeGapCap = 2.0
)

// Segment is a timed unit of transcript text. Within one transcript, segments
// are ordered by Start and do not meaningfully overlap after normalization.
// Text is non-empty, trimmed, and free of markup. Translation is attached
// later by the translation orchestrator; all other fields are fixed at
// creation except for explicit merges during normalization.
type Segment struct {
	// ID is an opaque, transcript-unique identifier.
	ID string `json:"id"`

	// Text is the cleaned segment text.
	Text string `json:"text"`

	// Start is the segment start time in seconds from the beginning of the
	// source media.
	Start float64 `json:"start"`

	// Duration is the segment length in seconds. Always > 0.
	Duration float64 `json:"duration"`

	// Translation holds the translated text once attached. Empty until the
	// translation orchestrator has run.
	Translation string `json:"translation,omitempty"`
}

// End returns the segment end time in seconds.
func (s Segment) End() float64 { return s.Start + s.Duration }

// Option is a functional option for configuring a [Normalizer].
type Option func(*Normalizer)

// WithEchoCutoff overrides the rolling-caption echo cutoff (seconds).
func WithEchoCutoff(seconds float64) Option {
	return func(n *Normalizer) { n.echoCutoff = seconds }
}

// WithMergeCharCap overrides the maximum merged text length (characters).
func WithMergeCharCap(chars int) Option {
	return func(n *Normalizer) { n.mergeCharCap = chars }
}

// WithMergeGapCap overrides the maximum mergeable gap between cues (seconds).
func WithMergeGapCap(seconds float64) Option {
	return func(n *Normalizer) { n.mergeGapCap = seconds }
}

// Normalizer parses caption streams into [Segment] lists. It is read-only
// after construction and safe for concurrent use.
type Normalizer struct {
	echoCutoff   float64
	mergeCharCap int
	mergeGapCap  float64
}

// New returns a [Normalizer] with the default policy, adjusted by opts.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		echoCutoff:   DefaultEchoCutoff,
		mergeCharCap: DefaultMergeCharCap,
		mergeGapCap:  DefaultMergeGapCap,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

var (
	// timingLineRe matches a cue timing line, e.g.
	// "00:01:02.500 --> 00:01:04.000" (trailing cue settings are ignored).
	timingLineRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})\.(\d{3})\s+-->\s+(\d{2}):(\d{2}):(\d{2})\.(\d{3})`)

	// inlineMarkerRe matches per-word timing markers embedded in cue text.
	inlineMarkerRe = regexp.MustCompile(`<\d{2}:\d{2}:\d{2}\.\d{3}>`)

	// tagRe matches style tags and any remaining markup.
	tagRe = regexp.MustCompile(`<[^>]*>`)

	// spaceRe collapses runs of whitespace.
	spaceRe = regexp.MustCompile(`\s+`)
)

// htmlEntities maps the standard entities that appear in caption streams.
var htmlEntities = map[string]string{
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": `"`,
	"&#39;":  "'",
	"&nbsp;": " ",
}

// Parse converts a raw caption blob into an ordered segment list. When the
// input contains no cue timing lines it falls back to [Normalizer.ParseFreeText].
// Malformed or empty input yields an empty (nil) list, never an error.
func (n *Normalizer) Parse(raw string) []Segment {
	if !strings.Contains(raw, "-->") {
		return n.ParseFreeText(raw)
	}

	cues := n.parseCues(raw)
	merged := n.mergeSentences(cues)
	return assignIDs(merged)
}

// cue is an intermediate parsed caption entry before the merge pass. The
// span is stored as a duration: recomputing it from an end time loses the
// exact synthetic spans of free-text mode to float accumulation.
type cue struct {
	start float64
	dur   float64
	text  string
}

func (c cue) end() float64 { return c.start + c.dur }

// parseCues walks the input line by line, collecting one cue per timing line.
// Echo cues and cues whose cleaned text is empty are dropped.
func (n *Normalizer) parseCues(raw string) []cue {
	lines := strings.Split(raw, "\n")

	var cues []cue
	i := 0
	for i < len(lines) {
		m := timingLineRe.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			i++
			continue
		}
		start := timestampSeconds(m[1], m[2], m[3], m[4])
		end := timestampSeconds(m[5], m[6], m[7], m[8])
		i++

		// Collect the cue's text lines up to the next timing line or blank
		// separator.
		var textLines []string
		for i < len(lines) {
			line := lines[i]
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || timingLineRe.MatchString(trimmed) {
				break
			}
			textLines = append(textLines, line)
			i++
		}

		// Rolling-caption echo: the provider re-emits the previous line as a
		// near-zero-duration cue. Drop it together with its text.
		if end-start < n.echoCutoff {
			continue
		}

		text := cleanCueText(selectCueLine(textLines))
		if text == "" {
			continue
		}
		cues = append(cues, cue{start: start, dur: end - start, text: text})
	}
	return cues
}

// selectCueLine picks the authoritative text of a cue. In auto-generated
// streams the line carrying inline timing markers is the live one. When that
// line opens with a marker it carries no words of its own; the lines before
// it hold the already-revealed part of the same sentence and are folded in.
// A marker line with leading text restates the whole sentence itself, so
// earlier lines are stale and dropped. Without markers the last non-empty
// line wins.
func selectCueLine(lines []string) string {
	for i, l := range lines {
		if !inlineMarkerRe.MatchString(l) {
			continue
		}
		loc := inlineMarkerRe.FindStringIndex(l)
		if strings.TrimSpace(l[:loc[0]]) == "" && i > 0 {
			return strings.Join(lines[:i+1], " ")
		}
		return l
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

// cleanCueText strips timing markers, style tags and markup, decodes HTML
// entities, collapses whitespace, and trims.
func cleanCueText(s string) string {
	s = inlineMarkerRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	for entity, repl := range htmlEntities {
		s = strings.ReplaceAll(s, entity, repl)
	}
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// mergeSentences greedily merges consecutive cues into sentence-like units.
// A cue is absorbed into the running segment when the running text does not
// already end a sentence, the merged text stays under the char cap, and the
// time gap is under the gap cap. Implemented as a fold producing a fresh
// slice — prior segments are never mutated in place.
func (n *Normalizer) mergeSentences(cues []cue) []cue {
	var out []cue
	for _, c := range cues {
		if len(out) == 0 {
			out = append(out, c)
			continue
		}
		run := out[len(out)-1]
		gap := c.start - run.end()
		if !endsSentence(run.text) &&
			len(run.text)+1+len(c.text) <= n.mergeCharCap &&
			gap < n.mergeGapCap {
			out[len(out)-1] = cue{
				start: run.start,
				dur:   c.end() - run.start,
				text:  run.text + " " + c.text,
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// endsSentence reports whether s already terminates a sentence.
func endsSentence(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// assignIDs converts merged cues into the public Segment form.
func assignIDs(cues []cue) []Segment {
	if len(cues) == 0 {
		return nil
	}
	segs := make([]Segment, 0, len(cues))
	for i, c := range cues {
		segs = append(segs, Segment{
			ID:       fmt.Sprintf("seg-%04d", i),
			Text:     c.text,
			Start:    c.start,
			Duration: c.dur,
		})
	}
	return segs
}

// timestampSeconds converts matched HH, MM, SS, mmm groups to total seconds.
func timestampSeconds(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	mmm, _ := strconv.Atoi(ms)
	return float64(hh)*3600 + float64(mm)*60 + float64(ss) + float64(mmm)/1000
}
