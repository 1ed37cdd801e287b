package caption

import (
	"regexp"
	"strconv"
	"strings"
)

// Free-text timing policy. Synthetic timestamps assume a conversational
// speaking rate; both values are deliberately conservative so that playback
// slices err on the long side.
const (
	// DefaultSecondsPerWord is the assumed speaking rate for synthetic
	// timestamps.
	DefaultSecondsPerWord = 0.3

	// DefaultMinSentenceSpan is the floor for a synthetic sentence duration
	// (seconds).
	DefaultMinSentenceSpan = 2.0

	// minTimestampedSpan is the floor for a duration inferred from
	// consecutive inline timestamps (seconds).
	minTimestampedSpan = 1.0
)

// lineTimestampRe matches an inline timestamp prefix at the start of a line:
// "[MM:SS]", "(H:MM:SS)", or a bare "MM:SS". Hour and bracket forms are
// optional; seconds are always two digits.
var lineTimestampRe = regexp.MustCompile(`^[\[(]?(?:(\d{1,2}):)?(\d{1,2}):(\d{2})[\])]?\s*`)

// sentenceEndRe splits free text into sentences on terminal punctuation.
var sentenceEndRe = regexp.MustCompile(`[^.!?]+[.!?]?`)

// ParseFreeText converts unstructured text into segments. Lines prefixed with
// inline timestamps become one segment each, with duration inferred from the
// following line's timestamp. When fewer than half of the non-empty lines
// carry a timestamp the whole input is treated as timestamp-free: it is split
// into sentences and assigned synthetic timestamps from a running clock.
//
// Empty input yields an empty (nil) list.
func (n *Normalizer) ParseFreeText(raw string) []Segment {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	lines := nonEmptyLines(raw)
	stamped := 0
	for _, l := range lines {
		if lineTimestampRe.MatchString(l) {
			stamped++
		}
	}

	// Heuristic: a transcript pasted with timestamps has them on most lines.
	// A stray "12:30" in prose should not flip the whole input into
	// timestamped mode.
	if stamped*2 < len(lines) {
		return assignIDs(n.sentenceSegments(raw))
	}
	return assignIDs(n.timestampedSegments(lines))
}

// timestampedSegments builds one cue per timestamped line. The duration of
// each segment runs to the next line's timestamp, floored at
// minTimestampedSpan; the last line gets a synthetic span from its word count.
func (n *Normalizer) timestampedSegments(lines []string) []cue {
	type stampedLine struct {
		at   float64
		text string
	}

	var parsed []stampedLine
	for _, l := range lines {
		m := lineTimestampRe.FindStringSubmatch(l)
		if m == nil {
			// Untimestamped line in timestamped mode: append to the previous
			// segment's text rather than losing it.
			if len(parsed) > 0 {
				parsed[len(parsed)-1].text += " " + strings.TrimSpace(l)
			}
			continue
		}
		text := strings.TrimSpace(l[len(m[0]):])
		if text == "" {
			continue
		}
		parsed = append(parsed, stampedLine{at: inlineTimestampSeconds(m), text: text})
	}

	var cues []cue
	for i, p := range parsed {
		var dur float64
		if i+1 < len(parsed) {
			dur = parsed[i+1].at - p.at
		} else {
			dur = n.syntheticSpan(p.text)
		}
		if dur < minTimestampedSpan {
			dur = minTimestampedSpan
		}
		cues = append(cues, cue{start: p.at, dur: dur, text: p.text})
	}
	return cues
}

// sentenceSegments splits the whole input into sentences and assigns
// synthetic timestamps by advancing a running clock at the assumed speaking
// rate.
func (n *Normalizer) sentenceSegments(raw string) []cue {
	flat := spaceRe.ReplaceAllString(raw, " ")

	var cues []cue
	clock := 0.0
	for _, m := range sentenceEndRe.FindAllString(flat, -1) {
		text := strings.TrimSpace(m)
		if text == "" {
			continue
		}
		span := n.syntheticSpan(text)
		cues = append(cues, cue{start: clock, dur: span, text: text})
		clock += span
	}
	return cues
}

// syntheticSpan estimates how long text takes to speak, floored at the
// minimum sentence span.
func (n *Normalizer) syntheticSpan(text string) float64 {
	words := len(strings.Fields(text))
	span := float64(words) * DefaultSecondsPerWord
	if span < DefaultMinSentenceSpan {
		span = DefaultMinSentenceSpan
	}
	return span
}

// inlineTimestampSeconds converts a lineTimestampRe match to total seconds.
// The hour group may be empty.
func inlineTimestampSeconds(m []string) float64 {
	var h int
	if m[1] != "" {
		h, _ = strconv.Atoi(m[1])
	}
	mm, _ := strconv.Atoi(m[2])
	ss, _ := strconv.Atoi(m[3])
	return float64(h)*3600 + float64(mm)*60 + float64(ss)
}

// nonEmptyLines returns the trimmed non-empty lines of raw.
func nonEmptyLines(raw string) []string {
	var out []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
