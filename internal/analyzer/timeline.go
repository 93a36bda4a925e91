package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/normanking/cortexlipsync/internal/viseme"
	"gopkg.in/yaml.v3"
)

// Event is one keyframe of a timeline.
type Event struct {
	Viseme viseme.ID `json:"visemeId" yaml:"visemeId"`
	Time   float64   `json:"time" yaml:"time"`     // Milliseconds from start
	Weight float64   `json:"weight" yaml:"weight"` // Intensity 0-1
}

// Timeline is a sequence of viseme keyframes.
type Timeline struct {
	Events   []Event `json:"events" yaml:"events"`
	Duration float64 `json:"duration" yaml:"duration"` // Total length in milliseconds
}

// Validate checks ids, times and weights, and sorts events by time.
func (t *Timeline) Validate() error {
	for i, ev := range t.Events {
		if !ev.Viseme.Valid() {
			return fmt.Errorf("%w: event %d has viseme %d", ErrInvalidTimeline, i, ev.Viseme)
		}
		if ev.Time < 0 {
			return fmt.Errorf("%w: event %d has negative time", ErrInvalidTimeline, i)
		}
		if ev.Weight < 0 || ev.Weight > 1 {
			return fmt.Errorf("%w: event %d weight %.2f outside [0,1]", ErrInvalidTimeline, i, ev.Weight)
		}
	}
	if t.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidTimeline)
	}

	sort.SliceStable(t.Events, func(i, j int) bool { return t.Events[i].Time < t.Events[j].Time })
	if n := len(t.Events); n > 0 && t.Duration < t.Events[n-1].Time {
		t.Duration = t.Events[n-1].Time
	}
	return nil
}

// FrameAt samples the timeline at ms. Inside blendMs of the next keyframe the
// current one cross-fades linearly into it. Before the first keyframe the frame is silence.
func (t *Timeline) FrameAt(ms, blendMs float64) viseme.Frame {
	var frame viseme.Frame

	i := sort.Search(len(t.Events), func(i int) bool { return t.Events[i].Time > ms }) - 1
	if i < 0 {
		frame[viseme.Sil] = 1
		return frame
	}

	cur := t.Events[i]
	mix := 0.0
	if i+1 < len(t.Events) && blendMs > 0 {
		next := t.Events[i+1]
		if remaining := next.Time - ms; remaining < blendMs {
			mix = 1 - remaining/blendMs
			frame[next.Viseme] += float32(next.Weight * mix)
		}
	}
	frame[cur.Viseme] += float32(cur.Weight * (1 - mix))
	return frame
}

// LoadTimeline reads a timeline from a .json, .yaml or .yml file.
func LoadTimeline(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}

	var tl Timeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &tl)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tl)
	default:
		return nil, fmt.Errorf("unsupported timeline format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse timeline %s: %w", path, err)
	}

	if err := tl.Validate(); err != nil {
		return nil, err
	}
	return &tl, nil
}

// Save writes the timeline as JSON or YAML depending on the extension.
func (t *Timeline) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(t)
	default:
		data, err = json.MarshalIndent(t, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode timeline: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// phonemeVisemes maps lowercase letters and digraphs to visemes.
var phonemeVisemes = map[string]viseme.ID{
	"p": viseme.PP, "b": viseme.PP, "m": viseme.PP,
	"f": viseme.FF, "v": viseme.FF,
	"th": viseme.TH,
	"t": viseme.DD, "d": viseme.DD,
	"k": viseme.KK, "g": viseme.KK, "c": viseme.KK, "q": viseme.KK, "x": viseme.KK,
	"ch": viseme.CH, "sh": viseme.CH, "j": viseme.CH,
	"s": viseme.SS, "z": viseme.SS,
	"n": viseme.NN, "l": viseme.NN,
	"r": viseme.RR,
	"a": viseme.AA,
	"e": viseme.E,
	"i": viseme.IH, "y": viseme.IH,
	"o": viseme.OH,
	"u": viseme.OU, "w": viseme.OU,
	"h": viseme.AA,
}

const (
	leadInMs        = 50.0
	consonantMs     = 60.0
	fricativeMs     = 80.0
	vowelMs         = 100.0
	wordPauseMs     = 80.0
	clausePauseMs   = 100.0
	sentencePauseMs = 150.0
	speechWeight    = 0.8
)

func isVowel(ch byte) bool {
	return strings.IndexByte("aeiou", ch) >= 0
}

// nextPhoneme reads one letter or th/ch/sh digraph at i and returns it with its length.
func nextPhoneme(chars []byte, i int) (string, int) {
	if i+1 < len(chars) {
		switch d := string(chars[i : i+2]); d {
		case "th", "ch", "sh":
			return d, 2
		}
	}
	return string(chars[i]), 1
}

func phonemeDuration(ch byte) float64 {
	switch {
	case isVowel(ch):
		return vowelMs
	case ch == 's' || ch == 'z' || ch == 'f' || ch == 'v':
		return fricativeMs
	default:
		return consonantMs
	}
}

func silentTimeline() *Timeline {
	return &Timeline{Events: []Event{{Viseme: viseme.Sil, Time: 0, Weight: 1}}}
}

// FromText estimates a timeline from raw text when no phoneme timing is
// available. Whitespace and punctuation become pauses of increasing length.
// duration stretches the result if the estimate is shorter.
func FromText(text string, duration time.Duration) *Timeline {
	clean := strings.ToLower(strings.TrimSpace(text))
	if clean == "" {
		return silentTimeline()
	}

	events := []Event{{Viseme: viseme.Sil, Time: 0, Weight: 1}}
	now := leadInMs
	pause := func(weight, length float64) {
		events = append(events, Event{Viseme: viseme.Sil, Time: now, Weight: weight})
		now += length
	}

	chars := []byte(clean)
	for i := 0; i < len(chars); {
		ch := chars[i]
		switch ch {
		case ' ', '\n', '\t':
			pause(0.5, wordPauseMs)
			i++
			continue
		case '.', '!', '?':
			pause(1, sentencePauseMs)
			i++
			continue
		case ',', ';', ':':
			pause(0.7, clausePauseMs)
			i++
			continue
		}

		ph, n := nextPhoneme(chars, i)
		i += n
		id, ok := phonemeVisemes[ph]
		if !ok {
			id = viseme.Sil
		}
		events = append(events, Event{Viseme: id, Time: now, Weight: speechWeight})
		now += phonemeDuration(ch)
	}

	events = append(events, Event{Viseme: viseme.Sil, Time: now, Weight: 1})

	total := now + leadInMs
	if ms := float64(duration.Milliseconds()); ms > total {
		total = ms
	}
	return &Timeline{Events: events, Duration: total}
}

// FromWordTimestamps spreads each word's visemes evenly over its time span.
// Times are in seconds, as TTS providers report them.
func FromWordTimestamps(words []string, starts, ends []float64) *Timeline {
	if len(words) == 0 {
		return silentTimeline()
	}

	events := []Event{{Viseme: viseme.Sil, Time: 0, Weight: 1}}
	var lastEnd float64

	for i, word := range words {
		if i >= len(starts) || i >= len(ends) {
			break
		}
		startMs, endMs := starts[i]*1000, ends[i]*1000
		if endMs > lastEnd {
			lastEnd = endMs
		}

		seq := wordVisemes(word)
		if len(seq) == 0 {
			continue
		}
		step := (endMs - startMs) / float64(len(seq))
		for j, id := range seq {
			events = append(events, Event{Viseme: id, Time: startMs + float64(j)*step, Weight: speechWeight})
		}
		events = append(events, Event{Viseme: viseme.Sil, Time: endMs, Weight: 0.3})
	}

	events = append(events, Event{Viseme: viseme.Sil, Time: lastEnd + leadInMs, Weight: 1})
	tl := &Timeline{Events: events, Duration: lastEnd + 2*leadInMs}
	sort.SliceStable(tl.Events, func(i, j int) bool { return tl.Events[i].Time < tl.Events[j].Time })
	return tl
}

// wordVisemes converts one word to visemes, collapsing repeats.
func wordVisemes(word string) []viseme.ID {
	chars := []byte(strings.ToLower(word))
	out := make([]viseme.ID, 0, len(chars))

	for i := 0; i < len(chars); {
		if chars[i] < 'a' || chars[i] > 'z' {
			i++
			continue
		}
		ph, n := nextPhoneme(chars, i)
		i += n
		id, ok := phonemeVisemes[ph]
		if !ok {
			id = viseme.AA
		}
		if len(out) > 0 && out[len(out)-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
