package heuristics

import (
	"fmt"
	"time"
)

type Config struct {
	FillerCooldown time.Duration
	FillerDedup    time.Duration

	LongPause     time.Duration
	PauseCooldown time.Duration

	RepetitionRatio     float64
	RepetitionWindow    int // trailing tokens inspected
	RepetitionMinTokens int // window size below which no warning fires
	RepetitionCooldown  time.Duration

	LengthCap      time.Duration
	LengthCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		FillerCooldown:      2 * time.Second,
		FillerDedup:         2500 * time.Millisecond,
		LongPause:           10 * time.Second,
		PauseCooldown:       3 * time.Second,
		RepetitionRatio:     0.55,
		RepetitionWindow:    40,
		RepetitionMinTokens: 12,
		RepetitionCooldown:  8 * time.Second,
		LengthCap:           40 * time.Second,
		LengthCooldown:      20 * time.Second,
	}
}

// Warning is one advisory message for the live UI.
type Warning struct {
	Kind     Kind
	Message  string
	Severity string
	Terms    []string // filler terms found in the scanned text
	NewTerms []string // terms outside the dedup window
	Source   string   // "segment" or "partial" for filler warnings
	Context  string
	At       time.Time
}

// Engine evaluates text and timing against a session's Tracker. It holds no
// per-session state of its own.
type Engine struct {
	cfg   Config
	vocab *Vocabulary
}

func NewEngine(cfg Config, vocab *Vocabulary) *Engine {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if cfg.RepetitionWindow <= 0 {
		cfg.RepetitionWindow = 40
	}
	if cfg.RepetitionMinTokens <= 0 {
		cfg.RepetitionMinTokens = 12
	}
	return &Engine{cfg: cfg, vocab: vocab}
}

func (e *Engine) Vocabulary() *Vocabulary {
	return e.vocab
}

// SegmentFillers scans finalized segment text. Every hit is counted toward
// the answer; a warning is returned only when cooldown and dedup allow it.
func (e *Engine) SegmentFillers(t *Tracker, text string, now time.Time) ([]string, *Warning) {
	hits := e.vocab.Find(text)
	if len(hits) == 0 {
		return nil, nil
	}
	t.addFillers(hits)
	return hits, e.fillerWarning(t, hits, "segment", text, now)
}

// PreviewFillers scans preview text. Previews overlap the segments that
// follow them, so hits here warn but are not counted.
func (e *Engine) PreviewFillers(t *Tracker, text string, now time.Time) ([]string, *Warning) {
	hits := e.vocab.Find(text)
	if len(hits) == 0 {
		return nil, nil
	}
	return hits, e.fillerWarning(t, hits, "partial", text, now)
}

func (e *Engine) fillerWarning(t *Tracker, hits []string, source, text string, now time.Time) *Warning {
	terms := Unique(hits)
	fresh, ok := t.allowFillers(terms, e.vocab.IsStrong, e.cfg.FillerCooldown, e.cfg.FillerDedup, now)
	if !ok {
		return nil
	}

	msg := "Filler word detected."
	if len(terms) > 1 {
		msg = "Filler words detected."
	}
	return &Warning{
		Kind:     KindFiller,
		Message:  msg,
		Severity: "low",
		Terms:    terms,
		NewTerms: fresh,
		Source:   source,
		Context:  text,
		At:       now,
	}
}

// CheckPause fires when nothing voiced has been heard for longer than the
// pause threshold. Callers only invoke it while the session is recording.
func (e *Engine) CheckPause(t *Tracker, now time.Time) *Warning {
	silence := now.Sub(t.LastVoice())
	if silence <= e.cfg.LongPause {
		return nil
	}
	if !t.allow(KindPause, e.cfg.PauseCooldown, now) {
		return nil
	}
	return &Warning{
		Kind:     KindPause,
		Message:  fmt.Sprintf("You have been silent for %d seconds. Try to continue your answer.", int(silence.Seconds())),
		Severity: "medium",
		At:       now,
	}
}

// CheckRepetition looks at the unique-token ratio over the tail of the
// cumulative transcript.
func (e *Engine) CheckRepetition(t *Tracker, cumulative string, now time.Time) *Warning {
	tokens := Tokens(cumulative)
	if len(tokens) > e.cfg.RepetitionWindow {
		tokens = tokens[len(tokens)-e.cfg.RepetitionWindow:]
	}
	if len(tokens) < e.cfg.RepetitionMinTokens {
		return nil
	}

	if UniqueRatio(tokens) >= e.cfg.RepetitionRatio {
		return nil
	}
	if !t.allow(KindRepetition, e.cfg.RepetitionCooldown, now) {
		return nil
	}
	return &Warning{
		Kind:     KindRepetition,
		Message:  "You are repeating yourself. Try adding new details.",
		Severity: "medium",
		At:       now,
	}
}

// CountRepetitions adds stutters (a word said twice in a row) and repeated
// bigrams in text to the answer's repetition counter.
func (e *Engine) CountRepetitions(t *Tracker, text string) int {
	n := CountRepeats(Tokens(text))
	if n > 0 {
		t.addRepetitions(n)
	}
	return n
}

// CheckLength nudges the candidate once an answer runs past the length cap.
func (e *Engine) CheckLength(t *Tracker, recordingStart, now time.Time) *Warning {
	if recordingStart.IsZero() || now.Sub(recordingStart) < e.cfg.LengthCap {
		return nil
	}
	if !t.allow(KindLength, e.cfg.LengthCooldown, now) {
		return nil
	}
	return &Warning{
		Kind:     KindLength,
		Message:  "Your answer is running long. Try to wrap up.",
		Severity: "low",
		At:       now,
	}
}

// UniqueRatio returns distinct tokens divided by total tokens.
func UniqueRatio(tokens []string) float64 {
	if len(tokens) == 0 {
		return 1
	}
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		seen[tok] = struct{}{}
	}
	return float64(len(seen)) / float64(len(tokens))
}

// CountRepeats counts adjacent duplicate tokens plus every extra occurrence
// of a bigram.
func CountRepeats(tokens []string) int {
	n := 0
	bigrams := make(map[[2]string]int)
	for i := 1; i < len(tokens); i++ {
		if tokens[i] == tokens[i-1] {
			n++
			continue
		}
		key := [2]string{tokens[i-1], tokens[i]}
		bigrams[key]++
		if bigrams[key] > 1 {
			n++
		}
	}
	return n
}
