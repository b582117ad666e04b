package heuristics

import (
	"sync"
	"time"
)

// Kind identifies a live warning category.
type Kind string

const (
	KindFiller     Kind = "filler_words"
	KindPause      Kind = "long_pause"
	KindRepetition Kind = "repetition"
	KindLength     Kind = "length"
)

// Counts are the per-answer counters used for scoring.
type Counts struct {
	Fillers     int
	Pauses      int
	Repetitions int
	Breakdown   map[string]int
}

// Tracker is the per-session warning state. The connection goroutine and
// the transcription workers both touch it, so every method locks.
type Tracker struct {
	mu sync.Mutex

	lastEmit map[Kind]time.Time
	lastTerm map[string]time.Time

	fillers     int
	pauses      int
	repetitions int
	breakdown   map[string]int

	lastVoice time.Time
}

func NewTracker(now time.Time) *Tracker {
	return &Tracker{
		lastEmit:  make(map[Kind]time.Time),
		lastTerm:  make(map[string]time.Time),
		breakdown: make(map[string]int),
		lastVoice: now,
	}
}

// ResetAnswer zeroes the per-answer counters. It runs once per answer
// boundary; cooldown timestamps survive it.
func (t *Tracker) ResetAnswer() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fillers = 0
	t.pauses = 0
	t.repetitions = 0
	t.breakdown = make(map[string]int)
}

// StartRecording restarts the silence clock so silence from before the
// recording cannot trigger a pause warning straight away. Earlier emissions
// keep their cooldowns across recording windows.
func (t *Tracker) StartRecording(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastVoice = now
	t.lastEmit[KindPause] = now
}

func (t *Tracker) MarkVoice(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.After(t.lastVoice) {
		t.lastVoice = now
	}
}

func (t *Tracker) LastVoice() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastVoice
}

func (t *Tracker) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()

	breakdown := make(map[string]int, len(t.breakdown))
	for k, v := range t.breakdown {
		breakdown[k] = v
	}
	return Counts{
		Fillers:     t.fillers,
		Pauses:      t.pauses,
		Repetitions: t.repetitions,
		Breakdown:   breakdown,
	}
}

// LastEmitted returns when kind last fired, or the zero time.
func (t *Tracker) LastEmitted(kind Kind) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEmit[kind]
}

func (t *Tracker) addFillers(terms []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fillers += len(terms)
	for _, term := range terms {
		t.breakdown[term]++
	}
}

func (t *Tracker) addRepetitions(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.repetitions += n
}

// allow reports whether kind may fire now and, if so, records the emission.
func (t *Tracker) allow(kind Kind, cooldown time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastEmit[kind]; ok && now.Sub(last) < cooldown {
		return false
	}
	t.lastEmit[kind] = now
	if kind == KindPause {
		t.pauses++
	}
	return true
}

// allowFillers applies the global filler cooldown and the per-term dedup
// window in one step. It returns the terms that had not warned within dedup.
func (t *Tracker) allowFillers(terms []string, strong func(string) bool, cooldown, dedup time.Duration, now time.Time) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastEmit[KindFiller]; ok && now.Sub(last) < cooldown {
		return nil, false
	}

	var fresh []string
	hasStrong := false
	for _, term := range terms {
		if last, ok := t.lastTerm[term]; !ok || now.Sub(last) >= dedup {
			fresh = append(fresh, term)
		}
		if strong(term) {
			hasStrong = true
		}
	}
	if len(fresh) == 0 && !hasStrong {
		return nil, false
	}

	t.lastEmit[KindFiller] = now
	for _, term := range terms {
		t.lastTerm[term] = now
	}
	return fresh, true
}
