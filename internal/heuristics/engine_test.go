package heuristics

import (
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newEngine(t *testing.T, vocab *Vocabulary) *Engine {
	t.Helper()
	return NewEngine(DefaultConfig(), vocab)
}

func TestSegmentFillers_CooldownSuppressesSecondWarning(t *testing.T) {
	e := newEngine(t, nil)
	t0 := time.Now()
	tr := NewTracker(t0)

	text := "um so like I think uh"

	hits, w := e.SegmentFillers(tr, text, t0)
	if w == nil {
		t.Fatal("first call produced no warning")
	}
	if w.Kind != KindFiller {
		t.Errorf("kind = %s, want %s", w.Kind, KindFiller)
	}
	if want := []string{"um", "so", "like", "uh"}; !reflect.DeepEqual(hits, want) {
		t.Errorf("hits = %v, want %v", hits, want)
	}

	if _, w := e.SegmentFillers(tr, text, t0.Add(500*time.Millisecond)); w != nil {
		t.Errorf("second call inside the cooldown warned: %+v", w)
	}

	c := tr.Counts()
	if c.Fillers != 8 {
		t.Errorf("filler count = %d, want 8", c.Fillers)
	}
	if c.Breakdown["um"] != 2 {
		t.Errorf("breakdown[um] = %d, want 2", c.Breakdown["um"])
	}
}

func TestSegmentFillers_DedupAndStrongBypass(t *testing.T) {
	e := newEngine(t, nil)
	t0 := time.Now()
	tr := NewTracker(t0)

	if _, w := e.SegmentFillers(tr, "basically it works", t0); w == nil {
		t.Fatal("expected first warning")
	}

	// Past the cooldown but inside the dedup window: a repeated weak term stays quiet.
	if _, w := e.SegmentFillers(tr, "basically yes", t0.Add(2100*time.Millisecond)); w != nil {
		t.Errorf("weak repeated term warned inside dedup window")
	}

	// A strong term bypasses dedup once the cooldown has passed.
	if _, w := e.SegmentFillers(tr, "um", t0.Add(2200*time.Millisecond)); w == nil {
		t.Error("strong term did not warn after cooldown")
	}
	if _, w := e.SegmentFillers(tr, "um", t0.Add(4300*time.Millisecond)); w == nil {
		t.Error("strong term inside dedup window did not bypass it")
	} else if len(w.NewTerms) != 0 {
		t.Errorf("NewTerms = %v, want none", w.NewTerms)
	}
}

func TestPreviewFillers_WarnWithoutCounting(t *testing.T) {
	e := newEngine(t, nil)
	now := time.Now()
	tr := NewTracker(now)

	hits, w := e.PreviewFillers(tr, "uh well", now)
	if len(hits) != 2 || w == nil || w.Source != "partial" {
		t.Fatalf("PreviewFillers = %v, %+v", hits, w)
	}
	if c := tr.Counts(); c.Fillers != 0 {
		t.Errorf("preview hits were counted: %d", c.Fillers)
	}
}

func TestCheckPause(t *testing.T) {
	e := newEngine(t, nil)
	t0 := time.Now()
	tr := NewTracker(t0)
	tr.StartRecording(t0)

	if w := e.CheckPause(tr, t0.Add(9*time.Second)); w != nil {
		t.Fatal("pause warned before the threshold")
	}
	if w := e.CheckPause(tr, t0.Add(11*time.Second)); w == nil || w.Kind != KindPause {
		t.Fatalf("no pause warning after 11s of silence")
	}
	if w := e.CheckPause(tr, t0.Add(12*time.Second)); w != nil {
		t.Fatal("pause warned inside its cooldown")
	}
	if w := e.CheckPause(tr, t0.Add(14*time.Second)); w == nil {
		t.Fatal("pause did not re-warn after its cooldown")
	}

	tr.MarkVoice(t0.Add(15 * time.Second))
	if w := e.CheckPause(tr, t0.Add(20*time.Second)); w != nil {
		t.Fatal("pause warned after fresh voice")
	}
	if c := tr.Counts(); c.Pauses != 2 {
		t.Errorf("pause count = %d, want 2", c.Pauses)
	}
}

func TestCheckRepetition(t *testing.T) {
	e := newEngine(t, nil)
	now := time.Now()
	tr := NewTracker(now)

	if w := e.CheckRepetition(tr, "we we we we", now); w != nil {
		t.Fatal("warned on a window shorter than the minimum")
	}

	varied := "the service reads events from kafka and writes aggregates into postgres every minute"
	if w := e.CheckRepetition(tr, varied, now); w != nil {
		t.Fatal("warned on varied speech")
	}

	looping := "it is good it is good it is good it is good it is good"
	if w := e.CheckRepetition(tr, looping, now); w == nil {
		t.Fatal("no warning on looping speech")
	}
	if w := e.CheckRepetition(tr, looping, now.Add(time.Second)); w != nil {
		t.Fatal("repetition warned inside its cooldown")
	}
}

func TestCountRepetitions(t *testing.T) {
	e := newEngine(t, nil)
	tr := NewTracker(time.Now())

	if n := e.CountRepetitions(tr, "I think I think that that works"); n != 2 {
		t.Errorf("CountRepetitions = %d, want 2", n)
	}
	if c := tr.Counts(); c.Repetitions != 2 {
		t.Errorf("tracker repetitions = %d, want 2", c.Repetitions)
	}
}

func TestCheckLength(t *testing.T) {
	e := newEngine(t, nil)
	start := time.Now()
	tr := NewTracker(start)

	if w := e.CheckLength(tr, start, start.Add(30*time.Second)); w != nil {
		t.Fatal("length warned before the cap")
	}
	if w := e.CheckLength(tr, start, start.Add(41*time.Second)); w == nil {
		t.Fatal("no length warning after the cap")
	}
	if w := e.CheckLength(tr, start, start.Add(50*time.Second)); w != nil {
		t.Fatal("length warned inside its cooldown")
	}
	if w := e.CheckLength(tr, time.Time{}, start.Add(time.Hour)); w != nil {
		t.Fatal("length warned without a recording start")
	}
}

func TestResetAnswer(t *testing.T) {
	e := newEngine(t, nil)
	now := time.Now()
	tr := NewTracker(now)

	e.SegmentFillers(tr, "um uh", now)
	e.CountRepetitions(tr, "go go")
	tr.ResetAnswer()

	c := tr.Counts()
	if c.Fillers != 0 || c.Repetitions != 0 || len(c.Breakdown) != 0 {
		t.Errorf("counts after reset = %+v", c)
	}
}

// Every kind must respect its cooldown whatever the input sequence.
func TestWarningsRespectCooldowns(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg, nil)
	cooldowns := map[Kind]time.Duration{
		KindFiller:     cfg.FillerCooldown,
		KindPause:      cfg.PauseCooldown,
		KindRepetition: cfg.RepetitionCooldown,
		KindLength:     cfg.LengthCooldown,
	}
	texts := []string{
		"um", "uh well", "so so", "like you know", "basically actually",
		"it is it is it is it is it is it is", "plain words here", "",
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		t0 := time.Now()
		tr := NewTracker(t0)
		tr.StartRecording(t0)
		now := t0
		last := map[Kind]time.Time{}
		cumulative := ""

		check := func(w *Warning) {
			if w == nil {
				return
			}
			if prev, ok := last[w.Kind]; ok && w.At.Sub(prev) < cooldowns[w.Kind] {
				t.Fatalf("trial %d: %s fired %s after the previous one (cooldown %s)",
					trial, w.Kind, w.At.Sub(prev), cooldowns[w.Kind])
			}
			last[w.Kind] = w.At
		}

		for step := 0; step < 300; step++ {
			now = now.Add(time.Duration(rng.Intn(1500)) * time.Millisecond)
			text := texts[rng.Intn(len(texts))]
			cumulative += " " + text

			if rng.Intn(3) == 0 {
				tr.MarkVoice(now)
			}
			if rng.Intn(12) == 0 {
				tr.StartRecording(now)
			}
			_, w := e.SegmentFillers(tr, text, now)
			check(w)
			_, w = e.PreviewFillers(tr, text, now)
			check(w)
			check(e.CheckPause(tr, now))
			check(e.CheckRepetition(tr, cumulative, now))
			check(e.CheckLength(tr, t0, now))
		}
	}
}

func TestCheckLength_CooldownSurvivesRerecording(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	start := time.Now()
	tr := NewTracker(start)
	tr.StartRecording(start)

	if w := e.CheckLength(tr, start, start.Add(45*time.Second)); w == nil {
		t.Fatal("no length warning at 45s")
	}

	tr.StartRecording(start.Add(47 * time.Second))
	if w := e.CheckLength(tr, start, start.Add(47*time.Second+20*time.Millisecond)); w != nil {
		t.Fatalf("second length warning %s after the first, cooldown is %s",
			w.At.Sub(start.Add(45*time.Second)), DefaultConfig().LengthCooldown)
	}
	if w := e.CheckLength(tr, start, start.Add(65*time.Second)); w == nil {
		t.Error("no length warning once the cooldown elapsed")
	}
}

func TestVocabulary(t *testing.T) {
	tests := []struct {
		name  string
		vocab *Vocabulary
		text  string
		want  []string
	}{
		{
			name:  "default hesitations",
			vocab: DefaultVocabulary(),
			text:  "Umm, I UH think, you  know, it's kind of fine",
			want:  []string{"umm", "uh", "you know", "kind of"},
		},
		{
			name:  "stutter wins over single word",
			vocab: DefaultVocabulary(),
			text:  "so so the the plan",
			want:  []string{"so so", "the the"},
		},
		{
			name:  "no match inside words",
			vocab: DefaultVocabulary(),
			text:  "summer hummus whereas",
			want:  nil,
		},
		{
			name:  "custom vocabulary",
			vocab: mustVocabulary(t, []string{`\bokay\b`, `\bright\b`}, nil),
			text:  "okay so right",
			want:  []string{"okay", "right"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.vocab.Find(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Find() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fillers.yaml")
	data := "patterns:\n  - '\\bokay\\b'\n  - '\\bum+\\b'\nstrong:\n  - okay\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}
	if got := v.Find("Okay, umm, like"); !reflect.DeepEqual(got, []string{"okay", "umm"}) {
		t.Errorf("Find() = %v", got)
	}
	if !v.IsStrong("OKAY") || v.IsStrong("um") {
		t.Error("strong set not taken from the file")
	}

	if _, err := LoadVocabulary(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestNewVocabulary_RejectsBadPattern(t *testing.T) {
	if _, err := NewVocabulary([]string{`(`}, nil); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := NewVocabulary(nil, nil); err == nil {
		t.Fatal("expected error for empty pattern list")
	}
}

func mustVocabulary(t *testing.T, patterns, strong []string) *Vocabulary {
	t.Helper()
	v, err := NewVocabulary(patterns, strong)
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}
	return v
}
