package interview

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/user/interview-coach/internal/audio"
	"github.com/user/interview-coach/internal/event"
	"github.com/user/interview-coach/internal/heuristics"
	"github.com/user/interview-coach/internal/observe"
	"github.com/user/interview-coach/internal/question"
	"github.com/user/interview-coach/internal/store"
	"github.com/user/interview-coach/internal/stt"
	"github.com/user/interview-coach/internal/summary"
	"go.opentelemetry.io/otel/metric/noop"
)

const spokenAnswer = "um so I think we should cache the results"

type passthroughDecoder struct{}

func (passthroughDecoder) Decode(data []byte) []byte { return data }

// fakeTranscriber "hears" spokenAnswer in any audio loud enough to be speech.
type fakeTranscriber struct {
	calls atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, pcm []byte) (stt.Result, error) {
	f.calls.Add(1)
	if audio.RMS(pcm) < 1000 {
		return stt.Result{}, nil
	}
	return stt.Result{Text: spokenAnswer, Confidence: 0.9}, nil
}

func (f *fakeTranscriber) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingSink) Send(e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) byKind(kind string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubProvider struct {
	calls atomic.Int32
	fail  bool
}

func (p *stubProvider) Generate(ctx context.Context, req question.Request) (string, error) {
	p.calls.Add(1)
	if p.fail {
		return "", errors.New("provider unavailable")
	}
	return fmt.Sprintf("Provider question number %d?", req.Number), nil
}

type testEnv struct {
	o     *Orchestrator
	store *store.MemoryStore
	stt   *fakeTranscriber
}

func newTestEnv(t *testing.T, provider question.Provider, clock *fakeClock) *testEnv {
	t.Helper()

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	cfg := DefaultConfig()
	cfg.MaxQuestions = 3
	cfg.Segmenter.PreviewInterval = 0

	env := &testEnv{store: store.NewMemoryStore(), stt: &fakeTranscriber{}}
	env.o = New(cfg, Deps{
		Store:       env.store,
		Decoder:     passthroughDecoder{},
		NewVAD:      func() audio.VAD { return audio.NewEnergyClassifier(320) },
		Engine:      heuristics.NewEngine(heuristics.DefaultConfig(), heuristics.DefaultVocabulary()),
		Transcriber: env.stt,
		Questions:   provider,
		Metrics:     metrics,
	})
	if clock != nil {
		env.o.now = clock.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := env.o.Pool().Start(ctx); err != nil {
		t.Fatalf("Pool.Start: %v", err)
	}
	t.Cleanup(env.o.Pool().Stop)
	return env
}

func tone(frames int) []byte {
	buf := make([]byte, frames*audio.FrameBytes)
	for i := 0; i < len(buf)/2; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/audio.SampleRate))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silence(frames int) []byte {
	return make([]byte, frames*audio.FrameBytes)
}

func sendAudio(t *testing.T, o *Orchestrator, connID string, pcm []byte) {
	t.Helper()
	for off := 0; off < len(pcm); off += 4000 {
		end := min(off+4000, len(pcm))
		if err := o.AudioFrame(context.Background(), connID, pcm[off:end]); err != nil {
			t.Fatalf("AudioFrame: %v", err)
		}
	}
}

func answer(t *testing.T, o *Orchestrator, connID string, pcm []byte) {
	t.Helper()
	ctx := context.Background()
	if err := o.RecordingStart(ctx, connID); err != nil {
		t.Fatalf("RecordingStart: %v", err)
	}
	sendAudio(t, o, connID, pcm)
	if err := o.AnswerComplete(ctx, connID); err != nil {
		t.Fatalf("AnswerComplete: %v", err)
	}
}

func spoken() []byte {
	return append(tone(50), silence(30)...)
}

func TestOrchestrator_FullInterview(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.o.cfg.MaxQuestions = 10
	sink := &recordingSink{}
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{Subject: "backend"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	for i := 0; i < 10; i++ {
		answer(t, env.o, "conn-1", spoken())
	}

	if got := len(sink.byKind("question-issued")); got != 10 {
		t.Errorf("question-issued events = %d, want 10", got)
	}
	feedback := sink.byKind("answer-feedback")
	if len(feedback) != 10 {
		t.Fatalf("answer-feedback events = %d, want 10", len(feedback))
	}
	for _, e := range feedback {
		fb := e.(event.AnswerFeedback)
		if fb.Transcript != spokenAnswer {
			t.Errorf("Q%d transcript = %q", fb.QuestionNumber, fb.Transcript)
		}
		if fb.Scores.FillerWordsCount != 2 {
			t.Errorf("Q%d fillers = %d, want 2", fb.QuestionNumber, fb.Scores.FillerWordsCount)
		}
	}

	completed := sink.byKind("session-completed")
	if len(completed) != 1 {
		t.Fatalf("session-completed events = %d, want 1", len(completed))
	}
	card := completed[0].(event.SessionCompleted).Scorecard.(*summary.Scorecard)
	if card.TotalQuestions != 10 || card.AnsweredQuestions != 10 {
		t.Errorf("scorecard questions = %d answered of %d, want 10 of 10", card.AnsweredQuestions, card.TotalQuestions)
	}
	for _, v := range []float64{card.Scores.Confidence, card.Scores.Clarity, card.Scores.TechnicalAccuracy, card.Scores.OverallCommunication} {
		if v < 0 || v > 100 {
			t.Errorf("score %.1f out of range", v)
		}
	}

	rec, err := env.store.GetSession(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec.Status != store.StatusCompleted || rec.CompletedQuestions != 10 {
		t.Errorf("stored session = %+v", rec)
	}
	if !st.Finished() {
		t.Error("session not finished")
	}
	if err := env.o.AnswerComplete(ctx, "conn-1"); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("AnswerComplete after completion = %v, want ErrSessionCompleted", err)
	}
}

func TestOrchestrator_SilenceOnlyAnswerAdvances(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	sink := &recordingSink{}
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{Subject: "dsa"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := env.o.RecordingStart(ctx, "conn-1"); err != nil {
		t.Fatalf("RecordingStart: %v", err)
	}
	sendAudio(t, env.o, "conn-1", silence(250))
	if err := env.o.RecordingStop(ctx, "conn-1"); err != nil {
		t.Fatalf("RecordingStop: %v", err)
	}
	if err := env.o.AnswerComplete(ctx, "conn-1"); err != nil {
		t.Fatalf("AnswerComplete: %v", err)
	}

	answers, err := env.store.ListAnswers(ctx, st.ID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("answers = %d, want 1", len(answers))
	}
	if answers[0].Transcript != "" || answers[0].FillerCount != 0 {
		t.Errorf("silent answer = %+v, want empty transcript and no fillers", answers[0])
	}
	if answers[0].Confidence != neutralScore {
		t.Errorf("confidence = %d, want neutral %d", answers[0].Confidence, neutralScore)
	}

	if got := st.Question().Number; got != 2 {
		t.Errorf("current question = %d, want 2", got)
	}
	if got := len(sink.byKind("partial-transcript")); got != 0 {
		t.Errorf("partial-transcript events = %d, want 0", got)
	}
}

func TestOrchestrator_EndSessionIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	sink := &recordingSink{}
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{Subject: "react"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := env.o.EndSession(ctx, "conn-1"); err != nil {
			t.Fatalf("EndSession #%d: %v", i+1, err)
		}
	}

	if got := len(sink.byKind("session-completed")); got != 1 {
		t.Errorf("session-completed events = %d, want 1", got)
	}
	answers, _ := env.store.ListAnswers(ctx, st.ID)
	if len(answers) != 0 {
		t.Errorf("answers = %d, want 0", len(answers))
	}
	rec, _ := env.store.GetSession(ctx, st.ID)
	if rec.Status != store.StatusCompleted || rec.EndTime.IsZero() {
		t.Errorf("stored session = %+v, want completed with end time", rec)
	}
}

func TestOrchestrator_RestartOnSameConnectionEndsPrevious(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	sink := &recordingSink{}
	ctx := context.Background()

	first, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{Subject: "react"})
	if err != nil {
		t.Fatalf("StartSession #1: %v", err)
	}
	second, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{Subject: "dsa"})
	if err != nil {
		t.Fatalf("StartSession #2: %v", err)
	}

	if _, ok := env.o.registry.BySessionID(first.ID); ok {
		t.Error("replaced session still registered")
	}
	if !first.Finished() {
		t.Error("replaced session not completed")
	}
	rec, _ := env.store.GetSession(ctx, first.ID)
	if rec.Status != store.StatusCompleted {
		t.Errorf("replaced session status = %q, want %q", rec.Status, store.StatusCompleted)
	}
	if got := len(sink.byKind("session-completed")); got != 0 {
		t.Errorf("session-completed events after restart = %d, want 0", got)
	}
	if got := env.o.ActiveSessions(); got != 1 {
		t.Errorf("ActiveSessions() = %d, want 1", got)
	}
	if err := first.Emit(event.Pong{}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := len(sink.byKind("pong")); got != 0 {
		t.Error("replaced session still delivers events to the connection")
	}

	if err := env.o.EndSession(ctx, "conn-1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	rec, _ = env.store.GetSession(ctx, second.ID)
	if rec.Status != store.StatusCompleted {
		t.Errorf("second session status = %q, want %q", rec.Status, store.StatusCompleted)
	}
	if got := len(sink.byKind("session-completed")); got != 1 {
		t.Errorf("session-completed events = %d, want 1", got)
	}
}

func TestOrchestrator_RequestedQuestionCountIsCapped(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{name: "above limit", requested: 50, want: 3},
		{name: "below limit", requested: 2, want: 2},
		{name: "unset", requested: 0, want: 3},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connID := fmt.Sprintf("conn-%d", i)
			st, err := env.o.StartSession(ctx, connID, &recordingSink{}, StartRequest{MaxQuestions: tt.requested})
			if err != nil {
				t.Fatalf("StartSession: %v", err)
			}
			if st.MaxQuestions != tt.want {
				t.Errorf("MaxQuestions = %d, want %d", st.MaxQuestions, tt.want)
			}
			rec, _ := env.store.GetSession(ctx, st.ID)
			if rec.TotalQuestions != tt.want {
				t.Errorf("stored TotalQuestions = %d, want %d", rec.TotalQuestions, tt.want)
			}
		})
	}
}

func TestOrchestrator_EndSessionKeepsAnswerInProgress(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	sink := &recordingSink{}
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := env.o.RecordingStart(ctx, "conn-1"); err != nil {
		t.Fatalf("RecordingStart: %v", err)
	}
	sendAudio(t, env.o, "conn-1", tone(40))

	if err := env.o.EndSession(ctx, "conn-1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	answers, _ := env.store.ListAnswers(ctx, st.ID)
	if len(answers) != 1 || answers[0].Transcript != spokenAnswer {
		t.Fatalf("answers = %+v, want the in-progress answer", answers)
	}
	card := sink.byKind("session-completed")[0].(event.SessionCompleted).Scorecard.(*summary.Scorecard)
	if card.AnsweredQuestions != 1 {
		t.Errorf("AnsweredQuestions = %d, want 1", card.AnsweredQuestions)
	}
}

func TestOrchestrator_ResumeKeepsCurrentQuestion(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-a", &recordingSink{}, StartRequest{Subject: "backend"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	answer(t, env.o, "conn-a", spoken())
	before := st.Question()

	env.o.Disconnect("conn-a")
	if err := env.o.RecordingStart(ctx, "conn-a"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("RecordingStart on detached connection = %v, want ErrUnknownSession", err)
	}

	sink := &recordingSink{}
	resumed, err := env.o.ResumeSession(ctx, "conn-b", sink, st.ID)
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if got := resumed.Question(); got != before {
		t.Errorf("resumed question = %+v, want %+v", got, before)
	}

	ev := sink.byKind("session-resumed")
	if len(ev) != 1 || ev[0].(event.SessionResumed).QuestionNumber != 2 {
		t.Fatalf("session-resumed events = %+v", ev)
	}
	issued := sink.byKind("question-issued")
	if len(issued) != 1 || issued[0].(event.QuestionIssued).QuestionID != before.ID {
		t.Errorf("question re-sent = %+v, want question %s", issued, before.ID)
	}

	if err := env.o.RecordingStart(ctx, "conn-b"); err != nil {
		t.Errorf("RecordingStart after resume: %v", err)
	}
}

func TestOrchestrator_ResumeErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	if _, err := env.o.ResumeSession(ctx, "conn-x", &recordingSink{}, "missing"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("resume unknown = %v, want ErrUnknownSession", err)
	}

	st, err := env.o.StartSession(ctx, "conn-a", &recordingSink{}, StartRequest{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := env.o.EndSession(ctx, "conn-a"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if _, err := env.o.ResumeSession(ctx, "conn-b", &recordingSink{}, st.ID); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("resume completed = %v, want ErrSessionCompleted", err)
	}

	// A fresh process only has the store to go on.
	other := New(DefaultConfig(), Deps{Store: env.store, Decoder: passthroughDecoder{}})
	if _, err := other.ResumeSession(ctx, "conn-c", &recordingSink{}, st.ID); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("resume completed from store = %v, want ErrSessionCompleted", err)
	}
}

func TestOrchestrator_ResumeFromStore(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-a", &recordingSink{}, StartRequest{Subject: "python"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	answer(t, env.o, "conn-a", spoken())
	want := st.Question()

	restarted := New(DefaultConfig(), Deps{Store: env.store, Decoder: passthroughDecoder{}})
	resumed, err := restarted.ResumeSession(ctx, "conn-b", &recordingSink{}, st.ID)
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if got := resumed.Question(); got != want {
		t.Errorf("question = %+v, want %+v", got, want)
	}
	if resumed.MaxQuestions != 3 || resumed.Subject != "Python development" {
		t.Errorf("restored session = %q with %d questions", resumed.Subject, resumed.MaxQuestions)
	}
}

func TestOrchestrator_LateTranscriptIsDiscarded(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	sink := &recordingSink{}
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	answer(t, env.o, "conn-1", spoken())
	partials := len(sink.byKind("partial-transcript"))

	env.o.handleSegment(ctx, &audio.Segment{ID: uuid.New(), SessionID: st.ID, QuestionNumber: 1}, stt.Result{Text: "late words"})

	if got := st.Transcript(); got != "" {
		t.Errorf("transcript for question 2 = %q, want empty", got)
	}
	if got := len(sink.byKind("partial-transcript")); got != partials {
		t.Errorf("late segment emitted a partial transcript")
	}
}

func TestOrchestrator_UnknownConnection(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	for name, call := range map[string]func() error{
		"recording-start": func() error { return env.o.RecordingStart(ctx, "nobody") },
		"audio-frame":     func() error { return env.o.AudioFrame(ctx, "nobody", tone(1)) },
		"recording-stop":  func() error { return env.o.RecordingStop(ctx, "nobody") },
		"answer-complete": func() error { return env.o.AnswerComplete(ctx, "nobody") },
		"end-session":     func() error { return env.o.EndSession(ctx, "nobody") },
	} {
		if err := call(); !errors.Is(err, ErrUnknownSession) {
			t.Errorf("%s = %v, want ErrUnknownSession", name, err)
		}
	}
}

func TestOrchestrator_AudioOutsideRecordingIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", &recordingSink{}, StartRequest{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := env.o.AudioFrame(ctx, "conn-1", tone(10)); !errors.Is(err, ErrNotRecording) {
		t.Errorf("AudioFrame = %v, want ErrNotRecording", err)
	}
	if len(st.PCM()) != 0 {
		t.Error("audio buffered outside a recording window")
	}
}

func TestOrchestrator_PrefetchedQuestionIsUsed(t *testing.T) {
	provider := &stubProvider{}
	env := newTestEnv(t, provider, nil)
	sink := &recordingSink{}
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if got := st.Question().Text; got != "Provider question number 1?" {
		t.Fatalf("question 1 = %q", got)
	}

	if err := env.o.RecordingStart(ctx, "conn-1"); err != nil {
		t.Fatalf("RecordingStart: %v", err)
	}
	p, ok := st.PendingPrefetch(2)
	if !ok {
		t.Fatal("no prefetch started for question 2")
	}
	if _, err := p.Wait(); err != nil {
		t.Fatalf("prefetch: %v", err)
	}

	sendAudio(t, env.o, "conn-1", spoken())
	if err := env.o.AnswerComplete(ctx, "conn-1"); err != nil {
		t.Fatalf("AnswerComplete: %v", err)
	}

	if got := st.Question().Text; got != "Provider question number 2?" {
		t.Errorf("question 2 = %q", got)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
}

func TestOrchestrator_ProviderFailureFallsBack(t *testing.T) {
	env := newTestEnv(t, &stubProvider{fail: true}, nil)
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", &recordingSink{}, StartRequest{Subject: "dsa"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if got, want := st.Question().Text, "Tell me about your experience with data structures and algorithms."; got != want {
		t.Errorf("question 1 = %q, want %q", got, want)
	}

	answer(t, env.o, "conn-1", spoken())
	if got, want := st.Question().Text, "Describe a challenge related to data structures and algorithms (Q2)."; got != want {
		t.Errorf("question 2 = %q, want %q", got, want)
	}

	questions, _ := env.store.ListQuestions(ctx, st.ID)
	if len(questions) != 2 || questions[1].ExpectedDuration != expectedAnswerSeconds {
		t.Errorf("stored questions = %+v", questions)
	}
}

func TestOrchestrator_ProcessCompleteAudio(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	sink := &recordingSink{}
	ctx := context.Background()

	st, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := env.o.ProcessCompleteAudio(ctx, "conn-1", silence(50)); err != nil {
		t.Fatalf("ProcessCompleteAudio: %v", err)
	}
	if err := env.o.ProcessCompleteAudio(ctx, "conn-1", tone(50)); err != nil {
		t.Fatalf("ProcessCompleteAudio: %v", err)
	}

	ev := sink.byKind("audio-transcription")
	if len(ev) != 2 {
		t.Fatalf("audio-transcription events = %d, want 2", len(ev))
	}
	if ev[0].(event.AudioTranscription).Success {
		t.Error("silent upload reported success")
	}
	if got := ev[1].(event.AudioTranscription); !got.Success || got.Transcript != spokenAnswer {
		t.Errorf("upload result = %+v", got)
	}
	if st.Transcript() != spokenAnswer {
		t.Errorf("transcript = %q", st.Transcript())
	}
	if got := st.Tracker.Counts().Fillers; got != 2 {
		t.Errorf("fillers = %d, want 2", got)
	}
}

func TestPauseMonitor_WarnsOncePerCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	env := newTestEnv(t, nil, clock)
	sink := &recordingSink{}
	ctx := context.Background()

	if _, err := env.o.StartSession(ctx, "conn-1", sink, StartRequest{}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// Silence before recording starts never counts.
	clock.Advance(time.Minute)
	env.o.checkPauses(ctx, clock.Now())
	if got := len(sink.byKind("live-warning")); got != 0 {
		t.Fatalf("warnings before recording = %d, want 0", got)
	}

	if err := env.o.RecordingStart(ctx, "conn-1"); err != nil {
		t.Fatalf("RecordingStart: %v", err)
	}
	clock.Advance(11 * time.Second)
	env.o.checkPauses(ctx, clock.Now())
	env.o.checkPauses(ctx, clock.Now())
	if got := len(sink.byKind("live-warning")); got != 1 {
		t.Fatalf("warnings after 11s = %d, want 1", got)
	}

	clock.Advance(4 * time.Second)
	env.o.checkPauses(ctx, clock.Now())
	warnings := sink.byKind("live-warning")
	if len(warnings) != 2 {
		t.Fatalf("warnings after cooldown = %d, want 2", len(warnings))
	}
	if w := warnings[1].(event.LiveWarning); w.Type != string(heuristics.KindPause) {
		t.Errorf("warning type = %q", w.Type)
	}

	if err := env.o.RecordingStop(ctx, "conn-1"); err != nil {
		t.Fatalf("RecordingStop: %v", err)
	}
	clock.Advance(time.Minute)
	env.o.checkPauses(ctx, clock.Now())
	if got := len(sink.byKind("live-warning")); got != 2 {
		t.Errorf("warnings after stop = %d, want 2", got)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		duration   time.Duration
		counts     heuristics.Counts
		want       event.FeedbackScores
	}{
		{
			name:     "empty",
			duration: 5 * time.Second,
			want: event.FeedbackScores{
				AnswerDuration: 5, ConfidenceScore: 50, ClarityScore: 50, TechnicalAccuracy: 50,
			},
		},
		{
			name:       "fluent",
			transcript: "I would shard the table by customer id",
			duration:   4 * time.Second,
			want: event.FeedbackScores{
				AnswerDuration: 4, WordsPerMinute: 120, ConfidenceScore: 70, ClarityScore: 70, TechnicalAccuracy: 70,
			},
		},
		{
			name:       "disfluent",
			transcript: "um uh so so I mean the the thing",
			duration:   30 * time.Second,
			counts:     heuristics.Counts{Fillers: 12, Pauses: 4, Repetitions: 3},
			want: event.FeedbackScores{
				FillerWordsCount: 12, AnswerDuration: 30, WordsPerMinute: 18, FillerDensity: 1.333,
				ConfidenceScore: 55, ClarityScore: 47, TechnicalAccuracy: 70,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.transcript, tt.duration, tt.counts); got != tt.want {
				t.Errorf("Score() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
