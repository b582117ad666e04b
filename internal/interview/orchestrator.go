// Package interview drives one mock interview from the first question to the
// scorecard. It turns inbound control signals into segmenter, transcription,
// heuristics and persistence work and emits typed events back to the
// candidate's connection.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/user/interview-coach/internal/audio"
	"github.com/user/interview-coach/internal/event"
	"github.com/user/interview-coach/internal/heuristics"
	"github.com/user/interview-coach/internal/observe"
	"github.com/user/interview-coach/internal/question"
	"github.com/user/interview-coach/internal/session"
	"github.com/user/interview-coach/internal/store"
	"github.com/user/interview-coach/internal/stt"
	"github.com/user/interview-coach/internal/summary"
)

var (
	ErrUnknownSession   = errors.New("no interview session for this connection")
	ErrSessionCompleted = errors.New("interview session already completed")
	// ErrNotRecording is returned for audio that arrives outside a
	// recording window. Callers drop it silently.
	ErrNotRecording = errors.New("session is not recording")
)

const (
	defaultSubject    = "software engineering"
	defaultDifficulty = "intermediate"
	defaultPersona    = "friendly"

	expectedAnswerSeconds = 120
	previewTimeout        = 5 * time.Second
)

type Config struct {
	MaxQuestions    int
	FinalizeWait    time.Duration // bound on waiting for queued segments at answer end
	QuestionTimeout time.Duration
	MonitorInterval time.Duration
	Segmenter       audio.SegmenterConfig
}

func DefaultConfig() Config {
	return Config{
		MaxQuestions:    10,
		FinalizeWait:    2 * time.Second,
		QuestionTimeout: 30 * time.Second,
		MonitorInterval: time.Second,
		Segmenter: audio.SegmenterConfig{
			MaxSegment:      1250 * time.Millisecond,
			MinSegment:      300 * time.Millisecond,
			SilenceTail:     450 * time.Millisecond,
			PreviewMin:      350 * time.Millisecond,
			PreviewInterval: 500 * time.Millisecond,
			PreviewWindow:   1200 * time.Millisecond,
		},
	}
}

// Deps are the collaborators an Orchestrator works with. Questions may be
// nil, in which case every question is a fallback question.
type Deps struct {
	Registry    session.Registry
	Store       store.Store
	Decoder     audio.Decoder
	NewVAD      func() audio.VAD // one detector per session
	Engine      *heuristics.Engine
	Transcriber stt.Transcriber
	Questions   question.Provider
	Metrics     *observe.Metrics
	PoolOptions []stt.PoolOption
}

// StartRequest is the candidate's interview setup.
type StartRequest struct {
	Subject      string
	Difficulty   string
	Persona      string
	MaxQuestions int
}

type Orchestrator struct {
	cfg Config

	registry    session.Registry
	store       store.Store
	decoder     audio.Decoder
	newVAD      func() audio.VAD
	engine      *heuristics.Engine
	transcriber stt.Transcriber
	questions   question.Provider
	metrics     *observe.Metrics
	pool        *stt.Pool

	// locks serializes control signals per session id.
	locks sync.Map

	now func() time.Time
}

func New(cfg Config, deps Deps) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		registry:    deps.Registry,
		store:       deps.Store,
		decoder:     deps.Decoder,
		newVAD:      deps.NewVAD,
		engine:      deps.Engine,
		transcriber: deps.Transcriber,
		questions:   deps.Questions,
		metrics:     deps.Metrics,
		now:         time.Now,
	}
	if o.cfg.MaxQuestions <= 0 {
		o.cfg.MaxQuestions = 10
	}
	if o.cfg.MonitorInterval <= 0 {
		o.cfg.MonitorInterval = time.Second
	}
	if o.registry == nil {
		o.registry = session.NewMemoryRegistry()
	}
	if o.engine == nil {
		o.engine = heuristics.NewEngine(heuristics.DefaultConfig(), nil)
	}
	if o.newVAD == nil {
		o.newVAD = func() audio.VAD { return audio.NewEnergyClassifier(320) }
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}

	opts := append([]stt.PoolOption{stt.WithMetrics(o.metrics)}, deps.PoolOptions...)
	o.pool = stt.NewPool(deps.Transcriber, o.handleSegment, opts...)
	return o
}

// Pool is the transcription queue. Callers start and stop it.
func (o *Orchestrator) Pool() *stt.Pool {
	return o.pool
}

func (o *Orchestrator) ActiveSessions() int {
	return o.registry.Len()
}

func (o *Orchestrator) lock(sessionID string) func() {
	m, _ := o.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (o *Orchestrator) lookup(connID string) (*session.State, error) {
	st, ok := o.registry.ByConnection(connID)
	if !ok {
		return nil, ErrUnknownSession
	}
	return st, nil
}

// StartSession creates a session bound to connID and issues question 1. A
// session already bound to connID is ended first. A requested question count
// may shorten the interview but never lengthen it past the configured limit.
func (o *Orchestrator) StartSession(ctx context.Context, connID string, sink event.Sink, req StartRequest) (*session.State, error) {
	o.retire(ctx, connID)

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = defaultSubject
	}
	subject = question.SubjectName(subject)
	difficulty := orDefault(req.Difficulty, defaultDifficulty)
	persona := orDefault(req.Persona, defaultPersona)
	maxQuestions := o.cfg.MaxQuestions
	if req.MaxQuestions > 0 && req.MaxQuestions < maxQuestions {
		maxQuestions = req.MaxQuestions
	}

	now := o.now()
	st := session.NewState(uuid.NewString(), subject, difficulty, persona, maxQuestions, now)
	st.Segmenter = audio.NewSegmenter(o.cfg.Segmenter, o.newVAD())

	unlock := o.lock(st.ID)
	defer unlock()

	if err := o.store.CreateSession(ctx, &store.Session{
		ID:             st.ID,
		Subject:        subject,
		Difficulty:     difficulty,
		Persona:        persona,
		Status:         store.StatusActive,
		StartTime:      now,
		TotalQuestions: maxQuestions,
	}); err != nil {
		log.Error().
			Err(err).
			Str("session_id", st.ID).
			Msg("Failed to persist session")
	}

	o.registry.Put(st)
	o.registry.Bind(connID, st)
	st.Bind(connID, sink)
	o.metrics.ActiveSessions.Add(ctx, 1)

	log.Info().
		Str("session_id", st.ID).
		Str("conn_id", connID).
		Str("subject", subject).
		Str("difficulty", difficulty).
		Int("max_questions", maxQuestions).
		Msg("Interview session started")

	o.emit(st, event.SessionStarted{SessionID: st.ID, Status: store.StatusActive})
	o.issueQuestion(ctx, st, 1)
	return st, nil
}

// RecordingStart opens the answer window for the current question and
// starts generating the next question in the background.
func (o *Orchestrator) RecordingStart(ctx context.Context, connID string) error {
	st, err := o.lookup(connID)
	if err != nil {
		return err
	}
	unlock := o.lock(st.ID)
	defer unlock()

	if st.Finished() {
		return ErrSessionCompleted
	}

	now := o.now()
	st.Segmenter.Reset()
	st.StartRecording(now)
	st.Tracker.StartRecording(now)

	n := st.Question().Number
	if n < st.MaxQuestions && o.questions != nil {
		next := n + 1
		if st.StartPrefetch(next, func() (string, error) {
			pctx, cancel := o.questionContext()
			defer cancel()
			return o.questions.Generate(pctx, o.questionRequest(pctx, st, next))
		}) {
			log.Debug().
				Str("session_id", st.ID).
				Int("question", next).
				Msg("question.prefetch")
		}
	}

	log.Info().
		Str("session_id", st.ID).
		Int("question", n).
		Msg("recording.start")
	o.emit(st, event.RecordingStarted{Status: "recording"})
	return nil
}

// AudioFrame feeds one client audio chunk through the decoder and the
// segmenter. Sealed segments go to the transcription queue.
func (o *Orchestrator) AudioFrame(ctx context.Context, connID string, data []byte) error {
	st, err := o.lookup(connID)
	if err != nil {
		return err
	}
	unlock := o.lock(st.ID)
	defer unlock()

	if !st.Recording() {
		return ErrNotRecording
	}

	pcm := o.decoder.Decode(data)
	if len(pcm) == 0 {
		log.Debug().
			Str("session_id", st.ID).
			Int("bytes", len(data)).
			Msg("Audio chunk produced no PCM")
		return nil
	}
	st.AppendPCM(pcm)

	now := o.now()
	res := st.Segmenter.Feed(pcm, now)
	if res.Voiced {
		st.Tracker.MarkVoice(now)
	}
	for _, seg := range res.Segments {
		o.enqueue(st, seg)
	}
	if res.Preview != nil {
		o.preview(st, res.Preview)
	}

	if w := o.engine.CheckPause(st.Tracker, now); w != nil {
		o.warn(ctx, st, w)
	}
	start, _ := st.RecordingWindow()
	if w := o.engine.CheckLength(st.Tracker, start, now); w != nil {
		o.warn(ctx, st, w)
	}
	return nil
}

// RecordingStop closes intake and flushes whatever the segmenter holds.
func (o *Orchestrator) RecordingStop(ctx context.Context, connID string) error {
	st, err := o.lookup(connID)
	if err != nil {
		return err
	}
	unlock := o.lock(st.ID)
	defer unlock()

	if st.Finished() {
		return ErrSessionCompleted
	}

	o.stopRecording(st)
	o.emit(st, event.RecordingStopped{Status: "stopped"})
	return nil
}

// AnswerComplete finalizes the current answer, then issues the next question
// or completes the interview.
func (o *Orchestrator) AnswerComplete(ctx context.Context, connID string) error {
	st, err := o.lookup(connID)
	if err != nil {
		return err
	}
	unlock := o.lock(st.ID)
	defer unlock()

	if st.Finished() {
		return ErrSessionCompleted
	}

	o.finalizeAnswer(ctx, st)
	o.advance(ctx, st, st.Question().Number)
	return nil
}

// EndSession completes the interview immediately. A pending answer with
// any audio or text is finalized first. Calling it again is a no-op.
func (o *Orchestrator) EndSession(ctx context.Context, connID string) error {
	st, err := o.lookup(connID)
	if err != nil {
		return err
	}
	unlock := o.lock(st.ID)
	defer unlock()

	if st.Finished() {
		log.Debug().
			Str("session_id", st.ID).
			Msg("End of an already completed session ignored")
		return nil
	}

	o.finish(ctx, st)
	return nil
}

// finish saves a pending answer with any audio or text, then completes st.
func (o *Orchestrator) finish(ctx context.Context, st *session.State) {
	if !st.AnswerSaved() && (st.Recording() || len(st.PCM()) > 0 || st.Transcript() != "") {
		o.finalizeAnswer(ctx, st)
	}
	o.complete(ctx, st)
}

// retire ends the session bound to connID, if any, without notifying the
// connection. It runs when a client starts over on the same connection.
func (o *Orchestrator) retire(ctx context.Context, connID string) {
	prev, ok := o.registry.Detach(connID)
	if !ok {
		return
	}
	unlock := o.lock(prev.ID)
	defer unlock()

	prev.Unbind(connID)
	if !prev.Finished() {
		o.finish(ctx, prev)
	}
	o.registry.Remove(prev.ID)
	o.locks.Delete(prev.ID)

	log.Info().
		Str("session_id", prev.ID).
		Str("conn_id", connID).
		Msg("Session replaced by a new start on the same connection")
}

// ProcessCompleteAudio transcribes a whole recorded answer in one pass and
// makes it the current answer's transcript.
func (o *Orchestrator) ProcessCompleteAudio(ctx context.Context, connID string, data []byte) error {
	st, err := o.lookup(connID)
	if err != nil {
		return err
	}
	unlock := o.lock(st.ID)
	defer unlock()

	if st.Finished() {
		return ErrSessionCompleted
	}

	pcm := o.decoder.Decode(data)
	if len(pcm) == 0 {
		o.emit(st, event.AudioTranscription{Success: false, Message: "Could not decode audio"})
		return nil
	}
	if o.transcriber == nil {
		o.emit(st, event.AudioTranscription{Success: false, Message: "Transcription is unavailable"})
		return nil
	}

	res, err := o.transcriber.Transcribe(ctx, pcm)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", st.ID).
			Msg("Complete audio transcription failed")
		o.emit(st, event.AudioTranscription{Success: false, Message: "Transcription failed"})
		return nil
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		o.emit(st, event.AudioTranscription{Success: false, Message: "No speech detected in audio"})
		return nil
	}

	now := o.now()
	st.SetPCM(pcm)
	st.ReplaceTranscript(text)
	st.Tracker.ResetAnswer()
	o.engine.SegmentFillers(st.Tracker, text, now)
	o.engine.CountRepetitions(st.Tracker, text)

	log.Info().
		Str("session_id", st.ID).
		Int("question", st.Question().Number).
		Dur("duration", audio.BytesToDuration(len(pcm))).
		Msg("Complete answer audio transcribed")
	o.emit(st, event.AudioTranscription{Success: true, Transcript: text})
	return nil
}

// ResumeSession binds connID to an existing session. Sessions no longer in
// memory are rebuilt from the store.
func (o *Orchestrator) ResumeSession(ctx context.Context, connID string, sink event.Sink, sessionID string) (*session.State, error) {
	st, ok := o.registry.BySessionID(sessionID)
	rebuilt := false
	if !ok {
		var err error
		st, err = o.restore(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		rebuilt = true
	}

	unlock := o.lock(st.ID)
	defer unlock()

	if st.Finished() {
		return nil, ErrSessionCompleted
	}

	o.registry.Bind(connID, st)
	st.Bind(connID, sink)

	q := st.Question()
	log.Info().
		Str("session_id", st.ID).
		Str("conn_id", connID).
		Int("question", q.Number).
		Bool("from_store", rebuilt).
		Msg("Interview session resumed")

	o.emit(st, event.SessionResumed{
		SessionID:      st.ID,
		QuestionNumber: q.Number,
		TotalQuestions: st.MaxQuestions,
	})

	switch {
	case q.Number == 0:
		o.issueQuestion(ctx, st, 1)
	case st.AnswerSaved():
		o.advance(ctx, st, q.Number)
	default:
		o.emitQuestion(st, q)
	}
	return st, nil
}

func (o *Orchestrator) restore(ctx context.Context, sessionID string) (*session.State, error) {
	rec, err := o.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if rec.Status == store.StatusCompleted {
		return nil, ErrSessionCompleted
	}

	questions, err := o.store.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	answers, err := o.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	maxQuestions := rec.TotalQuestions
	if maxQuestions <= 0 {
		maxQuestions = o.cfg.MaxQuestions
	}
	st := session.NewState(rec.ID, rec.Subject, rec.Difficulty, rec.Persona, maxQuestions, rec.StartTime)
	st.Segmenter = audio.NewSegmenter(o.cfg.Segmenter, o.newVAD())

	if len(questions) > 0 {
		last := questions[len(questions)-1]
		st.IssueQuestion(session.Question{ID: last.ID, Number: last.Number, Text: last.Text})
		for _, a := range answers {
			if a.QuestionID == last.ID {
				st.MarkAnswerSaved()
			}
		}
	}

	o.registry.Put(st)
	o.metrics.ActiveSessions.Add(ctx, 1)
	return st, nil
}

// Disconnect detaches connID. The session stays resumable; audio buffered so
// far is flushed to the transcription queue.
func (o *Orchestrator) Disconnect(connID string) {
	st, ok := o.registry.Detach(connID)
	if !ok {
		return
	}
	unlock := o.lock(st.ID)
	defer unlock()

	st.Unbind(connID)
	if st.Finished() {
		o.registry.Remove(st.ID)
		o.locks.Delete(st.ID)
	} else {
		o.stopRecording(st)
	}

	log.Info().
		Str("session_id", st.ID).
		Str("conn_id", connID).
		Bool("completed", st.Finished()).
		Msg("Connection detached from session")
}

// Summary builds the scorecard of a stored session.
func (o *Orchestrator) Summary(ctx context.Context, sessionID string) (*summary.Scorecard, error) {
	return summary.Build(ctx, o.store, o.engine.Vocabulary(), sessionID)
}

func (o *Orchestrator) stopRecording(st *session.State) {
	now := o.now()
	if !st.StopRecording(now) {
		return
	}
	if seg := st.Segmenter.Flush(now); seg != nil {
		log.Debug().
			Str("session_id", st.ID).
			Str("segment_id", seg.ID.String()).
			Dur("duration", seg.Duration()).
			Msg("segment.force_flush")
		o.enqueue(st, seg)
	}
}

func (o *Orchestrator) enqueue(st *session.State, seg *audio.Segment) {
	seg.SessionID = st.ID
	seg.ConnectionID = st.ConnID()
	seg.QuestionNumber = st.Question().Number
	o.pool.Enqueue(seg)
}

// handleSegment is the pool callback for one transcribed segment.
func (o *Orchestrator) handleSegment(ctx context.Context, seg *audio.Segment, res stt.Result) {
	st, ok := o.registry.BySessionID(seg.SessionID)
	if !ok {
		log.Debug().
			Str("session_id", seg.SessionID).
			Str("segment_id", seg.ID.String()).
			Msg("Transcript for unknown session dropped")
		return
	}

	text := strings.TrimSpace(res.Text)
	cumulative, accepted := st.AppendTranscript(seg.QuestionNumber, text)
	if !accepted {
		log.Debug().
			Str("session_id", st.ID).
			Str("segment_id", seg.ID.String()).
			Int("question", seg.QuestionNumber).
			Msg("segment.late")
		return
	}
	if text == "" {
		return
	}

	now := o.now()
	hits, fw := o.engine.SegmentFillers(st.Tracker, text, now)
	o.engine.CountRepetitions(st.Tracker, text)
	counts := st.Tracker.Counts()

	o.emit(st, event.PartialTranscript{
		SegmentID:            seg.ID.String(),
		Text:                 text,
		IsFinal:              true,
		CumulativeTranscript: cumulative,
		FillersDetected:      hits,
		FillerCountSegment:   len(hits),
		FillerCountSession:   counts.Fillers,
	})

	if fw != nil {
		o.warn(ctx, st, fw)
	}
	if rw := o.engine.CheckRepetition(st.Tracker, cumulative, now); rw != nil {
		o.warn(ctx, st, rw)
	}
}

// preview transcribes the tail of the segmenter buffer for live feedback.
// At most one preview per session runs at a time.
func (o *Orchestrator) preview(st *session.State, pcm []byte) {
	if o.transcriber == nil || !st.TryBeginPreview() {
		return
	}
	n := st.Question().Number

	go func() {
		defer st.EndPreview()

		ctx, cancel := context.WithTimeout(context.Background(), previewTimeout)
		defer cancel()

		res, err := o.transcriber.Transcribe(ctx, pcm)
		if err != nil {
			log.Debug().Err(err).Str("session_id", st.ID).Msg("Preview transcription failed")
			return
		}
		text := strings.TrimSpace(res.Text)
		if text == "" || st.Question().Number != n || st.AnswerSaved() {
			return
		}

		hits, w := o.engine.PreviewFillers(st.Tracker, text, o.now())
		o.emit(st, event.PartialTranscript{
			SegmentID:            "preview",
			Text:                 text,
			Preview:              true,
			CumulativeTranscript: st.Transcript(),
			FillersDetected:      hits,
		})
		if w != nil {
			o.warn(ctx, st, w)
		}
	}()
}

// finalizeAnswer scores and persists the current answer.
func (o *Orchestrator) finalizeAnswer(ctx context.Context, st *session.State) {
	if st.AnswerSaved() {
		return
	}
	st.SetPhase(session.PhaseFinalizing)
	o.stopRecording(st)

	waitCtx := ctx
	if o.cfg.FinalizeWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.cfg.FinalizeWait)
		defer cancel()
	}
	if err := o.pool.Wait(waitCtx, st.ID); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", st.ID).
			Int("pending", o.pool.Pending(st.ID)).
			Msg("Finalizing answer before its segments were transcribed")
	}

	now := o.now()
	transcript := st.Transcript()
	if transcript == "" {
		transcript = o.transcribeDirect(ctx, st, now)
	}

	q := st.Question()
	duration := o.answerDuration(st, now)
	counts := st.Tracker.Counts()
	scores := Score(transcript, duration, counts)

	answer := &store.Answer{
		ID:             uuid.NewString(),
		SessionID:      st.ID,
		QuestionID:     q.ID,
		QuestionNumber: q.Number,
		Transcript:     transcript,
		Duration:       duration.Seconds(),
		FillerCount:    counts.Fillers,
		Confidence:     scores.ConfidenceScore,
		Clarity:        scores.ClarityScore,
		Technical:      scores.TechnicalAccuracy,
		CreatedAt:      now,
	}
	if err := o.store.SaveAnswer(ctx, answer); err != nil {
		log.Error().
			Err(err).
			Str("session_id", st.ID).
			Int("question", q.Number).
			Msg("Failed to persist answer")
	}
	st.MarkAnswerSaved()
	o.metrics.AnswersFinalized.Add(ctx, 1)

	log.Info().
		Str("session_id", st.ID).
		Int("question", q.Number).
		Int("words", len(heuristics.Tokens(transcript))).
		Int("fillers", counts.Fillers).
		Int("repetitions", counts.Repetitions).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("answer.complete")

	o.emit(st, event.AnswerFeedback{
		Scores:         scores,
		Transcript:     transcript,
		QuestionNumber: q.Number,
	})
	st.Tracker.ResetAnswer()
}

// transcribeDirect runs the whole answer buffer through the engine when no
// segment produced text.
func (o *Orchestrator) transcribeDirect(ctx context.Context, st *session.State, now time.Time) string {
	pcm := st.PCM()
	if len(pcm) == 0 || o.transcriber == nil {
		return ""
	}

	res, err := o.transcriber.Transcribe(ctx, pcm)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", st.ID).
			Msg("Direct transcription of answer failed")
		return ""
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return ""
	}
	st.ReplaceTranscript(text)
	o.engine.SegmentFillers(st.Tracker, text, now)
	o.engine.CountRepetitions(st.Tracker, text)

	log.Info().
		Str("session_id", st.ID).
		Dur("duration", audio.BytesToDuration(len(pcm))).
		Msg("Answer transcribed from full buffer")
	return text
}

func (o *Orchestrator) answerDuration(st *session.State, now time.Time) time.Duration {
	start, end := st.RecordingWindow()
	if start.IsZero() {
		return audio.BytesToDuration(len(st.PCM()))
	}
	if end.IsZero() {
		end = now
	}
	return end.Sub(start)
}

// advance moves past answered question n.
func (o *Orchestrator) advance(ctx context.Context, st *session.State, n int) {
	if n < st.MaxQuestions {
		o.issueQuestion(ctx, st, n+1)
		return
	}
	o.complete(ctx, st)
}

func (o *Orchestrator) issueQuestion(ctx context.Context, st *session.State, n int) {
	text, source := o.resolveQuestion(ctx, st, n)

	q := session.Question{ID: uuid.NewString(), Number: n, Text: text}
	if err := o.store.SaveQuestion(ctx, &store.Question{
		ID:               q.ID,
		SessionID:        st.ID,
		Number:           n,
		Text:             text,
		Category:         st.Subject,
		Difficulty:       st.Difficulty,
		ExpectedDuration: expectedAnswerSeconds,
		CreatedAt:        o.now(),
	}); err != nil {
		log.Error().
			Err(err).
			Str("session_id", st.ID).
			Int("question", n).
			Msg("Failed to persist question")
	}

	st.IssueQuestion(q)
	log.Info().
		Str("session_id", st.ID).
		Int("question", n).
		Str("source", source).
		Msg("question.emit")
	o.emitQuestion(st, q)
}

func (o *Orchestrator) resolveQuestion(ctx context.Context, st *session.State, n int) (text, source string) {
	if text, ok := st.TakePrefetch(n); ok && len(strings.TrimSpace(text)) > 10 {
		return strings.TrimSpace(text), "prefetch"
	}

	qctx, cancel := o.questionContext()
	defer cancel()

	text, fallback := question.Resolve(qctx, o.questions, o.questionRequest(ctx, st, n))
	if fallback {
		o.metrics.QuestionFallbacks.Add(ctx, 1)
		return text, "fallback"
	}
	return text, "provider"
}

func (o *Orchestrator) questionContext() (context.Context, context.CancelFunc) {
	if o.cfg.QuestionTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), o.cfg.QuestionTimeout)
}

func (o *Orchestrator) questionRequest(ctx context.Context, st *session.State, n int) question.Request {
	req := question.Request{
		Subject:    st.Subject,
		Difficulty: st.Difficulty,
		Persona:    st.Persona,
		Number:     n,
		Total:      st.MaxQuestions,
	}
	answers, err := o.store.ListAnswers(ctx, st.ID)
	if err != nil {
		log.Debug().Err(err).Str("session_id", st.ID).Msg("No previous answers for question context")
		return req
	}
	for _, a := range answers {
		if a.Transcript != "" {
			req.PreviousAnswers = append(req.PreviousAnswers, a.Transcript)
		}
	}
	return req
}

// complete marks the session finished and emits the scorecard once.
func (o *Orchestrator) complete(ctx context.Context, st *session.State) {
	if !st.MarkCompleted() {
		return
	}
	now := o.now()
	if err := o.store.CompleteSession(ctx, st.ID, now); err != nil {
		log.Error().
			Err(err).
			Str("session_id", st.ID).
			Msg("Failed to persist session completion")
	}
	o.metrics.ActiveSessions.Add(ctx, -1)

	card, err := summary.Build(ctx, o.store, o.engine.Vocabulary(), st.ID)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", st.ID).
			Msg("Failed to build scorecard")
		card = &summary.Scorecard{
			SessionID:      st.ID,
			Message:        "Interview completed, but the scorecard could not be built.",
			TotalQuestions: st.MaxQuestions,
		}
	}

	log.Info().
		Str("session_id", st.ID).
		Int("answered", card.AnsweredQuestions).
		Float64("overall_score", card.OverallScore).
		Dur("elapsed", now.Sub(st.StartedAt)).
		Msg("Interview session completed")
	o.emit(st, event.SessionCompleted{Scorecard: card})
}

func (o *Orchestrator) emitQuestion(st *session.State, q session.Question) {
	o.emit(st, event.QuestionIssued{
		QuestionID:     q.ID,
		QuestionText:   q.Text,
		QuestionNumber: q.Number,
		TotalQuestions: st.MaxQuestions,
		Category:       question.Stage(q.Number),
	})
}

func (o *Orchestrator) warn(ctx context.Context, st *session.State, w *heuristics.Warning) {
	o.metrics.RecordWarning(ctx, string(w.Kind))
	log.Info().
		Str("session_id", st.ID).
		Str("kind", string(w.Kind)).
		Strs("terms", w.Terms).
		Str("source", w.Source).
		Msg("warning.emit")

	o.emit(st, event.LiveWarning{
		Type:     string(w.Kind),
		Message:  w.Message,
		Severity: w.Severity,
		Words:    w.Terms,
		NewWords: w.NewTerms,
		Source:   w.Source,
		Context:  w.Context,
	})
}

func (o *Orchestrator) emit(st *session.State, e event.Event) {
	if err := st.Emit(e); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", st.ID).
			Str("event", e.Kind()).
			Msg("Failed to send event")
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
