package session

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/interview-coach/internal/audio"
	"github.com/user/interview-coach/internal/event"
	"github.com/user/interview-coach/internal/heuristics"
)

// Phase is the orchestrator position within one session.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseQuestionIssued
	PhaseRecording
	PhaseFinalizing
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseQuestionIssued:
		return "question_issued"
	case PhaseRecording:
		return "answer_recording"
	case PhaseFinalizing:
		return "answer_finalizing"
	case PhaseCompleted:
		return "completed"
	default:
		return "created"
	}
}

// Question is the question currently put to the candidate.
type Question struct {
	ID     string
	Number int
	Text   string
}

// State is the in-memory record of one interview. Fields touched by both the
// connection goroutine and transcription workers are behind mu; the
// Segmenter is only used from the connection goroutine.
type State struct {
	ID           string
	Subject      string
	Difficulty   string
	Persona      string
	MaxQuestions int
	StartedAt    time.Time

	Tracker   *heuristics.Tracker
	Segmenter *audio.Segmenter

	// previewBusy guards against stacking preview transcriptions.
	previewBusy atomic.Bool

	mu             sync.Mutex
	phase          Phase
	question       Question
	recording      bool
	recordingStart time.Time
	recordingStop  time.Time
	transcript     []string
	rawPCM         []byte
	prefetch       map[int]*Prefetch
	answerSaved    bool
	sink           event.Sink
	connID         string
}

func NewState(id, subject, difficulty, persona string, maxQuestions int, now time.Time) *State {
	return &State{
		ID:           id,
		Subject:      subject,
		Difficulty:   difficulty,
		Persona:      persona,
		MaxQuestions: maxQuestions,
		StartedAt:    now,
		Tracker:      heuristics.NewTracker(now),
		prefetch:     make(map[int]*Prefetch),
	}
}

func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Finished reports whether the session reached completion.
func (s *State) Finished() bool {
	return s.Phase() == PhaseCompleted
}

// MarkCompleted flips the session to completed and reports whether this call
// did it. Repeated calls return false.
func (s *State) MarkCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseCompleted {
		return false
	}
	s.phase = PhaseCompleted
	s.recording = false
	return true
}

func (s *State) Question() Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question
}

// IssueQuestion moves to question q and clears the per-answer buffers.
func (s *State) IssueQuestion(q Question) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.question = q
	s.phase = PhaseQuestionIssued
	s.transcript = nil
	s.rawPCM = nil
	s.answerSaved = false
	s.recordingStart = time.Time{}
	s.recordingStop = time.Time{}
	delete(s.prefetch, q.Number)
}

func (s *State) StartRecording(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recording = true
	s.phase = PhaseRecording
	if s.recordingStart.IsZero() {
		s.recordingStart = now
	}
	s.recordingStop = time.Time{}
}

// StopRecording ends intake and reports whether recording was on.
func (s *State) StopRecording(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.recording
	s.recording = false
	if was {
		s.recordingStop = now
	}
	return was
}

func (s *State) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// RecordingWindow returns when the current answer's recording began and
// ended. End is zero while recording is still on.
func (s *State) RecordingWindow() (start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordingStart, s.recordingStop
}

// AppendTranscript adds segment text if it belongs to the current question.
// It returns the cumulative transcript and whether the text was accepted.
func (s *State) AppendTranscript(questionNumber int, text string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if questionNumber != s.question.Number || s.answerSaved || s.phase == PhaseCompleted {
		return strings.Join(s.transcript, " "), false
	}
	if text = strings.TrimSpace(text); text != "" {
		s.transcript = append(s.transcript, text)
	}
	return strings.Join(s.transcript, " "), true
}

// ReplaceTranscript overwrites the cumulative transcript of the current answer.
func (s *State) ReplaceTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = nil
	if text = strings.TrimSpace(text); text != "" {
		s.transcript = []string{text}
	}
}

func (s *State) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.transcript, " ")
}

func (s *State) AppendPCM(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawPCM = append(s.rawPCM, pcm...)
}

func (s *State) SetPCM(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawPCM = append([]byte(nil), pcm...)
}

// PCM returns a copy of the raw audio captured for the current answer.
func (s *State) PCM() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.rawPCM...)
}

// MarkAnswerSaved records that the current answer was finalized. Late
// segment results for it are rejected from now on.
func (s *State) MarkAnswerSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerSaved = true
}

func (s *State) AnswerSaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answerSaved
}

// Bind attaches the live connection that receives this session's events.
func (s *State) Bind(connID string, sink event.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connID = connID
	s.sink = sink
}

// Unbind drops the connection if it is still connID.
func (s *State) Unbind(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connID == connID {
		s.connID = ""
		s.sink = nil
	}
}

func (s *State) ConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Emit sends e to the bound connection, if any.
func (s *State) Emit(e event.Event) error {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return nil
	}
	return sink.Send(e)
}

// TryBeginPreview reports whether a preview may start; EndPreview releases it.
func (s *State) TryBeginPreview() bool {
	return s.previewBusy.CompareAndSwap(false, true)
}

func (s *State) EndPreview() {
	s.previewBusy.Store(false)
}
