// Package event defines the typed messages sent to a connected client. Each
// event travels inside an Envelope whose Type is the event's Kind.
package event

import "encoding/json"

// Event is implemented by every outbound message.
type Event interface {
	Kind() string
}

// Sink delivers events to one live connection.
type Sink interface {
	Send(e Event) error
}

// Envelope is the wire frame for both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps e in an Envelope.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: e.Kind(), Payload: payload})
}

type SessionStarted struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

func (SessionStarted) Kind() string { return "session-started" }

type SessionResumed struct {
	SessionID      string `json:"sessionId"`
	QuestionNumber int    `json:"questionNumber"`
	TotalQuestions int    `json:"totalQuestions"`
}

func (SessionResumed) Kind() string { return "session-resumed" }

type QuestionIssued struct {
	QuestionID     string `json:"questionId"`
	QuestionText   string `json:"questionText"`
	QuestionNumber int    `json:"questionNumber"`
	TotalQuestions int    `json:"totalQuestions"`
	Category       string `json:"category"`
}

func (QuestionIssued) Kind() string { return "question-issued" }

type RecordingStarted struct {
	Status string `json:"status"`
}

func (RecordingStarted) Kind() string { return "recording-started" }

type RecordingStopped struct {
	Status string `json:"status"`
}

func (RecordingStopped) Kind() string { return "recording-stopped" }

// PartialTranscript carries either a finalized segment (IsFinal) or a
// best-effort preview of audio still being buffered.
type PartialTranscript struct {
	SegmentID            string   `json:"segmentId"`
	Text                 string   `json:"text"`
	IsFinal              bool     `json:"isFinal"`
	Preview              bool     `json:"preview,omitempty"`
	CumulativeTranscript string   `json:"cumulativeTranscript"`
	FillersDetected      []string `json:"fillersDetected"`
	FillerCountSegment   int      `json:"fillerCountSegment,omitempty"`
	FillerCountSession   int      `json:"fillerCountSession,omitempty"`
}

func (PartialTranscript) Kind() string { return "partial-transcript" }

type LiveWarning struct {
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Severity string   `json:"severity,omitempty"`
	Words    []string `json:"words,omitempty"`
	NewWords []string `json:"newWords,omitempty"`
	Source   string   `json:"source,omitempty"`
	Context  string   `json:"context,omitempty"`
}

func (LiveWarning) Kind() string { return "live-warning" }

type FeedbackScores struct {
	FillerWordsCount  int     `json:"filler_words_count"`
	AnswerDuration    float64 `json:"answer_duration"`
	WordsPerMinute    float64 `json:"words_per_minute"`
	FillerDensity     float64 `json:"filler_density"`
	ConfidenceScore   int     `json:"confidence_score"`
	ClarityScore      int     `json:"clarity_score"`
	TechnicalAccuracy int     `json:"technical_accuracy"`
}

type AnswerFeedback struct {
	Scores         FeedbackScores `json:"scores"`
	Transcript     string         `json:"transcript"`
	QuestionNumber int            `json:"questionNumber"`
}

func (AnswerFeedback) Kind() string { return "answer-feedback" }

// SessionCompleted carries the scorecard. Payload is any JSON-encodable
// value so this package stays independent of the aggregator.
type SessionCompleted struct {
	Scorecard any
}

func (SessionCompleted) Kind() string { return "session-completed" }

func (e SessionCompleted) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Scorecard)
}

type AudioTranscription struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (AudioTranscription) Kind() string { return "audio-transcription" }

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) Kind() string { return "error" }

// Pong answers a client ping.
type Pong struct{}

func (Pong) Kind() string { return "pong" }
