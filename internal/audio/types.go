package audio

import (
	"time"

	"github.com/google/uuid"
)

const (
	SampleRate     = 16000
	BytesPerSample = 2
	FrameMS        = 20
	FrameBytes     = SampleRate * FrameMS / 1000 * BytesPerSample // 640 bytes per 20ms frame
)

// Segment is a sealed span of buffered audio handed to a transcription worker.
// It is never mutated after the segmenter seals it.
type Segment struct {
	ID             uuid.UUID
	SessionID      string
	ConnectionID   string
	QuestionNumber int
	PCM            []byte
	CreatedAt      time.Time
	Forced         bool // sealed by an explicit flush rather than by VAD
}

// Duration returns the length of the segment's audio.
func (s *Segment) Duration() time.Duration {
	return BytesToDuration(len(s.PCM))
}

// Decoder converts a compressed client payload into 16 kHz mono s16le PCM.
type Decoder interface {
	Decode(data []byte) []byte
}

// VAD classifies one fixed-size PCM frame.
type VAD interface {
	IsSpeech(frame []byte) bool
}

// BytesToDuration converts a 16 kHz mono s16le byte count into a duration.
func BytesToDuration(n int) time.Duration {
	return time.Duration(n/BytesPerSample) * time.Second / SampleRate
}

// DurationToBytes converts a duration into a frame-aligned byte count.
func DurationToBytes(d time.Duration) int {
	samples := int(d * SampleRate / time.Second)
	return samples * BytesPerSample
}
