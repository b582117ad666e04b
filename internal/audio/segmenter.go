package audio

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type vadState int

const (
	stateSilence vadState = iota
	stateVoice
	stateTail
)

func (s vadState) String() string {
	switch s {
	case stateVoice:
		return "voice"
	case stateTail:
		return "tail"
	default:
		return "silence"
	}
}

type SegmenterConfig struct {
	MaxSegment  time.Duration // forced seal once the buffer reaches this length
	MinSegment  time.Duration // VAD-sealed buffers with less speech than this are discarded
	SilenceTail time.Duration // trailing non-speech that ends an utterance

	PreviewMin      time.Duration // buffered audio required before a preview
	PreviewInterval time.Duration // minimum wall-clock gap between previews
	PreviewWindow   time.Duration // tail of the buffer handed out as a preview
}

// SegmenterStats accounts for every classified frame that entered the buffer.
// After a final Flush, Buffered == Sealed + Discarded.
type SegmenterStats struct {
	BufferedBytes  int
	SealedBytes    int
	DiscardedBytes int
}

// FeedResult is what one Feed call produced.
type FeedResult struct {
	Segments []*Segment
	Preview  []byte // nil unless a preview is due
	Voiced   bool   // at least one speech frame was seen
}

// Segmenter turns a stream of 20ms frames into utterance-sized segments using
// a silence -> voice -> tail -> silence cycle. It is owned by a single
// connection goroutine and is not safe for concurrent use.
type Segmenter struct {
	cfg SegmenterConfig
	vad VAD

	state        vadState
	buf          []byte
	carry        []byte
	silentFrames int
	voicedFrames int
	lastPreview  time.Time
	frameCount   int

	stats SegmenterStats
}

func NewSegmenter(cfg SegmenterConfig, vad VAD) *Segmenter {
	maxBytes := DurationToBytes(cfg.MaxSegment)
	return &Segmenter{
		cfg: cfg,
		vad: vad,
		buf: make([]byte, 0, maxBytes+FrameBytes),
	}
}

// Feed classifies every complete frame in pcm. Bytes that do not fill a whole
// frame are carried over to the next call.
func (s *Segmenter) Feed(pcm []byte, now time.Time) FeedResult {
	var res FeedResult

	data := pcm
	if len(s.carry) > 0 {
		data = append(s.carry, pcm...)
		s.carry = nil
	}

	i := 0
	for ; i+FrameBytes <= len(data); i += FrameBytes {
		frame := data[i : i+FrameBytes]
		speech := s.vad.IsSpeech(frame)
		if speech {
			res.Voiced = true
		}

		if s.frameCount%50 == 0 {
			log.Debug().
				Int("idx", s.frameCount).
				Bool("speech", speech).
				Str("state", s.state.String()).
				Dur("buffered", s.Buffered()).
				Msg("vad.frame")
		}
		s.frameCount++

		if seg := s.step(frame, speech, now); seg != nil {
			res.Segments = append(res.Segments, seg)
		}
	}

	if rest := data[i:]; len(rest) > 0 {
		s.carry = append([]byte(nil), rest...)
	}

	res.Preview = s.preview(now)
	return res
}

func (s *Segmenter) step(frame []byte, speech bool, now time.Time) *Segment {
	switch {
	case speech:
		s.state = stateVoice
		s.silentFrames = 0
		s.voicedFrames++
	case s.state == stateVoice:
		s.state = stateTail
		s.silentFrames = 1
	case s.state == stateTail:
		s.silentFrames++
	default:
		return nil
	}

	s.buf = append(s.buf, frame...)
	s.stats.BufferedBytes += len(frame)

	tail := time.Duration(s.silentFrames*FrameMS) * time.Millisecond
	if s.state == stateTail && tail >= s.cfg.SilenceTail {
		s.state = stateSilence
		return s.seal(now, false, "silence_tail")
	}

	if s.Buffered() >= s.cfg.MaxSegment {
		s.state = stateSilence
		return s.seal(now, false, "max_length")
	}

	return nil
}

// Flush seals whatever is buffered, even when it is shorter than MinSegment.
// It returns nil when the buffer is empty.
func (s *Segmenter) Flush(now time.Time) *Segment {
	s.state = stateSilence
	s.silentFrames = 0
	s.carry = nil
	if len(s.buf) == 0 {
		return nil
	}
	return s.seal(now, true, "flush")
}

func (s *Segmenter) seal(now time.Time, forced bool, reason string) *Segment {
	pcm := make([]byte, len(s.buf))
	copy(pcm, s.buf)
	voiced := time.Duration(s.voicedFrames*FrameMS) * time.Millisecond
	s.buf = s.buf[:0]
	s.silentFrames = 0
	s.voicedFrames = 0

	dur := BytesToDuration(len(pcm))
	if !forced && voiced < s.cfg.MinSegment {
		s.stats.DiscardedBytes += len(pcm)
		log.Debug().
			Str("reason", "too_short").
			Dur("duration", dur).
			Dur("voiced", voiced).
			Msg("segment.discard")
		return nil
	}

	s.stats.SealedBytes += len(pcm)
	seg := &Segment{
		ID:        uuid.New(),
		PCM:       pcm,
		CreatedAt: now,
		Forced:    forced,
	}

	log.Debug().
		Str("segment_id", seg.ID.String()).
		Str("reason", reason).
		Bool("forced", forced).
		Dur("duration", dur).
		Msg("segment.seal")

	return seg
}

func (s *Segmenter) preview(now time.Time) []byte {
	if s.state == stateSilence || s.cfg.PreviewInterval <= 0 {
		return nil
	}
	if s.Buffered() < s.cfg.PreviewMin || now.Sub(s.lastPreview) < s.cfg.PreviewInterval {
		return nil
	}

	window := DurationToBytes(s.cfg.PreviewWindow)
	start := 0
	if window > 0 && len(s.buf) > window {
		start = len(s.buf) - window
	}

	s.lastPreview = now
	out := make([]byte, len(s.buf)-start)
	copy(out, s.buf[start:])
	return out
}

// Reset drops all buffered audio without sealing it.
func (s *Segmenter) Reset() {
	s.stats.DiscardedBytes += len(s.buf)
	s.buf = s.buf[:0]
	s.carry = nil
	s.state = stateSilence
	s.silentFrames = 0
	s.voicedFrames = 0
}

func (s *Segmenter) Buffered() time.Duration {
	return BytesToDuration(len(s.buf))
}

func (s *Segmenter) State() string {
	return s.state.String()
}

func (s *Segmenter) Stats() SegmenterStats {
	return s.stats
}
