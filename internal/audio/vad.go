package audio

import (
	"encoding/binary"
	"math"

	"github.com/maxhawkins/go-webrtcvad"
	"github.com/rs/zerolog/log"
)

// ClassifierConfig tunes the speech/non-speech decision for one frame.
type ClassifierConfig struct {
	Aggressiveness  int     // webrtc mode 0-3
	MinSpeechEnergy float64 // RMS floor applied on top of the webrtc decision
	EnergyThreshold float64 // RMS threshold used when webrtc is unavailable
}

// Classifier combines the WebRTC detector with an RMS energy gate. A frame is
// speech only when the detector accepts it and its RMS clears MinSpeechEnergy.
// Without a detector it falls back to EnergyThreshold alone.
//
// A Classifier carries detector state and must not be shared across sessions.
type Classifier struct {
	vad             *webrtcvad.VAD
	minSpeechEnergy float64
	energyThreshold float64
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	c := &Classifier{
		minSpeechEnergy: cfg.MinSpeechEnergy,
		energyThreshold: cfg.EnergyThreshold,
	}

	vad, err := webrtcvad.New()
	if err != nil {
		log.Warn().Err(err).Msg("WebRTC VAD unavailable, using energy fallback")
		return c
	}

	if err := vad.SetMode(cfg.Aggressiveness); err != nil {
		log.Warn().Err(err).Int("mode", cfg.Aggressiveness).Msg("Failed to set VAD mode, using energy fallback")
		return c
	}

	c.vad = vad
	return c
}

// NewEnergyClassifier returns a classifier that only looks at RMS energy.
func NewEnergyClassifier(threshold float64) *Classifier {
	return &Classifier{energyThreshold: threshold}
}

func (c *Classifier) IsSpeech(frame []byte) bool {
	if len(frame) < BytesPerSample {
		return false
	}

	if c.vad == nil || !c.vad.ValidRateAndFrameLength(SampleRate, len(frame)/BytesPerSample) {
		return RMS(frame) >= c.energyThreshold
	}

	active, err := c.vad.Process(SampleRate, frame)
	if err != nil {
		return RMS(frame) >= c.energyThreshold
	}
	if !active {
		return false
	}
	return RMS(frame) >= c.minSpeechEnergy
}

// RMS returns the root-mean-square amplitude of little-endian s16 samples.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(n))
}
