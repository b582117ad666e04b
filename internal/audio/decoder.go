package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"layeh.com/gopus"
)

const (
	opusSampleRate   = 48000
	opusMaxFrameSize = 5760 // 120ms at 48kHz, the largest opus frame
)

var (
	magicRIFF        = []byte("RIFF")
	magicOgg         = []byte("OggS")
	magicEBML        = []byte{0x1A, 0x45, 0xDF, 0xA3}
	magicWebMCluster = []byte{0x1F, 0x43, 0xB6, 0x75}
	magicID3         = []byte("ID3")
	magicFLAC        = []byte("fLaC")
)

// ContainerDecoder turns browser audio blobs into 16 kHz mono s16le PCM. Raw
// PCM passes through, WAV and Ogg/Opus are decoded in-process, and anything
// else is handed to ffmpeg. Failures yield an empty slice, never an error.
type ContainerDecoder struct {
	ffmpegPath string
	timeout    time.Duration
	tempDir    string
}

type DecoderOption func(*ContainerDecoder)

// WithFFmpeg sets the transcoder binary and the per-call timeout.
func WithFFmpeg(path string, timeout time.Duration) DecoderOption {
	return func(d *ContainerDecoder) {
		d.ffmpegPath = path
		d.timeout = timeout
	}
}

// WithTempDir sets where ffmpeg scratch files are written.
func WithTempDir(dir string) DecoderOption {
	return func(d *ContainerDecoder) { d.tempDir = dir }
}

func NewDecoder(opts ...DecoderOption) *ContainerDecoder {
	d := &ContainerDecoder{
		ffmpegPath: "ffmpeg",
		timeout:    10 * time.Second,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *ContainerDecoder) Decode(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}

	if looksLikePCM(data) {
		return data
	}

	if bytes.HasPrefix(data, magicRIFF) {
		pcm, err := decodeWAV(data)
		if err == nil {
			return pcm
		}
		log.Debug().Err(err).Msg("WAV decode failed, trying ffmpeg")
	}

	if bytes.HasPrefix(data, magicOgg) {
		pcm, err := decodeOggOpus(data)
		if err == nil && len(pcm) > 0 {
			return pcm
		}
		log.Debug().Err(err).Msg("Ogg/Opus decode failed, trying ffmpeg")
	}

	pcm, err := d.transcode(data)
	if err != nil {
		log.Warn().
			Err(err).
			Int("bytes", len(data)).
			Msg("Failed to decode audio payload")
		return nil
	}
	return pcm
}

// looksLikePCM reports whether data is plausibly raw s16le: even length and
// no known container signature.
func looksLikePCM(data []byte) bool {
	if len(data)%2 != 0 {
		return false
	}
	for _, magic := range [][]byte{magicRIFF, magicOgg, magicEBML, magicWebMCluster, magicID3, magicFLAC} {
		if bytes.HasPrefix(data, magic) {
			return false
		}
	}
	return true
}

func decodeOggOpus(data []byte) ([]byte, error) {
	packets, err := oggPackets(data)
	if err != nil {
		return nil, err
	}

	channels, err := opusChannels(packets[0])
	if err != nil {
		return nil, err
	}

	decoder, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	var samples []int16
	for _, packet := range packets[1:] {
		if bytes.HasPrefix(packet, []byte("OpusTags")) || len(packet) == 0 {
			continue
		}
		pcm, err := decoder.Decode(packet, opusMaxFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("failed to decode opus: %w", err)
		}
		samples = append(samples, pcm...)
	}

	mono := DownmixInt16(samples, channels)
	return Int16ToBytes(ResampleInt16(mono, opusSampleRate, SampleRate)), nil
}

// transcode shells out to ffmpeg. Both scratch files are removed on every path.
func (d *ContainerDecoder) transcode(data []byte) ([]byte, error) {
	in, err := os.CreateTemp(d.tempDir, "iq-audio-*.webm")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp input: %w", err)
	}
	inPath := in.Name()
	outPath := inPath + ".pcm"
	defer func() {
		os.Remove(inPath)
		os.Remove(outPath)
	}()

	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("failed to write temp input: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp input: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-y", "-loglevel", "error",
		"-i", inPath,
		"-ar", strconv.Itoa(SampleRate),
		"-ac", "1",
		"-f", "s16le",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, bytes.TrimSpace(output))
	}

	pcm, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ffmpeg output: %w", err)
	}
	return pcm, nil
}
