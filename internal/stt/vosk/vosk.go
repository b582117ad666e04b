package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/rs/zerolog/log"
	"github.com/user/interview-coach/internal/stt"
)

// VoskTranscriber shares one loaded model across workers. Recognizers carry
// decoding state, so every call gets its own.
type VoskTranscriber struct {
	model      *vosk.VoskModel
	sampleRate int
}

type VoskResult struct {
	Text   string     `json:"text"`
	Result []VoskWord `json:"result"`
}

type VoskWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf"`
}

func NewVoskTranscriber(modelPath string, sampleRate int) (*VoskTranscriber, error) {
	log.Info().Str("model_path", modelPath).Msg("Loading Vosk model")

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load Vosk model from %s: %w", modelPath, err)
	}

	log.Info().Msg("Vosk model loaded successfully")

	return &VoskTranscriber{
		model:      model,
		sampleRate: sampleRate,
	}, nil
}

func (v *VoskTranscriber) Transcribe(ctx context.Context, pcm []byte) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}

	recognizer, err := vosk.NewRecognizer(v.model, float64(v.sampleRate))
	if err != nil {
		return stt.Result{}, fmt.Errorf("failed to create Vosk recognizer: %w", err)
	}
	defer recognizer.Free()
	recognizer.SetWords(1)

	if recognizer.AcceptWaveform(pcm) == -1 {
		return stt.Result{}, fmt.Errorf("failed to process audio segment")
	}

	return parseResult(recognizer.FinalResult())
}

func parseResult(raw string) (stt.Result, error) {
	if raw == "" {
		return stt.Result{}, nil
	}

	var vr VoskResult
	if err := json.Unmarshal([]byte(raw), &vr); err != nil {
		return stt.Result{}, fmt.Errorf("failed to parse Vosk result: %w", err)
	}

	res := stt.Result{Text: strings.TrimSpace(vr.Text)}
	var confSum float64
	for _, w := range vr.Result {
		res.Words = append(res.Words, stt.Word{
			Text:       w.Word,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Conf,
		})
		confSum += w.Conf
	}
	if len(res.Words) > 0 {
		res.Confidence = confSum / float64(len(res.Words))
	}

	log.Debug().
		Str("text", res.Text).
		Int("words", len(res.Words)).
		Float64("confidence", res.Confidence).
		Msg("Vosk transcription completed")

	return res, nil
}

func (v *VoskTranscriber) Close() error {
	if v.model != nil {
		v.model.Free()
	}
	return nil
}
