package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/interview-coach/internal/audio"
	"github.com/user/interview-coach/internal/stt"
)

const defaultBaseURL = "https://api.deepgram.com/v1/listen"

type DeepgramTranscriber struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type Option func(*DeepgramTranscriber)

// WithBaseURL points the transcriber at a different listen endpoint.
func WithBaseURL(u string) Option {
	return func(d *DeepgramTranscriber) { d.baseURL = u }
}

func WithHTTPClient(c *http.Client) Option {
	return func(d *DeepgramTranscriber) { d.client = c }
}

type DeepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func NewDeepgramTranscriber(apiKey, model string, opts ...Option) *DeepgramTranscriber {
	d := &DeepgramTranscriber{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *DeepgramTranscriber) Transcribe(ctx context.Context, pcm []byte) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, nil
	}

	wavData := audio.EncodeWAV(pcm)

	params := url.Values{}
	if d.model != "" {
		params.Set("model", d.model)
	}
	// Fillers are what the heuristics look for; Deepgram strips them by default.
	params.Set("filler_words", "true")
	params.Set("punctuate", "true")
	params.Set("smart_format", "false")
	params.Set("language", "en")

	fullURL := d.baseURL + "?" + params.Encode()

	log.Debug().
		Str("url", fullURL).
		Str("model", d.model).
		Int("audio_size_bytes", len(wavData)).
		Msg("Making Deepgram API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(wavData))
	if err != nil {
		return stt.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := d.client.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("response_body", string(body)).
			Msg("Deepgram API error response")
		return stt.Result{}, fmt.Errorf("deepgram API error %d: %s", resp.StatusCode, string(body))
	}

	var result DeepgramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return stt.Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		log.Debug().Msg("No alternatives in Deepgram response")
		return stt.Result{}, nil
	}

	best := result.Results.Channels[0].Alternatives[0]
	res := stt.Result{
		Text:       strings.TrimSpace(best.Transcript),
		Confidence: best.Confidence,
	}
	for _, w := range best.Words {
		res.Words = append(res.Words, stt.Word{
			Text:       w.Word,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
		})
	}

	log.Debug().
		Str("transcript", res.Text).
		Float64("confidence", res.Confidence).
		Msg("Deepgram transcription completed")

	return res, nil
}

func (d *DeepgramTranscriber) Close() error {
	return nil
}
