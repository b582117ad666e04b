package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/user/interview-coach/internal/question"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultAttempts = 3
	defaultBackoff  = time.Second
	answerExcerpt   = 150
	answerHistory   = 2
)

var errEmptyResponse = errors.New("no question generated")

type GeminiProvider struct {
	client   *genai.Client
	model    string
	attempts int
	backoff  time.Duration

	// generate is swapped out in tests.
	generate func(ctx context.Context, prompt string) (string, error)
}

func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	g := &GeminiProvider{
		client:   client,
		model:    model,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	g.generate = g.generateContent
	return g, nil
}

// Generate asks Gemini for the next question. Rate limits and transient
// failures are retried with exponential backoff.
func (g *GeminiProvider) Generate(ctx context.Context, req question.Request) (string, error) {
	prompt := buildPrompt(req)

	var lastErr error
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			wait := g.backoff << (attempt - 1)
			log.Debug().
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Int("question", req.Number).
				Msg("Retrying question generation")

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		text, err := g.generate(ctx, prompt)
		if err == nil {
			text = cleanQuestion(text)
			log.Info().
				Int("question", req.Number).
				Int("question_length", len(text)).
				Msg("Generated interview question")
			return text, nil
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}

	return "", fmt.Errorf("failed to generate question: %w", lastErr)
}

func (g *GeminiProvider) generateContent(ctx context.Context, prompt string) (string, error) {
	genModel := g.client.GenerativeModel(g.model)
	resp, err := genModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return out.String(), nil
}

func retryable(err error) bool {
	if errors.Is(err, errEmptyResponse) {
		return true
	}
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// cleanQuestion strips quoting and "Question:" style labels the model
// sometimes adds.
func cleanQuestion(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ":"); i >= 0 && i < 20 && strings.HasPrefix(strings.ToLower(text), "question") {
		text = strings.TrimSpace(text[i+1:])
	}
	return strings.Trim(text, "\"'` \n")
}

func stageFocus(n int) string {
	switch question.Stage(n) {
	case "introduction":
		return "introduction and experience"
	case "technical":
		return "core technical concepts"
	case "problem-solving":
		return "practical application and problem-solving"
	default:
		return "advanced topics and architecture"
	}
}

func buildPrompt(req question.Request) string {
	var history strings.Builder
	prev := req.PreviousAnswers
	if len(prev) > answerHistory {
		prev = prev[len(prev)-answerHistory:]
	}
	if len(prev) > 0 {
		history.WriteString("\nPrevious answers from the candidate:\n")
		for i, answer := range prev {
			if len(answer) > answerExcerpt {
				answer = answer[:answerExcerpt] + "..."
			}
			history.WriteString(fmt.Sprintf("%d. %s\n", i+1, answer))
		}
	}

	persona := req.Persona
	if persona == "" {
		persona = "friendly"
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "intermediate"
	}

	return fmt.Sprintf(`You are a %s technical interviewer conducting a %s level interview on %s.
This is question %d of %d. Focus on %s.
%s
Ask one clear, specific question that builds on the conversation so far and avoids repeating earlier topics.
Generate ONLY the question text, with no numbering, labels or commentary.`,
		persona, difficulty, req.Subject, req.Number, req.Total, stageFocus(req.Number), history.String())
}

func (g *GeminiProvider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
