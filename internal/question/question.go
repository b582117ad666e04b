// Package question defines the question provider the interview calls at
// every answer boundary, and the deterministic fallback used when it fails.
package question

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

type Request struct {
	Subject         string // human-readable subject name
	Difficulty      string
	Persona         string
	Number          int
	Total           int
	PreviousAnswers []string
}

// Provider generates the text of one question. Retries, if any, happen
// inside the provider.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// minQuestionLen rejects replies too short to be a real question.
const minQuestionLen = 10

// Resolve asks p for a question and falls back to a deterministic one when p
// is nil, fails, or returns something unusable. It never fails.
func Resolve(ctx context.Context, p Provider, req Request) (text string, fallback bool) {
	if p != nil {
		text, err := p.Generate(ctx, req)
		text = strings.TrimSpace(text)
		switch {
		case err != nil:
			log.Warn().
				Err(err).
				Int("question", req.Number).
				Msg("Question provider failed, using fallback")
		case len(text) <= minQuestionLen:
			log.Warn().
				Int("question", req.Number).
				Str("text", text).
				Msg("Question provider returned an unusable question, using fallback")
		default:
			return text, false
		}
	}
	return Fallback(req.Subject, req.Number), true
}

// Fallback returns the fixed question for number n.
func Fallback(subject string, n int) string {
	if n <= 1 {
		return fmt.Sprintf("Tell me about your experience with %s.", subject)
	}
	return fmt.Sprintf("Describe a challenge related to %s (Q%d).", subject, n)
}

// Stage names the part of the interview question n belongs to.
func Stage(n int) string {
	switch {
	case n <= 2:
		return "introduction"
	case n <= 5:
		return "technical"
	case n <= 7:
		return "problem-solving"
	default:
		return "advanced"
	}
}

var subjectNames = map[string]string{
	"frontend":         "frontend development",
	"react":            "React.js development",
	"javascript":       "JavaScript development",
	"html-css":         "HTML/CSS development",
	"backend":          "backend development",
	"nodejs":           "Node.js development",
	"python":           "Python development",
	"java":             "Java development",
	"spring":           "Spring Framework",
	"django":           "Django development",
	"flask":            "Flask development",
	"database":         "database management",
	"sql":              "SQL and database design",
	"mongodb":          "MongoDB development",
	"dsa":              "data structures and algorithms",
	"system-design":    "system design and architecture",
	"cloud":            "cloud computing",
	"aws":              "Amazon Web Services (AWS)",
	"azure":            "Microsoft Azure",
	"gcp":              "Google Cloud Platform",
	"docker":           "Docker containerization",
	"kubernetes":       "Kubernetes orchestration",
	"devops":           "DevOps practices",
	"machine-learning": "machine learning",
	"ml":               "machine learning",
	"ai":               "artificial intelligence",
	"data-science":     "data science",
	"deep-learning":    "deep learning",
	"nlp":              "natural language processing",
}

// SubjectName expands a short subject id such as "dsa". Unknown ids are
// returned unchanged.
func SubjectName(id string) string {
	if name, ok := subjectNames[strings.ToLower(strings.TrimSpace(id))]; ok {
		return name
	}
	return id
}
