// Package summary builds the end-of-interview scorecard from persisted
// questions and answers.
package summary

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/user/interview-coach/internal/heuristics"
	"github.com/user/interview-coach/internal/store"
)

const (
	neutralScore     = 50
	defaultQuestions = 10
)

type Scorecard struct {
	SessionID          string           `json:"sessionId"`
	Message            string           `json:"message"`
	TotalQuestions     int              `json:"totalQuestions"`
	AnsweredQuestions  int              `json:"answeredQuestions"`
	CompletedQuestions int              `json:"completedQuestions"`
	OverallScore       float64          `json:"overallScore"`
	Duration           string           `json:"duration"`
	Scores             Scores           `json:"scores"`
	FillerWords        FillerSummary    `json:"fillerWords"`
	Questions          []QuestionReport `json:"questions"`
	Answers            []AnswerReport   `json:"answers"`
	Aggregate          Aggregate        `json:"aggregate"`
	Strengths          []string         `json:"strengths"`
	Improvements       []string         `json:"improvements"`
	Recommendations    []string         `json:"recommendations"`
	OverallFeedback    string           `json:"overallFeedback"`
}

type Scores struct {
	OverallCommunication float64 `json:"overallCommunication"`
	Confidence           float64 `json:"confidence"`
	Clarity              float64 `json:"clarity"`
	TechnicalAccuracy    float64 `json:"technical_accuracy"`
}

type FillerCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

type FillerSummary struct {
	Total     int           `json:"total"`
	Breakdown []FillerCount `json:"breakdown"`
	// RealtimeCount is what the live pipeline counted while answers were
	// being recorded, as opposed to the recount over final transcripts.
	RealtimeCount int `json:"realtime_count"`
}

type QuestionReport struct {
	QuestionNumber int    `json:"questionNumber"`
	QuestionText   string `json:"questionText"`
}

type AnswerReport struct {
	QuestionID        string        `json:"questionId"`
	QuestionNumber    int           `json:"questionNumber"`
	Transcript        string        `json:"transcript"`
	FillerWordsCount  int           `json:"fillerWordsCount"`
	FillerWords       []FillerCount `json:"fillerWords"`
	Duration          float64       `json:"duration"`
	ConfidenceScore   int           `json:"confidenceScore"`
	ClarityScore      int           `json:"clarityScore"`
	TechnicalAccuracy int           `json:"technicalAccuracy"`
}

type Aggregate struct {
	WordCount   int     `json:"wordCount"`
	FillerWords int     `json:"fillerWords"`
	FillerRatio float64 `json:"fillerRatio"`
}

// Build reads everything stored for sessionID and computes the scorecard.
// Sessions without answers get neutral scores instead of zeros.
func Build(ctx context.Context, st store.Store, vocab *heuristics.Vocabulary, sessionID string) (*Scorecard, error) {
	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	questions, err := st.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	answers, err := st.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	if vocab == nil {
		vocab = heuristics.DefaultVocabulary()
	}

	card := &Scorecard{
		SessionID:          sessionID,
		Message:            "Interview completed successfully!",
		TotalQuestions:     sess.TotalQuestions,
		AnsweredQuestions:  len(answers),
		CompletedQuestions: len(answers),
		Questions:          make([]QuestionReport, 0, len(questions)),
		Answers:            make([]AnswerReport, 0, len(answers)),
		Strengths:          []string{},
		Improvements:       []string{},
		Recommendations:    []string{},
	}
	if card.TotalQuestions == 0 {
		card.TotalQuestions = len(questions)
	}
	if card.TotalQuestions == 0 {
		card.TotalQuestions = defaultQuestions
	}

	for _, q := range questions {
		card.Questions = append(card.Questions, QuestionReport{
			QuestionNumber: q.Number,
			QuestionText:   q.Text,
		})
	}

	merged := make(map[string]int)
	var (
		totalSeconds              float64
		sumConf, sumClar, sumTech int
	)
	for _, a := range answers {
		lowered := strings.ToLower(a.Transcript)
		perAnswer := make(map[string]int)
		hits := vocab.Find(lowered)
		for _, term := range hits {
			perAnswer[term]++
			merged[term]++
		}

		fillerCount := a.FillerCount
		if fillerCount == 0 {
			fillerCount = len(hits)
		}

		card.Answers = append(card.Answers, AnswerReport{
			QuestionID:        a.QuestionID,
			QuestionNumber:    a.QuestionNumber,
			Transcript:        a.Transcript,
			FillerWordsCount:  fillerCount,
			FillerWords:       breakdown(perAnswer),
			Duration:          a.Duration,
			ConfidenceScore:   a.Confidence,
			ClarityScore:      a.Clarity,
			TechnicalAccuracy: a.Technical,
		})

		card.Aggregate.WordCount += len(heuristics.Tokens(lowered))
		card.Aggregate.FillerWords += len(hits)
		card.FillerWords.RealtimeCount += a.FillerCount
		totalSeconds += a.Duration
		sumConf += a.Confidence
		sumClar += a.Clarity
		sumTech += a.Technical
	}

	card.Duration = formatDuration(totalSeconds)
	card.FillerWords.Total = card.Aggregate.FillerWords
	card.FillerWords.Breakdown = breakdown(merged)
	if card.Aggregate.WordCount > 0 {
		card.Aggregate.FillerRatio = round(float64(card.Aggregate.FillerWords)/float64(card.Aggregate.WordCount), 3)
	}

	if n := float64(len(answers)); n > 0 {
		card.Scores.Confidence = round(float64(sumConf)/n, 1)
		card.Scores.Clarity = round(float64(sumClar)/n, 1)
		card.Scores.TechnicalAccuracy = round(float64(sumTech)/n, 1)
	} else {
		card.Scores.Confidence = neutralScore
		card.Scores.Clarity = neutralScore
		card.Scores.TechnicalAccuracy = neutralScore
	}
	card.Scores.OverallCommunication = round((card.Scores.Confidence+card.Scores.Clarity)/2, 1)
	card.OverallScore = card.Scores.OverallCommunication

	feedback(card)
	return card, nil
}

func feedback(card *Scorecard) {
	if card.AnsweredQuestions == 0 {
		card.Recommendations = append(card.Recommendations, "Answer a few questions out loud to get personalised feedback.")
		card.OverallFeedback = "Not enough answers to assess yet. Keep practising!"
		return
	}

	ratio := card.Aggregate.FillerRatio
	switch {
	case ratio < 0.05:
		card.Strengths = append(card.Strengths, "Excellent clarity with minimal filler words.")
	case ratio > 0.12:
		card.Improvements = append(card.Improvements, "High filler density. Practice concise answers.")
		card.Recommendations = append(card.Recommendations, "Record short mock answers focusing on reducing fillers like um/uh.")
	}

	switch conf := card.Scores.Confidence; {
	case conf >= 70:
		card.Strengths = append(card.Strengths, "Good confidence level across responses.")
	case conf < 55:
		card.Improvements = append(card.Improvements, "Confidence can improve. Maintain steady pace and projection.")
	}

	if card.Scores.Clarity < 60 {
		card.Improvements = append(card.Improvements, "Clarity can improve. Structure answers before speaking.")
		card.Recommendations = append(card.Recommendations, "Pause briefly instead of using filler words while you think.")
	}

	card.OverallFeedback = "Balanced performance."
	switch {
	case len(card.Improvements) > 0 && len(card.Strengths) == 0:
		card.OverallFeedback = "Focus on reducing fillers and improving delivery consistency."
	case len(card.Strengths) > 0 && len(card.Improvements) == 0:
		card.OverallFeedback = "Strong communication foundations. Keep refining depth and structure."
	}
}

// breakdown orders terms by count, most frequent first.
func breakdown(counts map[string]int) []FillerCount {
	out := make([]FillerCount, 0, len(counts))
	for word, n := range counts {
		out = append(out, FillerCount{Word: word, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out
}

func formatDuration(seconds float64) string {
	s := int(math.Round(seconds))
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
