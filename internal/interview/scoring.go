package interview

import (
	"math"
	"time"

	"github.com/user/interview-coach/internal/event"
	"github.com/user/interview-coach/internal/heuristics"
)

const (
	baseScore    = 70
	neutralScore = 50
)

// Score computes the provisional sub-scores of one answer. An empty
// transcript gets neutral scores so a failed transcription does not read as
// a bad answer.
func Score(transcript string, duration time.Duration, counts heuristics.Counts) event.FeedbackScores {
	words := len(heuristics.Tokens(transcript))
	secs := duration.Seconds()

	s := event.FeedbackScores{
		FillerWordsCount: counts.Fillers,
		AnswerDuration:   round(secs, 1),
	}
	if secs > 1 {
		s.WordsPerMinute = round(float64(words)/(secs/60), 1)
	}
	s.FillerDensity = round(float64(counts.Fillers)/float64(max(words, 1)), 3)

	if words == 0 {
		s.ConfidenceScore = neutralScore
		s.ClarityScore = neutralScore
		s.TechnicalAccuracy = neutralScore
		return s
	}

	s.ConfidenceScore = clamp(baseScore - min(15, counts.Pauses*5))
	s.ClarityScore = clamp(baseScore - min(20, counts.Fillers*2) - min(10, counts.Repetitions))
	s.TechnicalAccuracy = clamp(baseScore)
	return s
}

func clamp(v int) int {
	return max(0, min(100, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
