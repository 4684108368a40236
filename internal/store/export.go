package store

import (
	"fmt"

	"github.com/dkarpov/intake/internal/model"
)

// ExportAllSessions builds export-ready results from all stored sessions.
// Auto-populated fields are left for the caller to recompute by replay,
// since they depend on the transform registry.
func (s *Store) ExportAllSessions() ([]model.SessionResult, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var results []model.SessionResult
	for _, sess := range sessions {
		records, err := s.ListAnswers(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list answers for %s: %w", sess.ID, err)
		}

		var answers []model.AnswerResult
		for _, rec := range records {
			answers = append(answers, model.AnswerResult{
				QuestionID: rec.QuestionID,
				Value:      rec.Value.Native(),
				Confidence: rec.Confidence,
				At:         rec.CreatedAt,
			})
		}

		results = append(results, model.SessionResult{
			SessionID:   sess.ID,
			TemplateID:  sess.TemplateID,
			JobType:     sess.JobType,
			TierLevel:   sess.TierLevel,
			Status:      sess.Status,
			StartedAt:   sess.StartedAt,
			CompletedAt: sess.CompletedAt,
			Answers:     answers,
		})
	}

	return results, nil
}
