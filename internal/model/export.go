package model

import "time"

// InterviewExport is the top-level JSON structure for session export.
type InterviewExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionResult `json:"sessions"`
}

// SessionResult holds one interview session's data for export.
type SessionResult struct {
	SessionID   string                        `json:"session_id"`
	TemplateID  string                        `json:"template_id"`
	JobType     string                        `json:"job_type"`
	TierLevel   TierLevel                     `json:"tier_level"`
	Status      SessionStatus                 `json:"status"`
	StartedAt   time.Time                     `json:"started_at"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
	Answers     []AnswerResult                `json:"answers"`
	Fields      map[string]AutoPopulatedField `json:"auto_populated_fields,omitempty"`
}

// AnswerResult holds one answer for export.
type AnswerResult struct {
	QuestionID string    `json:"question_id"`
	Value      any       `json:"value"`
	Confidence int       `json:"confidence"`
	At         time.Time `json:"at"`
}
