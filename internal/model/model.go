package model

import (
	"time"
)

// TierLevel represents a subscription level, consumed as a label only.
type TierLevel string

const (
	TierStandard   TierLevel = "STANDARD"
	TierPremium    TierLevel = "PREMIUM"
	TierEnterprise TierLevel = "ENTERPRISE"
)

// SessionStatus represents the status of an interview session.
type SessionStatus string

const (
	StatusStarted    SessionStatus = "started"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusError      SessionStatus = "error"
)

// QuestionType identifies the answer shape a question expects.
type QuestionType string

const (
	QuestionYesNo        QuestionType = "yes_no"
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionMultiSelect  QuestionType = "multi_select"
	QuestionCheckbox     QuestionType = "checkbox"
	QuestionText         QuestionType = "text"
	QuestionNumeric      QuestionType = "numeric"
	QuestionMeasurement  QuestionType = "measurement"
	QuestionLocation     QuestionType = "location"
)

// Operator is a comparison operator used in visibility conditions.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpIncludes Operator = "includes"
	OpExcludes Operator = "excludes"
	OpContains Operator = "contains"
)

// Condition is a visibility predicate against a previously answered question.
type Condition struct {
	QuestionID string   `json:"question_id"`
	Operator   Operator `json:"operator"`
	Value      any      `json:"value"`
}

// SkipRule redirects traversal to a target question when the given answer
// value is observed, overriding the normal sequential scan.
type SkipRule struct {
	Answer   any    `json:"answer"`
	TargetID string `json:"target_id"`
}

// FieldMapping declares how an answer populates one target form field.
// Transform, when set, names a registered pure transform; Value, when set,
// is a static value; otherwise the answer is used verbatim.
type FieldMapping struct {
	FieldID    string `json:"field_id"`
	Transform  string `json:"transform,omitempty"`
	Value      any    `json:"value,omitempty"`
	Confidence int    `json:"confidence"`
}

// Question is an immutable node of the question graph.
type Question struct {
	ID               string         `json:"id"`
	Sequence         int            `json:"sequence"`
	Type             QuestionType   `json:"type"`
	Text             string         `json:"text"`
	Options          []string       `json:"options,omitempty"`
	ConditionalShows []Condition    `json:"conditional_shows,omitempty"`
	SkipLogic        []SkipRule     `json:"skip_logic,omitempty"`
	FieldMappings    []FieldMapping `json:"field_mappings,omitempty"`
	Standards        []string       `json:"standards,omitempty"`
}

// AnswerRecord is one accepted answer. Immutable once written; re-answering
// a question overwrites the in-memory entry while the persisted log stays
// append-only.
type AnswerRecord struct {
	QuestionID string      `json:"question_id"`
	Value      AnswerValue `json:"value"`
	Confidence int         `json:"confidence"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Session is the durable identity of one interview.
type Session struct {
	ID          string        `json:"id"`
	TemplateID  string        `json:"template_id"`
	JobType     string        `json:"job_type"`
	TierLevel   TierLevel     `json:"tier_level"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// AutoPopulatedField is one form field derived from interview answers.
// Later writes for the same field during a session overwrite earlier ones.
type AutoPopulatedField struct {
	FieldID    string `json:"field_id"`
	Value      any    `json:"value"`
	Confidence int    `json:"confidence"`
}

// FieldSource tells which side of a merge supplied a merged field's value.
type FieldSource string

const (
	SourceInterview FieldSource = "interview"
	SourceExisting  FieldSource = "existing"
)

// MergedField is one reconciled field in a merge result.
type MergedField struct {
	Value      any         `json:"value"`
	Confidence int         `json:"confidence"`
	Source     FieldSource `json:"source"`
}

// FieldConflict reports a field whose existing value differs from the
// interview-derived one. The existing value is preserved in the merge.
type FieldConflict struct {
	FieldID        string `json:"field_id"`
	ExistingValue  any    `json:"existing_value"`
	InterviewValue any    `json:"interview_value"`
}

// MergeStatistics summarizes a merge result.
type MergeStatistics struct {
	TotalFieldsMerged int     `json:"total_fields_merged"`
	NewFieldsAdded    int     `json:"new_fields_added"`
	FieldsUpdated     int     `json:"fields_updated"`
	AverageConfidence float64 `json:"average_confidence"`
}

// MergeResult is the outcome of reconciling auto-populated fields against
// an existing field set.
type MergeResult struct {
	MergedFields     map[string]MergedField `json:"merged_fields"`
	AddedFields      []string               `json:"added_fields"`
	UpdatedFields    []string               `json:"updated_fields"`
	ConflictedFields []FieldConflict        `json:"conflicted_fields"`
	Statistics       MergeStatistics        `json:"statistics"`
}

// FormTemplate identifies one importable question graph.
type FormTemplate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	JobType string `json:"job_type"`
}

// TemplateImport is the JSON file format for loading form templates.
type TemplateImport struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	JobType   string     `json:"job_type"`
	Questions []Question `json:"questions"`
}

// EngineConfig holds runtime parameters set via CLI flags.
type EngineConfig struct {
	DefaultTier TierLevel // tier used when a start request omits one
}

// MatchesType reports whether an answer value fits a question's declared
// type. Choice questions with options additionally require membership.
func MatchesType(qt QuestionType, v AnswerValue, options []string) bool {
	if v == nil {
		return false
	}
	switch qt {
	case QuestionYesNo:
		if _, ok := v.(BoolValue); ok {
			return true
		}
		s, ok := v.(StringValue)
		return ok && (s == "yes" || s == "no")
	case QuestionSingleChoice:
		s, ok := v.(StringValue)
		if !ok {
			return false
		}
		return len(options) == 0 || containsString(options, string(s))
	case QuestionMultiSelect:
		list, ok := v.(ListValue)
		if !ok {
			return false
		}
		if len(options) == 0 {
			return true
		}
		for _, item := range list {
			if !containsString(options, item) {
				return false
			}
		}
		return true
	case QuestionCheckbox:
		_, ok := v.(BoolValue)
		return ok
	case QuestionText, QuestionLocation:
		_, ok := v.(StringValue)
		return ok
	case QuestionNumeric:
		_, ok := v.(NumberValue)
		return ok
	case QuestionMeasurement:
		_, ok := v.(MeasurementValue)
		return ok
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
