package graph

import (
	"errors"
	"testing"

	"github.com/dkarpov/intake/internal/model"
)

func testQuestions() []model.Question {
	return []model.Question{
		{ID: "q1", Sequence: 1, Type: model.QuestionYesNo, Text: "Standing water present?"},
		{ID: "q2", Sequence: 2, Type: model.QuestionSingleChoice, Text: "Water category?",
			Options:   []string{"category 1", "category 2", "category 3"},
			Standards: []string{"IICRC S500 10.5.3"}},
		{ID: "q3", Sequence: 3, Type: model.QuestionMeasurement, Text: "Indoor temperature?",
			Standards: []string{"IICRC S500 12.2.1"}},
		{ID: "q6", Sequence: 6, Type: model.QuestionText, Text: "Describe affected materials",
			Standards: []string{"IICRC S500 10.5.3"}},
		{ID: "q9", Sequence: 9, Type: model.QuestionNumeric, Text: "Affected area (sqm)?"},
	}
}

func TestNewValidGraph(t *testing.T) {
	g, err := New("water_damage", "Water Damage Assessment", "water_damage", testQuestions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Len() != 5 {
		t.Errorf("expected 5 questions, got %d", g.Len())
	}
	if g.IndexOf("q6") != 3 {
		t.Errorf("expected q6 at index 3, got %d", g.IndexOf("q6"))
	}
	if _, ok := g.Question("missing"); ok {
		t.Error("expected missing question lookup to fail")
	}

	byTier := g.ByTier()
	if len(byTier[1]) != 3 || len(byTier[2]) != 1 || len(byTier[3]) != 1 {
		t.Errorf("unexpected tier grouping: %v", byTier)
	}

	standards := g.Standards()
	if len(standards) != 2 {
		t.Fatalf("expected 2 distinct standards, got %v", standards)
	}
	if standards[0] != "IICRC S500 10.5.3" || standards[1] != "IICRC S500 12.2.1" {
		t.Errorf("standards not sorted/distinct: %v", standards)
	}
}

func TestNewRejectsInvalidGraphs(t *testing.T) {
	tests := []struct {
		name      string
		questions []model.Question
	}{
		{"empty", nil},
		{"duplicate id", []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionText},
			{ID: "q1", Sequence: 2, Type: model.QuestionText},
		}},
		{"repeated sequence", []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionText},
			{ID: "q2", Sequence: 1, Type: model.QuestionText},
		}},
		{"unknown type", []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionType("slider")},
		}},
		{"choice without options", []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionSingleChoice},
		}},
		{"condition references unknown question", []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionText,
				ConditionalShows: []model.Condition{{QuestionID: "ghost", Operator: model.OpEq, Value: "x"}}},
		}},
		{"condition with unknown operator", []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionText},
			{ID: "q2", Sequence: 2, Type: model.QuestionText,
				ConditionalShows: []model.Condition{{QuestionID: "q1", Operator: model.Operator("like"), Value: "x"}}},
		}},
		{"skip rule targets unknown question", []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionText,
				SkipLogic: []model.SkipRule{{Answer: "no", TargetID: "ghost"}}},
		}},
		{"mapping confidence out of range", []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionText,
				FieldMappings: []model.FieldMapping{{FieldID: "f", Confidence: 130}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("tpl", "Template", "water_damage", tt.questions)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, model.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestParseTemplate(t *testing.T) {
	data := []byte(`{
		"id": "water_damage",
		"name": "Water Damage Assessment",
		"job_type": "water_damage",
		"questions": [
			{"id": "q1", "sequence": 1, "type": "yes_no", "text": "Standing water present?"},
			{"id": "q2", "sequence": 2, "type": "numeric", "text": "Rooms affected?",
			 "conditional_shows": [{"question_id": "q1", "operator": "eq", "value": "yes"}],
			 "field_mappings": [{"field_id": "rooms_affected", "confidence": 90}]}
		]
	}`)

	ti, g, err := ParseTemplate(data)
	if err != nil {
		t.Fatalf("ParseTemplate: %v", err)
	}
	if ti.ID != "water_damage" || ti.JobType != "water_damage" {
		t.Errorf("unexpected template metadata: %+v", ti)
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 questions, got %d", g.Len())
	}
	q2, _ := g.Question("q2")
	if len(q2.ConditionalShows) != 1 || q2.ConditionalShows[0].Operator != model.OpEq {
		t.Errorf("conditions not parsed: %+v", q2.ConditionalShows)
	}
	if len(q2.FieldMappings) != 1 || q2.FieldMappings[0].Confidence != 90 {
		t.Errorf("mappings not parsed: %+v", q2.FieldMappings)
	}

	if _, _, err := ParseTemplate([]byte(`{"name": "no id"}`)); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for missing id, got %v", err)
	}
	if _, _, err := ParseTemplate([]byte(`not json`)); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for bad JSON, got %v", err)
	}
}
