package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkarpov/intake/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTemplate() model.TemplateImport {
	return model.TemplateImport{
		ID:      "water_damage",
		Name:    "Water Damage Assessment",
		JobType: "water_damage",
		Questions: []model.Question{
			{ID: "q1", Sequence: 1, Type: model.QuestionYesNo, Text: "Standing water present?",
				SkipLogic: []model.SkipRule{{Answer: "no", TargetID: "q3"}},
				FieldMappings: []model.FieldMapping{
					{FieldID: "standing_water", Transform: "yes_no_bool", Confidence: 100},
				}},
			{ID: "q2", Sequence: 2, Type: model.QuestionSingleChoice, Text: "Water category?",
				Options: []string{"category 1", "category 2"},
				ConditionalShows: []model.Condition{
					{QuestionID: "q1", Operator: model.OpEq, Value: "yes"},
				},
				Standards: []string{"IICRC S500 10.5.3"}},
			{ID: "q3", Sequence: 3, Type: model.QuestionText, Text: "Property address?"},
		},
	}
}

func seedTemplate(t *testing.T, s *Store) {
	t.Helper()
	if err := s.UpsertTemplate(testTemplate()); err != nil {
		t.Fatalf("seedTemplate: %v", err)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedTemplate(t, s)

	tpl, err := s.GetTemplate("water_damage")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.Name != "Water Damage Assessment" || tpl.JobType != "water_damage" {
		t.Errorf("unexpected template: %+v", tpl)
	}

	g, err := s.GetGraph("water_damage")
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("expected 3 questions, got %d", g.Len())
	}

	q1, _ := g.Question("q1")
	if len(q1.SkipLogic) != 1 || q1.SkipLogic[0].TargetID != "q3" {
		t.Errorf("skip logic not round-tripped: %+v", q1.SkipLogic)
	}
	if len(q1.FieldMappings) != 1 || q1.FieldMappings[0].Transform != "yes_no_bool" {
		t.Errorf("field mappings not round-tripped: %+v", q1.FieldMappings)
	}
	q2, _ := g.Question("q2")
	if len(q2.ConditionalShows) != 1 || q2.ConditionalShows[0].Operator != model.OpEq {
		t.Errorf("conditions not round-tripped: %+v", q2.ConditionalShows)
	}
	if len(q2.Options) != 2 {
		t.Errorf("options not round-tripped: %v", q2.Options)
	}
	if got := g.Standards(); len(got) != 1 || got[0] != "IICRC S500 10.5.3" {
		t.Errorf("standards not round-tripped: %v", got)
	}
}

func TestGetTemplateNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTemplate("missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_, err = s.GetGraph("missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound from GetGraph, got %v", err)
	}
}

func TestUpsertTemplateReplacesQuestions(t *testing.T) {
	s := newTestStore(t)
	seedTemplate(t, s)

	ti := testTemplate()
	ti.Questions = ti.Questions[:2]
	ti.Questions[0].SkipLogic = nil // q3 no longer exists as a target
	if err := s.UpsertTemplate(ti); err != nil {
		t.Fatalf("UpsertTemplate: %v", err)
	}

	g, err := s.GetGraph("water_damage")
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("expected questions replaced, got %d", g.Len())
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	seedTemplate(t, s)

	sess := model.Session{
		ID:         "sess-1",
		TemplateID: "water_damage",
		JobType:    "water_damage",
		TierLevel:  model.TierPremium,
		Status:     model.StatusInProgress,
	}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != model.StatusInProgress || got.TierLevel != model.TierPremium {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("expected nil completed_at")
	}

	if err := s.UpdateSessionStatus("sess-1", model.StatusCompleted); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	got, _ = s.GetSession("sess-1")
	if got.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	_, err = s.GetSession("missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAnswerLogAppendOnly(t *testing.T) {
	s := newTestStore(t)
	seedTemplate(t, s)
	_ = s.CreateSession(model.Session{
		ID: "sess-1", TemplateID: "water_damage", TierLevel: model.TierStandard,
		Status: model.StatusInProgress,
	})

	ctx := context.Background()
	records := []model.AnswerRecord{
		{QuestionID: "q1", Value: model.StringValue("yes"), Confidence: 100, CreatedAt: time.Now()},
		{QuestionID: "q2", Value: model.StringValue("category 1"), Confidence: 90, CreatedAt: time.Now()},
		// Re-answer: the log keeps both rows.
		{QuestionID: "q2", Value: model.StringValue("category 2"), Confidence: 90, CreatedAt: time.Now()},
	}
	for _, rec := range records {
		if err := s.AppendAnswer(ctx, "sess-1", rec); err != nil {
			t.Fatalf("AppendAnswer: %v", err)
		}
	}

	got, err := s.ListAnswers("sess-1")
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 log rows, got %d", len(got))
	}
	if got[0].QuestionID != "q1" || got[2].Value.Native() != "category 2" {
		t.Errorf("unexpected log order: %+v", got)
	}
	if got[1].Confidence != 90 {
		t.Errorf("confidence not round-tripped: %+v", got[1])
	}
}

func TestAnswerValueRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedTemplate(t, s)
	_ = s.CreateSession(model.Session{
		ID: "sess-1", TemplateID: "water_damage", TierLevel: model.TierStandard,
		Status: model.StatusInProgress,
	})

	ctx := context.Background()
	values := []model.AnswerValue{
		model.StringValue("12 Mill Road"),
		model.NumberValue(3),
		model.BoolValue(true),
		model.ListValue{"walls", "floor"},
		model.MeasurementValue{Value: 22.5, Unit: "C"},
	}
	for _, v := range values {
		if err := s.AppendAnswer(ctx, "sess-1", model.AnswerRecord{
			QuestionID: "q1", Value: v, Confidence: 100, CreatedAt: time.Now(),
		}); err != nil {
			t.Fatalf("AppendAnswer: %v", err)
		}
	}

	got, err := s.ListAnswers("sess-1")
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(got) != len(values) {
		t.Fatalf("expected %d records, got %d", len(values), len(got))
	}
	for i, v := range values {
		if got[i].Value.Kind() != v.Kind() {
			t.Errorf("record %d: kind %s, want %s", i, got[i].Value.Kind(), v.Kind())
		}
	}
	if m, ok := got[4].Value.(model.MeasurementValue); !ok || m.Value != 22.5 || m.Unit != "C" {
		t.Errorf("measurement not round-tripped: %+v", got[4].Value)
	}
}

func TestListAnswersToleratesCorruptValue(t *testing.T) {
	s := newTestStore(t)
	seedTemplate(t, s)
	_ = s.CreateSession(model.Session{
		ID: "sess-1", TemplateID: "water_damage", TierLevel: model.TierStandard,
		Status: model.StatusInProgress,
	})

	// Simulate a legacy or corrupted row written outside the engine.
	_, err := s.db.Exec(
		`INSERT INTO answer_log (session_id, question_id, value, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		"sess-1", "q1", `{broken json`, 100, time.Now(),
	)
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	got, err := s.ListAnswers("sess-1")
	if err != nil {
		t.Fatalf("ListAnswers must tolerate corrupt values: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Value.Native() != `{broken json` {
		t.Errorf("expected raw-string fallback, got %v", got[0].Value.Native())
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("/templates/water.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/templates/water.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/templates/water.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	if err := s.SetImportedFileHash("/templates/water.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/templates/water.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestExportAllSessions(t *testing.T) {
	s := newTestStore(t)
	seedTemplate(t, s)
	_ = s.CreateSession(model.Session{
		ID: "sess-1", TemplateID: "water_damage", JobType: "water_damage",
		TierLevel: model.TierEnterprise, Status: model.StatusInProgress,
	})
	_ = s.AppendAnswer(context.Background(), "sess-1", model.AnswerRecord{
		QuestionID: "q1", Value: model.StringValue("yes"), Confidence: 100, CreatedAt: time.Now(),
	})
	_ = s.UpdateSessionStatus("sess-1", model.StatusCompleted)

	results, err := s.ExportAllSessions()
	if err != nil {
		t.Fatalf("ExportAllSessions: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.SessionID != "sess-1" || r.Status != model.StatusCompleted {
		t.Errorf("unexpected result: %+v", r)
	}
	if len(r.Answers) != 1 || r.Answers[0].Value != "yes" {
		t.Errorf("answers not exported: %+v", r.Answers)
	}
}
