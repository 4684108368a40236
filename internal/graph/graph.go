// Package graph holds the immutable question catalogue for one form
// template, plus the pure visibility and tier functions that drive
// interview traversal.
package graph

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/dkarpov/intake/internal/model"
)

// Graph is an ordered, immutable catalogue of question definitions.
type Graph struct {
	templateID string
	name       string
	jobType    string
	questions  []model.Question
	byID       map[string]int
}

// New builds and validates a graph from question definitions. Questions are
// kept in sequence order. An empty catalogue is a configuration error.
func New(templateID, name, jobType string, questions []model.Question) (*Graph, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: template %q has no questions", model.ErrConfiguration, templateID)
	}

	qs := make([]model.Question, len(questions))
	copy(qs, questions)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Sequence < qs[j].Sequence })

	byID := make(map[string]int, len(qs))
	for i, q := range qs {
		if q.ID == "" {
			return nil, fmt.Errorf("%w: question at sequence %d has no id", model.ErrConfiguration, q.Sequence)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", model.ErrConfiguration, q.ID)
		}
		if i > 0 && q.Sequence <= qs[i-1].Sequence {
			return nil, fmt.Errorf("%w: sequence numbers must be strictly increasing, %q repeats %d",
				model.ErrConfiguration, q.ID, q.Sequence)
		}
		byID[q.ID] = i
	}

	g := &Graph{templateID: templateID, name: name, jobType: jobType, questions: qs, byID: byID}
	for _, q := range qs {
		if err := g.validateQuestion(q); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) validateQuestion(q model.Question) error {
	switch q.Type {
	case model.QuestionYesNo, model.QuestionSingleChoice, model.QuestionMultiSelect,
		model.QuestionCheckbox, model.QuestionText, model.QuestionNumeric,
		model.QuestionMeasurement, model.QuestionLocation:
	default:
		return fmt.Errorf("%w: question %q has unknown type %q", model.ErrConfiguration, q.ID, q.Type)
	}
	if (q.Type == model.QuestionSingleChoice || q.Type == model.QuestionMultiSelect) && len(q.Options) == 0 {
		return fmt.Errorf("%w: choice question %q has no options", model.ErrConfiguration, q.ID)
	}
	for _, c := range q.ConditionalShows {
		if !validOperator(c.Operator) {
			return fmt.Errorf("%w: question %q condition uses unknown operator %q",
				model.ErrConfiguration, q.ID, c.Operator)
		}
		if _, ok := g.byID[c.QuestionID]; !ok {
			return fmt.Errorf("%w: question %q condition references unknown question %q",
				model.ErrConfiguration, q.ID, c.QuestionID)
		}
	}
	for _, r := range q.SkipLogic {
		if _, ok := g.byID[r.TargetID]; !ok {
			return fmt.Errorf("%w: question %q skip rule targets unknown question %q",
				model.ErrConfiguration, q.ID, r.TargetID)
		}
	}
	for _, m := range q.FieldMappings {
		if m.FieldID == "" {
			return fmt.Errorf("%w: question %q has a field mapping without a field id",
				model.ErrConfiguration, q.ID)
		}
		if m.Confidence < 0 || m.Confidence > 100 {
			return fmt.Errorf("%w: question %q mapping %q confidence %d outside 0-100",
				model.ErrConfiguration, q.ID, m.FieldID, m.Confidence)
		}
	}
	return nil
}

func validOperator(op model.Operator) bool {
	switch op {
	case model.OpEq, model.OpNeq, model.OpGt, model.OpLt, model.OpGte, model.OpLte,
		model.OpIncludes, model.OpExcludes, model.OpContains:
		return true
	}
	return false
}

// TemplateID returns the owning form template id.
func (g *Graph) TemplateID() string { return g.templateID }

// Name returns the template's display name.
func (g *Graph) Name() string { return g.name }

// JobType returns the template's job type label.
func (g *Graph) JobType() string { return g.jobType }

// Len returns the number of questions.
func (g *Graph) Len() int { return len(g.questions) }

// Question returns the question with the given id.
func (g *Graph) Question(id string) (model.Question, bool) {
	i, ok := g.byID[id]
	if !ok {
		return model.Question{}, false
	}
	return g.questions[i], true
}

// IndexOf returns a question's position in sequence order, or -1.
func (g *Graph) IndexOf(id string) int {
	i, ok := g.byID[id]
	if !ok {
		return -1
	}
	return i
}

// At returns the question at the given position in sequence order.
func (g *Graph) At(i int) model.Question { return g.questions[i] }

// Questions returns all questions in sequence order.
func (g *Graph) Questions() []model.Question {
	out := make([]model.Question, len(g.questions))
	copy(out, g.questions)
	return out
}

// ByTier groups the questions by their tier number.
func (g *Graph) ByTier() map[int][]model.Question {
	out := make(map[int][]model.Question)
	for _, q := range g.questions {
		t := TierOf(q.Sequence)
		out[t] = append(out[t], q)
	}
	return out
}

// Standards returns the distinct standards citations across all questions,
// sorted alphabetically.
func (g *Graph) Standards() []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range g.questions {
		for _, s := range q.Standards {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ParseTemplate parses a template import file into its graph.
func ParseTemplate(data []byte) (model.TemplateImport, *Graph, error) {
	var ti model.TemplateImport
	if err := json.Unmarshal(data, &ti); err != nil {
		return ti, nil, fmt.Errorf("%w: parse template: %v", model.ErrConfiguration, err)
	}
	if ti.ID == "" {
		return ti, nil, fmt.Errorf("%w: template file has no id", model.ErrConfiguration)
	}
	g, err := New(ti.ID, ti.Name, ti.JobType, ti.Questions)
	if err != nil {
		return ti, nil, err
	}
	return ti, g, nil
}
