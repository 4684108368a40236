// Package session drives one guided interview: forward/backward traversal
// over a question graph, answer accumulation, field auto-population, and
// append-only persistence of accepted answers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkarpov/intake/internal/graph"
	"github.com/dkarpov/intake/internal/mapping"
	"github.com/dkarpov/intake/internal/model"
)

// AnswerAppender is the persistence adapter surface the controller needs.
// Appends are treated as at-least-once with idempotent semantics on the
// (session, question, value) tuple.
type AnswerAppender interface {
	AppendAnswer(ctx context.Context, sessionID string, rec model.AnswerRecord) error
}

// Step reports the traversal state after an operation.
type Step struct {
	Question        *model.Question     `json:"question,omitempty"`
	UpgradeRequired bool                `json:"upgrade_required"`
	CurrentTier     int                 `json:"current_tier"`
	Status          model.SessionStatus `json:"status"`
	AnsweredCount   int                 `json:"answered_count"`
	TotalQuestions  int                 `json:"total_questions"`
}

// Controller owns one interview session's in-memory state. A controller is
// not safe for interleaved use; an internal mutex serializes calls so each
// operation completes, including its persistence round-trip, before the
// next begins.
type Controller struct {
	mu sync.Mutex

	g     *graph.Graph
	reg   *mapping.Registry
	store AnswerAppender

	sessionID string
	tierLevel model.TierLevel
	maxTier   int

	status      model.SessionStatus
	currentID   string
	currentTier int
	gated       bool

	answers map[string]model.AnswerRecord
	order   []string
	fields  map[string]model.AutoPopulatedField
}

// Start creates a new session over the given graph and positions it on the
// first eligible question. A graph with questions but none eligible
// completes immediately; graph.New has already rejected empty graphs.
func Start(g *graph.Graph, tier model.TierLevel, reg *mapping.Registry, store AnswerAppender) (*Controller, error) {
	if g == nil || g.Len() == 0 {
		return nil, fmt.Errorf("%w: no question graph", model.ErrConfiguration)
	}

	c := &Controller{
		g:         g,
		reg:       reg,
		store:     store,
		sessionID: uuid.NewString(),
		tierLevel: tier,
		maxTier:   graph.MaxTier(tier),
		status:    model.StatusStarted,
		answers:   make(map[string]model.AnswerRecord),
		fields:    make(map[string]model.AutoPopulatedField),
	}
	c.positionAtFirstUnanswered()
	return c, nil
}

// Restore rebuilds a controller from a persisted session by replaying the
// stored answers in their original order. Exact duplicate records for the
// same question are skipped so at-least-once persistence cannot
// double-apply a mapping.
func Restore(g *graph.Graph, sessionID string, tier model.TierLevel, records []model.AnswerRecord, reg *mapping.Registry, store AnswerAppender) (*Controller, error) {
	if g == nil || g.Len() == 0 {
		return nil, fmt.Errorf("%w: no question graph", model.ErrConfiguration)
	}

	c := &Controller{
		g:         g,
		reg:       reg,
		store:     store,
		sessionID: sessionID,
		tierLevel: tier,
		maxTier:   graph.MaxTier(tier),
		status:    model.StatusStarted,
		answers:   make(map[string]model.AnswerRecord),
		fields:    make(map[string]model.AutoPopulatedField),
	}

	for _, rec := range records {
		q, ok := g.Question(rec.QuestionID)
		if !ok {
			slog.Warn("stored answer references unknown question, skipping",
				"session", sessionID, "question", rec.QuestionID)
			continue
		}
		if prev, exists := c.answers[rec.QuestionID]; exists && sameValue(prev.Value, rec.Value) {
			continue
		}
		c.apply(q, rec)
	}

	c.positionAtFirstUnanswered()
	return c, nil
}

// positionAtFirstUnanswered points the session at the first question in
// sequence order that is unanswered and eligible, honoring the tier gate.
func (c *Controller) positionAtFirstUnanswered() {
	for i := 0; i < c.g.Len(); i++ {
		q := c.g.At(i)
		if _, answered := c.answers[q.ID]; answered {
			continue
		}
		if !graph.Eligible(q, c.answers) {
			continue
		}
		if graph.TierOf(q.Sequence) > c.maxTier {
			// Gate: keep the pointer on the last answered question so a
			// restored session reports the same position as a live one.
			c.gated = true
			for j := i - 1; j >= 0; j-- {
				prev := c.g.At(j)
				if _, answered := c.answers[prev.ID]; answered {
					c.currentID = prev.ID
					c.currentTier = graph.TierOf(prev.Sequence)
					break
				}
			}
			c.status = model.StatusInProgress
			return
		}
		c.currentID = q.ID
		c.currentTier = graph.TierOf(q.Sequence)
		c.status = model.StatusInProgress
		return
	}
	c.currentID = ""
	c.status = model.StatusCompleted
}

// apply records an answer and folds its field mappings into the running
// auto-populated field map. Last write per field id wins.
func (c *Controller) apply(q model.Question, rec model.AnswerRecord) {
	if _, exists := c.answers[q.ID]; !exists {
		c.order = append(c.order, q.ID)
	}
	c.answers[q.ID] = rec
	for _, f := range mapping.Resolve(c.reg, q, rec.Value, c.fields) {
		c.fields[f.FieldID] = f
	}
}

// Answer accepts a value for the current question, persists it, and
// advances to the next question. Skip logic takes precedence over the
// forward conditional scan; crossing the tier gate halts traversal and
// flags upgrade-required instead of returning the gated question. A gated
// session rejects answers until navigation moves back into unlocked tiers.
func (c *Controller) Answer(ctx context.Context, value model.AnswerValue, confidence int) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// ERROR is recoverable by retrying the same call; the in-memory state
	// already holds the answer and re-persisting is idempotent.
	if c.status != model.StatusInProgress && c.status != model.StatusError {
		return c.step(), fmt.Errorf("%w: answer on session with status %s", model.ErrInvalidState, c.status)
	}
	if c.gated {
		return c.step(), fmt.Errorf("%w: next question requires a higher tier", model.ErrInvalidState)
	}
	if c.currentID == "" {
		return c.step(), fmt.Errorf("%w: no current question", model.ErrInvalidState)
	}

	q, _ := c.g.Question(c.currentID)
	if !model.MatchesType(q.Type, value, q.Options) {
		return c.step(), fmt.Errorf("%w: answer does not match question %q type %s",
			model.ErrValidation, q.ID, q.Type)
	}

	if confidence <= 0 {
		confidence = 100
	}
	rec := model.AnswerRecord{
		QuestionID: q.ID,
		Value:      value,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	}

	// In-memory mutation happens before the persistence call so a failed
	// append leaves a retryable state rather than rolling back.
	c.apply(q, rec)

	if err := c.store.AppendAnswer(ctx, c.sessionID, rec); err != nil {
		c.status = model.StatusError
		return c.step(), fmt.Errorf("%w: append answer for %s: %w", model.ErrPersistence, q.ID, err)
	}
	c.status = model.StatusInProgress
	c.advanceFrom(q, value)
	return c.step(), nil
}

func (c *Controller) advanceFrom(q model.Question, value model.AnswerValue) {
	// Skip logic first: a matching rule jumps straight to its target,
	// bypassing the sequential scan.
	for _, rule := range q.SkipLogic {
		if !graph.Evaluate(value, model.Condition{Operator: model.OpEq, Value: rule.Answer}) {
			continue
		}
		target, ok := c.g.Question(rule.TargetID)
		if !ok {
			continue
		}
		if graph.TierOf(target.Sequence) > c.maxTier {
			c.gated = true
			return
		}
		c.currentID = target.ID
		c.currentTier = graph.TierOf(target.Sequence)
		return
	}

	for i := c.g.IndexOf(q.ID) + 1; i < c.g.Len(); i++ {
		next := c.g.At(i)
		if !graph.Eligible(next, c.answers) {
			continue
		}
		if graph.TierOf(next.Sequence) > c.maxTier {
			c.gated = true
			return
		}
		c.currentID = next.ID
		c.currentTier = graph.TierOf(next.Sequence)
		return
	}

	c.currentID = ""
	c.status = model.StatusCompleted
}

// Previous moves to the first eligible predecessor in natural sequence
// order. Skip-logic jumps are not reversed; locked tiers are never entered.
func (c *Controller) Previous() (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.StatusInProgress {
		return c.step(), fmt.Errorf("%w: previous on session with status %s", model.ErrInvalidState, c.status)
	}

	start := c.g.Len() - 1
	if c.currentID != "" {
		start = c.g.IndexOf(c.currentID) - 1
	}
	for i := start; i >= 0; i-- {
		q := c.g.At(i)
		if graph.TierOf(q.Sequence) > c.maxTier {
			continue
		}
		if !graph.Eligible(q, c.answers) {
			continue
		}
		c.currentID = q.ID
		c.currentTier = graph.TierOf(q.Sequence)
		c.gated = false
		return c.step(), nil
	}
	return c.step(), fmt.Errorf("%w: no prior eligible question", model.ErrInvalidState)
}

// JumpTo revisits an earlier question. Targets beyond the traversed
// frontier are rejected.
func (c *Controller) JumpTo(questionID string) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.StatusInProgress {
		return c.step(), fmt.Errorf("%w: jump on session with status %s", model.ErrInvalidState, c.status)
	}

	q, ok := c.g.Question(questionID)
	if !ok {
		return c.step(), fmt.Errorf("%w: question %q", model.ErrNotFound, questionID)
	}
	if _, answered := c.answers[questionID]; !answered && questionID != c.currentID {
		return c.step(), fmt.Errorf("%w: question %q is beyond the traversed frontier",
			model.ErrInvalidState, questionID)
	}

	c.currentID = q.ID
	c.currentTier = graph.TierOf(q.Sequence)
	c.gated = false
	return c.step(), nil
}

func (c *Controller) step() Step {
	s := Step{
		UpgradeRequired: c.gated,
		CurrentTier:     c.currentTier,
		Status:          c.status,
		AnsweredCount:   len(c.answers),
		TotalQuestions:  c.g.Len(),
	}
	if c.currentID != "" && !c.gated {
		q, _ := c.g.Question(c.currentID)
		s.Question = &q
	}
	return s
}

// SessionID returns the opaque session identifier.
func (c *Controller) SessionID() string { return c.sessionID }

// TierLevel returns the subscription level the session was started with.
func (c *Controller) TierLevel() model.TierLevel { return c.tierLevel }

// Status returns the current session status.
func (c *Controller) Status() model.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Progress returns the current traversal state without mutating anything.
func (c *Controller) Progress() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step()
}

// Graph returns the question graph this session traverses.
func (c *Controller) Graph() *graph.Graph { return c.g }

// Fields returns a copy of the auto-populated field map.
func (c *Controller) Fields() map[string]model.AutoPopulatedField {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]model.AutoPopulatedField, len(c.fields))
	for k, v := range c.fields {
		out[k] = v
	}
	return out
}

// Answers returns the accepted answers in first-answer order.
func (c *Controller) Answers() []model.AnswerRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.AnswerRecord, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.answers[id])
	}
	return out
}

// Merge reconciles the session's auto-populated fields against an existing
// field set. Valid once the session has completed.
func (c *Controller) Merge(existing map[string]any) (model.MergeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != model.StatusCompleted {
		return model.MergeResult{}, fmt.Errorf("%w: merge on session with status %s",
			model.ErrInvalidState, c.status)
	}
	return mapping.Merge(c.fields, existing), nil
}

func sameValue(a, b model.AnswerValue) bool {
	ea, errA := model.EncodeValue(a)
	eb, errB := model.EncodeValue(b)
	if errA != nil || errB != nil {
		return false
	}
	return ea == eb
}
