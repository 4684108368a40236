package graph

import (
	"strconv"
	"strings"

	"github.com/dkarpov/intake/internal/model"
)

// Evaluate applies a single visibility predicate to an answer value.
// An absent answer (nil) never satisfies a condition, whatever the operator.
func Evaluate(answer model.AnswerValue, cond model.Condition) bool {
	if answer == nil {
		return false
	}
	switch cond.Operator {
	case model.OpEq:
		return looseEqual(answer, cond.Value)
	case model.OpNeq:
		return !looseEqual(answer, cond.Value)
	case model.OpGt, model.OpLt, model.OpGte, model.OpLte:
		a, okA := answerNumber(answer)
		b, okB := anyNumber(cond.Value)
		if !okA || !okB {
			return false
		}
		switch cond.Operator {
		case model.OpGt:
			return a > b
		case model.OpLt:
			return a < b
		case model.OpGte:
			return a >= b
		default:
			return a <= b
		}
	case model.OpIncludes, model.OpExcludes:
		list, ok := answer.(model.ListValue)
		if !ok {
			return false
		}
		want := model.CanonicalString(cond.Value)
		found := false
		for _, item := range list {
			if model.CanonicalString(item) == want {
				found = true
				break
			}
		}
		if cond.Operator == model.OpIncludes {
			return found
		}
		return !found
	case model.OpContains:
		// Substring match runs on the literal text; canonical number
		// normalization would rewrite "18.50" to "18.5".
		return strings.Contains(literalText(answer), literalText(cond.Value))
	}
	return false
}

// Eligible reports whether a question may be shown given the current answer
// set: every conditional-show predicate must hold, and a question with no
// predicates is always eligible once reached in sequence.
func Eligible(q model.Question, answers map[string]model.AnswerRecord) bool {
	for _, cond := range q.ConditionalShows {
		rec, ok := answers[cond.QuestionID]
		if !ok {
			return false
		}
		if !Evaluate(rec.Value, cond) {
			return false
		}
	}
	return true
}

func literalText(v any) string {
	switch x := v.(type) {
	case model.StringValue:
		return string(x)
	case string:
		return x
	}
	return model.CanonicalString(v)
}

func looseEqual(answer model.AnswerValue, want any) bool {
	if a, okA := answerNumber(answer); okA {
		if b, okB := anyNumber(want); okB {
			return a == b
		}
	}
	return model.CanonicalString(answer) == model.CanonicalString(want)
}

func answerNumber(v model.AnswerValue) (float64, bool) {
	switch x := v.(type) {
	case model.NumberValue:
		return float64(x), true
	case model.MeasurementValue:
		return x.Value, true
	case model.StringValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	}
	return 0, false
}

func anyNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
