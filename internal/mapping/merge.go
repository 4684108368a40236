package mapping

import (
	"sort"

	"github.com/dkarpov/intake/internal/model"
)

// Merge reconciles interview-derived fields against an existing field set.
// Existing non-empty values are never silently overwritten: a differing
// value becomes a conflict that reports both sides, with the existing value
// kept in the merged map.
func Merge(auto map[string]model.AutoPopulatedField, existing map[string]any) model.MergeResult {
	result := model.MergeResult{
		MergedFields:     make(map[string]model.MergedField, len(auto)),
		AddedFields:      []string{},
		UpdatedFields:    []string{},
		ConflictedFields: []model.FieldConflict{},
	}

	ids := make([]string, 0, len(auto))
	for id := range auto {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var confidenceSum int
	for _, id := range ids {
		field := auto[id]
		confidenceSum += field.Confidence

		existingValue, present := existing[id]
		switch {
		case !present:
			result.AddedFields = append(result.AddedFields, id)
			result.MergedFields[id] = model.MergedField{
				Value:      field.Value,
				Confidence: field.Confidence,
				Source:     model.SourceInterview,
			}
		case model.IsEmptyValue(existingValue):
			result.UpdatedFields = append(result.UpdatedFields, id)
			result.MergedFields[id] = model.MergedField{
				Value:      field.Value,
				Confidence: field.Confidence,
				Source:     model.SourceInterview,
			}
		case !model.ValuesEqual(existingValue, field.Value):
			result.ConflictedFields = append(result.ConflictedFields, model.FieldConflict{
				FieldID:        id,
				ExistingValue:  existingValue,
				InterviewValue: field.Value,
			})
			result.MergedFields[id] = model.MergedField{
				Value:      existingValue,
				Confidence: field.Confidence,
				Source:     model.SourceExisting,
			}
		default:
			// Equal values: merged unchanged, neither an update nor a conflict.
			result.MergedFields[id] = model.MergedField{
				Value:      existingValue,
				Confidence: field.Confidence,
				Source:     model.SourceExisting,
			}
		}
	}

	result.Statistics = model.MergeStatistics{
		TotalFieldsMerged: len(result.MergedFields),
		NewFieldsAdded:    len(result.AddedFields),
		FieldsUpdated:     len(result.UpdatedFields),
	}
	if len(auto) > 0 {
		result.Statistics.AverageConfidence = float64(confidenceSum) / float64(len(auto))
	}
	return result
}
