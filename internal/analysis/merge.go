package analysis

import "github.com/Lowy-zhangtian/-audit-tool/internal/model"

// Merge left-joins narratives onto verdicts by report id, in verdict order.
// Every verdict yields exactly one result; verdicts without a narrative get
// a nil Narrative. When several narratives share an id the first one wins.
func Merge(verdicts []model.RuleVerdict, narratives []model.Narrative) []model.ReviewResult {
	byID := make(map[string]*model.Narrative, len(narratives))
	for i := range narratives {
		if _, exists := byID[narratives[i].ReportID]; !exists {
			byID[narratives[i].ReportID] = &narratives[i]
		}
	}

	results := make([]model.ReviewResult, 0, len(verdicts))
	for _, v := range verdicts {
		violations := v.Violations
		if violations == nil {
			violations = []model.Violation{}
		}

		result := model.ReviewResult{
			ReportID:   v.ReportID,
			Violations: violations,
		}
		if n, ok := byID[v.ReportID]; ok {
			narrative := *n
			result.Narrative = &narrative
		}
		results = append(results, result)
	}
	return results
}
