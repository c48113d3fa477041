// Package scoring contains the pure score and threshold computations of the
// grading engine. Nothing here performs I/O; every function is deterministic
// over its inputs so grading can be replayed and tested in isolation.
package scoring

import (
	"github.com/rubrix-app/rubrix-api/internal/models"
)

// Result is the outcome of scoring one student against one rubric.
type Result struct {
	Total     float64            `json:"total"`
	RowScores map[string]float64 `json:"row_scores"`
}

// Calculate scores a single student's answer set against the rubric. A nil
// rubric or nil answer set yields a zero result rather than an error; the
// grading surface must never crash on a stale reference.
func Calculate(rubric *models.Rubric, data *models.StudentGradingData) Result {
	result := Result{RowScores: map[string]float64{}}
	if rubric == nil || data == nil {
		return result
	}

	for _, row := range rubric.Rows {
		score := rowScore(rubric, row, data)
		result.RowScores[row.ID] = score
		result.Total += score
	}

	return result
}

// rowScore applies the per-row precedence: route exclusion, not-made, exam
// score, mastery checklist, standard column selection, calculation bonus.
func rowScore(rubric *models.Rubric, row models.RubricRow, data *models.StudentGradingData) float64 {
	if !row.AppliesToRoute(data.SelectedRoute) {
		return 0
	}
	if data.NotMadeRows[row.ID] {
		return 0
	}

	var score float64
	switch {
	case rubric.Type == models.RubricTypeExam:
		manual, ok := data.RowScores[row.ID]
		if !ok {
			return 0
		}
		score = clamp(manual, 0, row.MaxPoints)
	case rubric.GradingMethod == models.GradingMethodMastery:
		checked, ok := masteryRowResult(row, data)
		if !ok {
			return 0
		}
		if checked {
			score = 1
		}
	default:
		score = standardRowScore(rubric, row, data)
	}

	if row.CalculationPoints > 0 && data.HasAnswer(row.ID) {
		// Absent means "not judged", which still earns the bonus.
		if correct, judged := data.CalculationCorrect[row.ID]; !judged || correct {
			score += row.CalculationPoints
		}
	}

	return score
}

// masteryRowResult resolves the 0/1 checklist outcome for a mastery row: an
// explicit pass/fail result wins, otherwise the met-requirements count is
// compared against the row's minimum.
func masteryRowResult(row models.RubricRow, data *models.StudentGradingData) (passed, answered bool) {
	if stored, ok := data.RowScores[row.ID]; ok {
		return stored > 0, true
	}
	met, ok := data.MetRequirements[row.ID]
	if !ok || len(met) == 0 {
		return false, false
	}
	required := row.MinRequirements
	if required <= 0 {
		required = len(row.Requirements)
	}
	return len(met) >= required, true
}

func standardRowScore(rubric *models.Rubric, row models.RubricRow, data *models.StudentGradingData) float64 {
	columnID, ok := data.Selections[row.ID]
	if !ok {
		return 0
	}
	index := rubric.ColumnIndex(columnID)
	if index < 0 {
		// Stale column id after a rubric edit: no match, no points.
		return 0
	}
	if rubric.ScoringMode == models.ScoringModeCumulative {
		var sum float64
		for _, column := range rubric.Columns[:index+1] {
			sum += column.Points
		}
		return sum
	}
	return rubric.Columns[index].Points
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// HasLowestColumnSelected reports whether the student selected the lowest
// performance level on any non-bonus row. Threshold downgrade rules key off
// this signal.
func HasLowestColumnSelected(rubric *models.Rubric, data *models.StudentGradingData) bool {
	if rubric == nil || data == nil {
		return false
	}
	lowest := rubric.LowestColumnID()
	if lowest == "" {
		return false
	}
	for _, row := range rubric.Rows {
		if row.IsBonus {
			continue
		}
		if data.Selections[row.ID] == lowest {
			return true
		}
	}
	return false
}
