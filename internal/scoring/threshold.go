package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/rubrix-app/rubrix-api/internal/models"
)

// Resolve maps a total score onto a threshold. Thresholds are walked from
// the highest minimum down; a candidate whose RequiresNoLowest rule is
// violated is skipped so the student is downgraded to the next band instead
// of rejected. When nothing matches, the lowest band is returned as a
// fallback. Only an empty threshold list yields nil.
func Resolve(thresholds []models.Threshold, totalScore float64, hasLowestSelected bool) *models.Threshold {
	if len(thresholds) == 0 {
		return nil
	}

	sorted := append([]models.Threshold(nil), thresholds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Min > sorted[j].Min
	})

	for i := range sorted {
		candidate := sorted[i]
		if !candidate.Contains(totalScore) {
			continue
		}
		if candidate.RequiresNoLowest && hasLowestSelected {
			continue
		}
		return &candidate
	}

	fallback := sorted[len(sorted)-1]
	return &fallback
}

// ThresholdsFor returns the threshold scale that applies to the student:
// the rubric's default list, or the route-scoped mastery scale when the
// student follows a route the rubric defines cutoffs for.
func ThresholdsFor(rubric *models.Rubric, data *models.StudentGradingData) []models.Threshold {
	if rubric == nil {
		return nil
	}
	if data != nil && data.SelectedRoute != "" {
		if scale, ok := rubric.MasteryThresholds[data.SelectedRoute]; ok {
			return []models.Threshold{
				{Min: scale.Expert, Label: "Expert", Status: "expert"},
				{Min: scale.Mastered, Label: "Mastered", Status: "mastered"},
				{Min: 0, Label: "In Development", Status: "in_development"},
			}
		}
	}
	return rubric.Thresholds
}

// GoalOutcome is the mastery pass/fail verdict for one learning goal.
type GoalOutcome struct {
	Goal               string `json:"goal"`
	CorrectCount       int    `json:"correct_count"`
	RowCount           int    `json:"row_count"`
	Threshold          int    `json:"threshold"`
	ConditionsMet      int    `json:"conditions_met"`
	ConditionsRequired int    `json:"conditions_required"`
	Passed             bool   `json:"passed"`
}

// EvaluateMastery computes the per-learning-goal verdicts for a mastery
// rubric. A goal passes when enough of its rows are correct and enough of
// its extra conditions are met. The row threshold defaults to
// ceil(0.55 * rowCount) when the rule leaves it unset; the condition
// requirement defaults to the number of extra conditions.
func EvaluateMastery(rubric *models.Rubric, data *models.StudentGradingData, rowScores map[string]float64) []GoalOutcome {
	if rubric == nil {
		return nil
	}

	outcomes := make([]GoalOutcome, 0)
	for _, goal := range rubric.LearningGoals() {
		rows := rubric.RowsForGoal(goal)
		applicable := 0
		correct := 0
		for _, row := range rows {
			if data != nil && !row.AppliesToRoute(data.SelectedRoute) {
				continue
			}
			applicable++
			if rowScores[row.ID] > 0 {
				correct++
			}
		}
		if applicable == 0 {
			continue
		}

		rule := rubric.LearningGoalRules[goal]
		threshold := int(math.Ceil(0.55 * float64(applicable)))
		if rule.Threshold != nil {
			threshold = *rule.Threshold
		}

		required := len(rule.ExtraConditions)
		if rule.MinConditions != nil {
			required = *rule.MinConditions
		}

		met := 0
		if data != nil {
			for _, satisfied := range data.ExtraConditionsMet[goal] {
				if satisfied {
					met++
				}
			}
		}

		outcomes = append(outcomes, GoalOutcome{
			Goal:               goal,
			CorrectCount:       correct,
			RowCount:           applicable,
			Threshold:          threshold,
			ConditionsMet:      met,
			ConditionsRequired: required,
			Passed:             correct >= threshold && met >= required,
		})
	}

	return outcomes
}

// SummarizeMastery collapses goal outcomes into an overall status pair.
func SummarizeMastery(outcomes []GoalOutcome) (status, label string) {
	passed := 0
	for _, outcome := range outcomes {
		if outcome.Passed {
			passed++
		}
	}
	if len(outcomes) > 0 && passed == len(outcomes) {
		return "mastered", fmt.Sprintf("Mastered %d/%d goals", passed, len(outcomes))
	}
	return "in_development", fmt.Sprintf("Mastered %d/%d goals", passed, len(outcomes))
}
