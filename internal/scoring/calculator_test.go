package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rubrix-app/rubrix-api/internal/models"
)

func levelColumns() []models.RubricColumn {
	return []models.RubricColumn{
		{ID: "c1", Name: "Poor", Points: 0},
		{ID: "c2", Name: "Good", Points: 5},
		{ID: "c3", Name: "Excellent", Points: 10},
	}
}

func discreteRubric() *models.Rubric {
	return &models.Rubric{
		ID:            "r1",
		Name:          "Essay",
		Type:          models.RubricTypeAssignment,
		GradingMethod: models.GradingMethodStandard,
		ScoringMode:   models.ScoringModeDiscrete,
		Columns:       levelColumns(),
		Rows: []models.RubricRow{
			{ID: "row1", Name: "Structure", MaxPoints: 10},
			{ID: "row2", Name: "Spelling", MaxPoints: 10},
		},
	}
}

func TestCalculateDiscreteSelection(t *testing.T) {
	rubric := discreteRubric()
	data := models.NewStudentGradingData()
	data.Selections["row1"] = "c2"
	data.Selections["row2"] = "c3"

	result := Calculate(rubric, data)
	require.Equal(t, 5.0, result.RowScores["row1"])
	require.Equal(t, 10.0, result.RowScores["row2"])
	require.Equal(t, 15.0, result.Total)
}

func TestCalculateCumulativeSumsUpToSelection(t *testing.T) {
	rubric := discreteRubric()
	rubric.ScoringMode = models.ScoringModeCumulative
	data := models.NewStudentGradingData()
	data.Selections["row1"] = "c3"

	result := Calculate(rubric, data)
	require.Equal(t, 15.0, result.RowScores["row1"], "cumulative score sums all columns up to the selection")
	require.Equal(t, 0.0, result.RowScores["row2"])
}

func TestCalculateUnselectedRowScoresZero(t *testing.T) {
	rubric := discreteRubric()
	result := Calculate(rubric, models.NewStudentGradingData())
	require.Equal(t, 0.0, result.Total)
	require.Len(t, result.RowScores, 2)
}

func TestCalculateStaleColumnIDScoresZero(t *testing.T) {
	rubric := discreteRubric()
	data := models.NewStudentGradingData()
	data.Selections["row1"] = "deleted-column"

	result := Calculate(rubric, data)
	require.Equal(t, 0.0, result.RowScores["row1"])
}

func TestCalculateNilRubricYieldsZeroResult(t *testing.T) {
	result := Calculate(nil, models.NewStudentGradingData())
	require.Equal(t, 0.0, result.Total)
	require.Empty(t, result.RowScores)
}

func TestCalculateExamScoreClamped(t *testing.T) {
	rubric := discreteRubric()
	rubric.Type = models.RubricTypeExam
	data := models.NewStudentGradingData()
	data.RowScores["row1"] = 14
	data.RowScores["row2"] = -3

	result := Calculate(rubric, data)
	require.Equal(t, 10.0, result.RowScores["row1"], "manual score clamps to max points")
	require.Equal(t, 0.0, result.RowScores["row2"], "manual score clamps to zero")
}

func TestCalculateExamRowWithoutMaxPointsScoresZero(t *testing.T) {
	rubric := discreteRubric()
	rubric.Type = models.RubricTypeExam
	rubric.Rows[0].MaxPoints = 0
	data := models.NewStudentGradingData()
	data.RowScores["row1"] = 50

	result := Calculate(rubric, data)
	require.Equal(t, 0.0, result.RowScores["row1"], "zero max points bounds the manual score at zero")
}

func TestCalculateNotMadeRowScoresZero(t *testing.T) {
	rubric := discreteRubric()
	data := models.NewStudentGradingData()
	data.Selections["row1"] = "c3"
	data.NotMadeRows["row1"] = true

	result := Calculate(rubric, data)
	require.Equal(t, 0.0, result.RowScores["row1"])
}

func TestCalculateRouteExcludedRowScoresZero(t *testing.T) {
	rubric := discreteRubric()
	rubric.Rows[0].Routes = []string{"blue"}
	data := models.NewStudentGradingData()
	data.SelectedRoute = "orange"
	data.Selections["row1"] = "c3"

	result := Calculate(rubric, data)
	require.Equal(t, 0.0, result.RowScores["row1"])
}

func TestCalculateCalculationBonus(t *testing.T) {
	rubric := discreteRubric()
	rubric.Rows[0].CalculationPoints = 2

	data := models.NewStudentGradingData()
	data.Selections["row1"] = "c2"
	data.CalculationCorrect["row1"] = true

	result := Calculate(rubric, data)
	require.Equal(t, 7.0, result.RowScores["row1"])
	require.Equal(t, 7.0, result.Total)
}

func TestCalculateCalculationBonusDefaultsToCorrect(t *testing.T) {
	rubric := discreteRubric()
	rubric.Rows[0].CalculationPoints = 2

	data := models.NewStudentGradingData()
	data.Selections["row1"] = "c2"

	result := Calculate(rubric, data)
	require.Equal(t, 7.0, result.RowScores["row1"], "unjudged calculation still earns the bonus")
}

func TestCalculateCalculationBonusRequiresAnswer(t *testing.T) {
	rubric := discreteRubric()
	rubric.Rows[0].CalculationPoints = 2

	data := models.NewStudentGradingData()
	data.CalculationCorrect["row1"] = true

	result := Calculate(rubric, data)
	require.Equal(t, 0.0, result.RowScores["row1"], "an unanswered row never earns bonus points")
}

func TestCalculateCalculationBonusWithheldWhenIncorrect(t *testing.T) {
	rubric := discreteRubric()
	rubric.Rows[0].CalculationPoints = 2

	data := models.NewStudentGradingData()
	data.Selections["row1"] = "c2"
	data.CalculationCorrect["row1"] = false

	result := Calculate(rubric, data)
	require.Equal(t, 5.0, result.RowScores["row1"])
}

func TestCalculateMasteryRowFromRequirements(t *testing.T) {
	rubric := &models.Rubric{
		ID:            "r2",
		Type:          models.RubricTypeAssignment,
		GradingMethod: models.GradingMethodMastery,
		Rows: []models.RubricRow{
			{ID: "row1", Name: "Fractions", LearningGoal: "Arithmetic", Requirements: []string{"a", "b", "c"}, MinRequirements: 2},
			{ID: "row2", Name: "Decimals", LearningGoal: "Arithmetic"},
		},
	}
	data := models.NewStudentGradingData()
	data.MetRequirements["row1"] = []string{"a", "c"}
	data.RowScores["row2"] = 1

	result := Calculate(rubric, data)
	require.Equal(t, 1.0, result.RowScores["row1"])
	require.Equal(t, 1.0, result.RowScores["row2"])
	require.Equal(t, 2.0, result.Total)
}

func TestCalculateMasteryRowFailsBelowMinRequirements(t *testing.T) {
	rubric := &models.Rubric{
		ID:            "r2",
		Type:          models.RubricTypeAssignment,
		GradingMethod: models.GradingMethodMastery,
		Rows: []models.RubricRow{
			{ID: "row1", Requirements: []string{"a", "b", "c"}, MinRequirements: 3},
		},
	}
	data := models.NewStudentGradingData()
	data.MetRequirements["row1"] = []string{"a"}

	result := Calculate(rubric, data)
	require.Equal(t, 0.0, result.RowScores["row1"])
}

func TestHasLowestColumnSelectedSkipsBonusRows(t *testing.T) {
	rubric := discreteRubric()
	rubric.Rows[1].IsBonus = true

	data := models.NewStudentGradingData()
	data.Selections["row2"] = "c1"
	require.False(t, HasLowestColumnSelected(rubric, data), "bonus rows never trigger the lowest-column rule")

	data.Selections["row1"] = "c1"
	require.True(t, HasLowestColumnSelected(rubric, data))
}
