package scorer

// Grade is a letter bucket derived from a total score.
type Grade string

const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
	GradeCPlus  Grade = "C+"
	GradeC      Grade = "C"
	GradeCMinus Grade = "C-"
	GradeD      Grade = "D"
)

var gradeLadder = []struct {
	min   int
	grade Grade
}{
	{95, GradeAPlus},
	{90, GradeA},
	{85, GradeAMinus},
	{80, GradeBPlus},
	{75, GradeB},
	{70, GradeBMinus},
	{65, GradeCPlus},
	{60, GradeC},
	{55, GradeCMinus},
}

// GradeFor maps a total score to its letter grade.
func GradeFor(score int) Grade {
	for _, step := range gradeLadder {
		if score >= step.min {
			return step.grade
		}
	}
	return GradeD
}
