package listing

import "strings"

// Grade is the normalized condition of an item.
type Grade string

const (
	GradeLikeNew   Grade = "like_new"
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
)

// gradeVocab maps free-text condition tokens from either language onto a
// grade. Tokens are matched after lowercasing and trimming.
var gradeVocab = map[string]Grade{
	"neuf":          GradeLikeNew,
	"new":           GradeLikeNew,
	"comme neuf":    GradeLikeNew,
	"like new":      GradeLikeNew,
	"like_new":      GradeLikeNew,
	"perfect":       GradeLikeNew,
	"mint":          GradeLikeNew,
	"jamais porté":  GradeLikeNew,
	"excellent":     GradeExcellent,
	"très bon état": GradeExcellent,
	"tres bon etat": GradeExcellent,
	"very good":     GradeExcellent,
	"good":          GradeGood,
	"bon état":      GradeGood,
	"bon etat":      GradeGood,
	"bon":           GradeGood,
	"used":          GradeGood,
	"occasion":      GradeGood,
	"fair":          GradeFair,
	"correct":       GradeFair,
	"état correct":  GradeFair,
	"etat correct":  GradeFair,
	"moyen":         GradeFair,
	"okay":          GradeFair,
	"poor":          GradePoor,
	"usé":           GradePoor,
	"use":           GradePoor,
	"abîmé":         GradePoor,
	"abime":         GradePoor,
	"worn":          GradePoor,
	"damaged":       GradePoor,
	"mauvais état":  GradePoor,
	"mauvais etat":  GradePoor,
}

// ParseGrade maps a free-text condition token to a Grade. Unrecognized
// input defaults to GradeGood.
func ParseGrade(token string) Grade {
	if g, ok := gradeVocab[strings.ToLower(strings.TrimSpace(token))]; ok {
		return g
	}
	return GradeGood
}

// Score renders a grade as a buyer-facing "n/10" line.
func (g Grade) Score(lang string) string {
	fr := isFrench(lang)
	switch g {
	case GradeLikeNew:
		if fr {
			return "9/10 (comme neuf)"
		}
		return "9/10 (like new)"
	case GradeExcellent:
		if fr {
			return "8/10 (très bon état)"
		}
		return "8/10 (excellent condition)"
	case GradeFair:
		if fr {
			return "6/10 (état correct)"
		}
		return "6/10 (fair condition)"
	case GradePoor:
		if fr {
			return "5/10 (usure visible)"
		}
		return "5/10 (visible wear)"
	default:
		if fr {
			return "7/10 (bon état)"
		}
		return "7/10 (good condition)"
	}
}

// Label renders a grade as a short condition label for titles and summaries.
func (g Grade) Label(lang string) string {
	fr := isFrench(lang)
	switch g {
	case GradeLikeNew:
		if fr {
			return "Comme neuf"
		}
		return "Like new"
	case GradeExcellent:
		if fr {
			return "Très bon état"
		}
		return "Excellent"
	case GradeFair:
		if fr {
			return "État correct"
		}
		return "Fair"
	case GradePoor:
		if fr {
			return "Usure visible"
		}
		return "Worn"
	default:
		if fr {
			return "Bon état"
		}
		return "Good condition"
	}
}

func isFrench(lang string) bool {
	return strings.HasPrefix(strings.ToLower(lang), "fr")
}
