package ml

import (
	"fmt"
	"strings"
)

// Accuracy is the share of positions where predicted equals actual.
func Accuracy(actual, predicted []int) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}
	var correct int
	for i := range actual {
		if actual[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual))
}

type ClassMetrics struct {
	Class     string  `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport holds per-class precision, recall and F1 together
// with their macro and support-weighted averages.
type ClassificationReport struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Total       int            `json:"total"`
}

// NewClassificationReport scores predicted against actual. names[i] is the
// display name of class i.
func NewClassificationReport(actual, predicted []int, names []string) ClassificationReport {
	report := ClassificationReport{
		Accuracy:    Accuracy(actual, predicted),
		Total:       len(actual),
		MacroAvg:    ClassMetrics{Class: "macro avg"},
		WeightedAvg: ClassMetrics{Class: "weighted avg"},
	}
	if len(actual) != len(predicted) {
		return report
	}

	for class, name := range names {
		var truePositive, predictedPositive, actualPositive int
		for i := range actual {
			if predicted[i] == class {
				predictedPositive++
			}
			if actual[i] == class {
				actualPositive++
				if predicted[i] == class {
					truePositive++
				}
			}
		}
		m := ClassMetrics{Class: name, Support: actualPositive}
		if predictedPositive > 0 {
			m.Precision = float64(truePositive) / float64(predictedPositive)
		}
		if actualPositive > 0 {
			m.Recall = float64(truePositive) / float64(actualPositive)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes = append(report.Classes, m)
	}

	if len(report.Classes) == 0 {
		return report
	}
	n := float64(len(report.Classes))
	for _, m := range report.Classes {
		report.MacroAvg.Precision += m.Precision / n
		report.MacroAvg.Recall += m.Recall / n
		report.MacroAvg.F1 += m.F1 / n
		report.MacroAvg.Support += m.Support
		if report.Total > 0 {
			w := float64(m.Support) / float64(report.Total)
			report.WeightedAvg.Precision += m.Precision * w
			report.WeightedAvg.Recall += m.Recall * w
			report.WeightedAvg.F1 += m.F1 * w
		}
		report.WeightedAvg.Support += m.Support
	}
	return report
}

// String renders the report as a fixed-width table.
func (r ClassificationReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	row := func(m ClassMetrics) {
		fmt.Fprintf(&sb, "%12s %10.2f %10.2f %10.2f %10d\n", m.Class, m.Precision, m.Recall, m.F1, m.Support)
	}
	for _, m := range r.Classes {
		row(m)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Total)
	row(r.MacroAvg)
	row(r.WeightedAvg)
	return sb.String()
}
