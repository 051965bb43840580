package validation

import (
	"fmt"
	"strings"

	"github.com/branchops/csv-validator/internal/models"
)

const (
	// MaxMessageLength caps the rendered summary message.
	MaxMessageLength = 3500
	// MaxRenderedGroups caps how many error groups the message shows.
	MaxRenderedGroups = 15

	// Room reserved at the tail of the message for the overflow marker.
	markerReserve = 64
)

var ruleLabels = map[models.RuleKind]string{
	models.RuleHeader:     "Header Error",
	models.RuleDelimiter:  "Field Delimiter Error",
	models.RuleDecimal:    "Decimal Separator Error",
	models.RuleDateFormat: "Date Format Error",
	models.RuleNumeric:    "Numeric Value Error",
	models.RuleStatus:     "Status Value Error",
	models.RuleEmptyField: "Empty Field Error",
}

// RuleLabel returns the human-readable label of a rule kind.
func RuleLabel(kind models.RuleKind) string {
	if label, ok := ruleLabels[kind]; ok {
		return label
	}
	return string(kind)
}

type renderedGroup struct {
	kind   models.RuleKind
	detail string
	group  *models.ErrorGroup
}

// FormatSummaryMessage renders a bounded text summary of one file's grouped
// errors. Groups are ranked by rule severity, then count descending.
// Rendering stops at MaxRenderedGroups groups or MaxMessageLength characters,
// whichever comes first, with an explicit "+N more" marker; the structured
// grouped errors always keep the full data.
func FormatSummaryMessage(filename string, totalRows, errorCount int, accuracyRate float64, grouped models.GroupedErrors) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FILE: %s\n", filename)
	fmt.Fprintf(&b, "Accuracy: %.1f%% (%d/%d rows with errors)\n", accuracyRate, errorCount, totalRows)

	ranked := rankGroups(grouped)
	if len(ranked) == 0 {
		b.WriteString("\nNo errors found. File matches the expected format.")
		return b.String()
	}

	b.WriteString("\nERROR DETAILS:\n")

	rendered := 0
	for _, rg := range ranked {
		if rendered >= MaxRenderedGroups {
			break
		}
		line := formatGroupLine(rg)
		if b.Len()+len(line)+1 > MaxMessageLength-markerReserve {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
		rendered++
	}

	if remaining := len(ranked) - rendered; remaining > 0 {
		fmt.Fprintf(&b, "... (+%d more error groups)", remaining)
	}

	return strings.TrimRight(b.String(), "\n")
}

// rankGroups flattens grouped errors into rendering order: rule severity
// first, then count descending, detail text as the final tiebreak.
func rankGroups(grouped models.GroupedErrors) []renderedGroup {
	var ranked []renderedGroup
	for _, kind := range models.SeverityOrder {
		for _, detail := range grouped.SortedDetails(kind) {
			ranked = append(ranked, renderedGroup{kind: kind, detail: detail, group: grouped[kind][detail]})
		}
	}
	return ranked
}

func formatGroupLine(rg renderedGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %s: %d occurrences", RuleLabel(rg.kind), rg.detail, rg.group.Count)

	if len(rg.group.Rows) > 0 {
		samples := make([]string, len(rg.group.Rows))
		for i, row := range rg.group.Rows {
			samples[i] = fmt.Sprintf("%d", row)
		}
		fmt.Fprintf(&b, ", rows %s", strings.Join(samples, ", "))
		if rg.group.OverflowRows > 0 {
			fmt.Fprintf(&b, " (+%d more rows)", rg.group.OverflowRows)
		}
	}
	return b.String()
}

// FormatConsoleLine renders the short per-file console summary.
func FormatConsoleLine(filename string, totalRows, errorCount int, accuracyRate float64) string {
	category := models.CategoryForAccuracy(accuracyRate)
	symbol := map[models.Category]string{
		models.CategoryPerfect:  "OK",
		models.CategoryGood:     "GOOD",
		models.CategoryMedium:   "WARN",
		models.CategoryCritical: "ERROR",
	}[category]

	return fmt.Sprintf("[%s] %s: %d rows, %d errors (%.1f%% - %s)",
		symbol, filename, totalRows, errorCount, accuracyRate, category)
}
