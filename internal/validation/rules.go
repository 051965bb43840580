package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/branchops/csv-validator/internal/models"
)

// ExpectedHeaders is the fixed 7-column schema every branch file must carry,
// order-sensitive and case-sensitive.
var ExpectedHeaders = []string{"roundId", "gameId", "createDate", "updateDate", "betAmount", "winAmount", "status"}

const (
	// FieldDelimiter separates columns.
	FieldDelimiter = ";"
	// DecimalSeparator is the only accepted decimal mark in amount fields.
	DecimalSeparator = ","

	dateLayout = "2006-01-02 15:04:05"
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

	// Delimiters a misconfigured branch export is likely to use instead of ";".
	competingDelimiters = []string{",", "\t", "|"}
)

// RuleEngine validates header lines and data rows against the fixed schema.
// It never panics and never stops at the first defect of a row: every field
// present is checked, every field absent yields an EMPTY_FIELD violation.
type RuleEngine struct {
	rawCaptureLimit int
}

// NewRuleEngine returns an engine capturing at most rawCaptureLimit
// characters of the offending line on each violation.
func NewRuleEngine(rawCaptureLimit int) *RuleEngine {
	if rawCaptureLimit <= 0 || rawCaptureLimit > 1000 {
		rawCaptureLimit = 1000
	}
	return &RuleEngine{rawCaptureLimit: rawCaptureLimit}
}

// ValidateHeader checks the first line of a file against ExpectedHeaders.
// A mismatched column count or any out-of-order or misspelled name yields a
// HEADER violation carrying the expected and actual headers. Header
// violations use row number 0: data rows are numbered from 1.
func (e *RuleEngine) ValidateHeader(line string) *models.Violation {
	headers := strings.Split(line, FieldDelimiter)
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	if len(headers) == len(ExpectedHeaders) {
		match := true
		for i, h := range headers {
			if h != ExpectedHeaders[i] {
				match = false
				break
			}
		}
		if match {
			return nil
		}
	}

	return &models.Violation{
		RowNumber: 0,
		Kind:      models.RuleHeader,
		Detail: fmt.Sprintf("header does not match expected format, expected: %s, found: %s",
			strings.Join(ExpectedHeaders, FieldDelimiter), strings.Join(headers, FieldDelimiter)),
		RawRow: e.captureRaw(line),
	}
}

// ValidateDelimiter checks that a line is delimited by ";". A line with no
// ";" at all, a wrong column count, or a competing delimiter producing a more
// plausible field count yields a DELIMITER violation.
func (e *RuleEngine) ValidateDelimiter(line string, rowNumber int) []models.Violation {
	fieldCount := strings.Count(line, FieldDelimiter) + 1
	if fieldCount == len(ExpectedHeaders) {
		return nil
	}

	violation := models.Violation{
		RowNumber: rowNumber,
		Kind:      models.RuleDelimiter,
		RawRow:    e.captureRaw(line),
	}

	switch {
	case e.detectCompetingDelimiter(line) != "":
		competitor := e.detectCompetingDelimiter(line)
		violation.Detail = fmt.Sprintf("line appears to use %q as field delimiter, expected %q", competitor, FieldDelimiter)
	case !strings.Contains(line, FieldDelimiter):
		violation.Detail = fmt.Sprintf("field delimiter %q not found", FieldDelimiter)
	default:
		violation.Detail = fmt.Sprintf("expected %d columns, found %d", len(ExpectedHeaders), fieldCount)
	}

	return []models.Violation{violation}
}

// detectCompetingDelimiter returns the first competing delimiter that splits
// the line into exactly the expected column count, or "" when none does.
func (e *RuleEngine) detectCompetingDelimiter(line string) string {
	for _, d := range competingDelimiters {
		if strings.Count(line, d)+1 == len(ExpectedHeaders) {
			return d
		}
	}
	return ""
}

// ValidateRow runs every field rule on one data row. Fields are evaluated
// independently: a defect in one field never suppresses checks on another,
// and a structurally short row still yields checks for the fields present
// plus EMPTY_FIELD violations for the fields absent.
func (e *RuleEngine) ValidateRow(fields []string, rowNumber int, raw string) []models.Violation {
	var violations []models.Violation
	capture := e.captureRaw(raw)

	add := func(kind models.RuleKind, fieldName, detail string) {
		violations = append(violations, models.Violation{
			RowNumber: rowNumber,
			Kind:      kind,
			FieldName: fieldName,
			Detail:    detail,
			RawRow:    capture,
		})
	}

	for i, name := range ExpectedHeaders {
		if i >= len(fields) {
			add(models.RuleEmptyField, name, fmt.Sprintf("%q field is empty", name))
			continue
		}

		value := strings.TrimSpace(fields[i])
		if value == "" {
			add(models.RuleEmptyField, name, fmt.Sprintf("%q field is empty", name))
			continue
		}

		switch name {
		case "createDate", "updateDate":
			if !validDate(value) {
				add(models.RuleDateFormat, name,
					fmt.Sprintf("%q has invalid date format, expected YYYY-MM-DD HH:MM:SS, found: %s", name, value))
			}
		case "betAmount", "winAmount":
			if strings.Contains(value, ".") {
				add(models.RuleDecimal, name,
					fmt.Sprintf("%q uses \".\" as decimal separator, expected %q", name, DecimalSeparator))
			}
			if detail := checkNumeric(value, name); detail != "" {
				add(models.RuleNumeric, name, detail)
			}
		case "status":
			if value != "won" && value != "lost" {
				add(models.RuleStatus, name,
					fmt.Sprintf("status value is invalid, expected \"won\" or \"lost\", found: %s", value))
			}
		}
	}

	return violations
}

// Validate runs the delimiter rule and every field rule on one raw row.
func (e *RuleEngine) Validate(row models.RawRow) []models.Violation {
	violations := e.ValidateDelimiter(row.Raw, row.Number)
	violations = append(violations, e.ValidateRow(row.Fields, row.Number, row.Raw)...)
	return violations
}

func validDate(value string) bool {
	if !datePattern.MatchString(value) {
		return false
	}
	_, err := time.Parse(dateLayout, value)
	return err == nil
}

// checkNumeric accepts "," as the decimal separator, rejects non-numeric and
// negative values. Returns a violation detail or "" when the value is fine.
func checkNumeric(value, fieldName string) string {
	normalized := strings.ReplaceAll(value, DecimalSeparator, ".")
	numeric, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return fmt.Sprintf("%q is not a numeric value", fieldName)
	}
	if numeric < 0 {
		return fmt.Sprintf("%q contains a negative value", fieldName)
	}
	return ""
}

func (e *RuleEngine) captureRaw(line string) string {
	return truncate(line, e.rawCaptureLimit)
}

// truncate cuts s to at most limit bytes without splitting a rune, so the
// captured text stays valid UTF-8 for the jsonb column and the log.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
