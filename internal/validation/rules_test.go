package validation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchops/csv-validator/internal/models"
)

const validHeader = "roundId;gameId;createDate;updateDate;betAmount;winAmount;status"

// csvRow builds one data row field by field so each test can inject exactly
// one defect.
type csvRow struct {
	RoundID    string
	GameID     string
	CreateDate string
	UpdateDate string
	BetAmount  string
	WinAmount  string
	Status     string
}

func newValidCSVRow() csvRow {
	return csvRow{
		RoundID:    "R001",
		GameID:     "G001",
		CreateDate: "2026-02-02 10:00:00",
		UpdateDate: "2026-02-02 10:00:05",
		BetAmount:  "100,50",
		WinAmount:  "201,00",
		Status:     "won",
	}
}

func (r csvRow) line() string {
	return strings.Join([]string{r.RoundID, r.GameID, r.CreateDate, r.UpdateDate, r.BetAmount, r.WinAmount, r.Status}, ";")
}

func (r csvRow) rawRow(number int) models.RawRow {
	line := r.line()
	return models.RawRow{
		Number:   number,
		Fields:   strings.Split(line, ";"),
		Raw:      line,
		Filename: "test.csv",
	}
}

func TestRuleEngine_ValidateHeader(t *testing.T) {
	engine := NewRuleEngine(0)

	t.Run("Expect: expected header to pass", func(t *testing.T) {
		assert.Nil(t, engine.ValidateHeader(validHeader))
	})

	t.Run("Expect: header with surrounding spaces to pass", func(t *testing.T) {
		assert.Nil(t, engine.ValidateHeader(" roundId ;gameId;createDate;updateDate;betAmount;winAmount;status"))
	})

	t.Run("Expect: reordered columns to fail", func(t *testing.T) {
		v := engine.ValidateHeader("gameId;roundId;createDate;updateDate;betAmount;winAmount;status")
		assert.NotNil(t, v)
		assert.Equal(t, models.RuleHeader, v.Kind)
		assert.Equal(t, 0, v.RowNumber)
		assert.Contains(t, v.Detail, "expected: "+validHeader)
	})

	t.Run("Expect: wrong case to fail", func(t *testing.T) {
		v := engine.ValidateHeader("RoundId;gameId;createDate;updateDate;betAmount;winAmount;status")
		assert.NotNil(t, v)
	})

	t.Run("Expect: missing column to fail", func(t *testing.T) {
		v := engine.ValidateHeader("roundId;gameId;createDate;updateDate;betAmount;winAmount")
		assert.NotNil(t, v)
		assert.Equal(t, models.RuleHeader, v.Kind)
	})
}

func TestRuleEngine_ValidateRow_CleanRow(t *testing.T) {
	engine := NewRuleEngine(0)

	violations := engine.Validate(newValidCSVRow().rawRow(1))
	assert.Empty(t, violations)
}

func TestRuleEngine_ValidateRow_SingleDefects(t *testing.T) {
	engine := NewRuleEngine(0)

	tests := []struct {
		name      string
		mutate    func(*csvRow)
		wantKind  models.RuleKind
		wantField string
	}{
		{
			name:      "dot decimal separator in betAmount",
			mutate:    func(r *csvRow) { r.BetAmount = "100.50" },
			wantKind:  models.RuleDecimal,
			wantField: "betAmount",
		},
		{
			name:      "negative winAmount",
			mutate:    func(r *csvRow) { r.WinAmount = "-201,00" },
			wantKind:  models.RuleNumeric,
			wantField: "winAmount",
		},
		{
			name:      "non-numeric betAmount",
			mutate:    func(r *csvRow) { r.BetAmount = "abc" },
			wantKind:  models.RuleNumeric,
			wantField: "betAmount",
		},
		{
			name:      "uppercase status",
			mutate:    func(r *csvRow) { r.Status = "WON" },
			wantKind:  models.RuleStatus,
			wantField: "status",
		},
		{
			name:      "unknown status",
			mutate:    func(r *csvRow) { r.Status = "pending" },
			wantKind:  models.RuleStatus,
			wantField: "status",
		},
		{
			name:      "malformed createDate",
			mutate:    func(r *csvRow) { r.CreateDate = "02/02/2026 10:00:00" },
			wantKind:  models.RuleDateFormat,
			wantField: "createDate",
		},
		{
			name:      "impossible updateDate",
			mutate:    func(r *csvRow) { r.UpdateDate = "2026-13-40 10:00:00" },
			wantKind:  models.RuleDateFormat,
			wantField: "updateDate",
		},
		{
			name:      "blank gameId",
			mutate:    func(r *csvRow) { r.GameID = "" },
			wantKind:  models.RuleEmptyField,
			wantField: "gameId",
		},
		{
			name:      "whitespace-only roundId",
			mutate:    func(r *csvRow) { r.RoundID = "   " },
			wantKind:  models.RuleEmptyField,
			wantField: "roundId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := newValidCSVRow()
			tt.mutate(&row)

			violations := engine.Validate(row.rawRow(5))

			assert.Len(t, violations, 1, "exactly one violation for one injected defect")
			assert.Equal(t, tt.wantKind, violations[0].Kind)
			assert.Equal(t, tt.wantField, violations[0].FieldName)
			assert.Equal(t, 5, violations[0].RowNumber)
		})
	}
}

func TestRuleEngine_ValidateRow_NeverShortCircuits(t *testing.T) {
	engine := NewRuleEngine(0)

	row := newValidCSVRow()
	row.BetAmount = "100.50"
	row.Status = "WON"
	row.CreateDate = "bad"

	violations := engine.Validate(row.rawRow(3))

	kinds := make(map[models.RuleKind]int)
	for _, v := range violations {
		kinds[v.Kind]++
	}
	assert.Equal(t, 1, kinds[models.RuleDecimal])
	assert.Equal(t, 1, kinds[models.RuleStatus])
	assert.Equal(t, 1, kinds[models.RuleDateFormat])
}

func TestRuleEngine_ValidateRow_ShortRow(t *testing.T) {
	engine := NewRuleEngine(0)

	// Only the first three columns are present: the present fields are still
	// checked, every absent field yields EMPTY_FIELD.
	raw := "R001;G001;2026-02-02 10:00:00"
	row := models.RawRow{Number: 2, Fields: strings.Split(raw, ";"), Raw: raw}

	violations := engine.Validate(row)

	var empty, delimiter int
	for _, v := range violations {
		switch v.Kind {
		case models.RuleEmptyField:
			empty++
		case models.RuleDelimiter:
			delimiter++
		}
	}
	assert.Equal(t, 4, empty, "updateDate, betAmount, winAmount and status are absent")
	assert.Equal(t, 1, delimiter, "wrong column count is a delimiter violation")
}

func TestRuleEngine_ValidateDelimiter(t *testing.T) {
	engine := NewRuleEngine(0)

	t.Run("Expect: competing comma delimiter to be detected", func(t *testing.T) {
		line := "R001,G001,2026-02-02 10:00:00,2026-02-02 10:00:05,100,201,won"
		violations := engine.ValidateDelimiter(line, 1)
		assert.Len(t, violations, 1)
		assert.Equal(t, models.RuleDelimiter, violations[0].Kind)
		assert.Contains(t, violations[0].Detail, `","`)
	})

	t.Run("Expect: line without any delimiter to be flagged", func(t *testing.T) {
		violations := engine.ValidateDelimiter("no delimiters here", 1)
		assert.Len(t, violations, 1)
		assert.Contains(t, violations[0].Detail, "not found")
	})

	t.Run("Expect: wrong column count to be flagged", func(t *testing.T) {
		violations := engine.ValidateDelimiter("a;b;c", 1)
		assert.Len(t, violations, 1)
		assert.Contains(t, violations[0].Detail, "expected 7 columns, found 3")
	})

	t.Run("Expect: correct column count to pass", func(t *testing.T) {
		assert.Empty(t, engine.ValidateDelimiter(newValidCSVRow().line(), 1))
	})
}

func TestRuleEngine_EndToEndExampleRow(t *testing.T) {
	engine := NewRuleEngine(0)

	assert.Nil(t, engine.ValidateHeader(validHeader))

	raw := "R003;G003;2026-02-02 10:02:00;2026-02-02 10:02:05;75.50;150,00;won"
	row := models.RawRow{Number: 3, Fields: strings.Split(raw, ";"), Raw: raw}

	violations := engine.Validate(row)

	assert.Len(t, violations, 1)
	assert.Equal(t, models.RuleDecimal, violations[0].Kind)
	assert.Equal(t, "betAmount", violations[0].FieldName)
}

func TestRuleEngine_RawRowCapture(t *testing.T) {
	engine := NewRuleEngine(20)

	row := newValidCSVRow()
	row.Status = "invalid"
	violations := engine.Validate(row.rawRow(1))

	assert.Len(t, violations, 1)
	assert.Len(t, violations[0].RawRow, 20, "raw row capture is capped")
}

func TestRuleEngine_RawRowCaptureKeepsValidUTF8(t *testing.T) {
	engine := NewRuleEngine(20)

	// Multi-byte runes placed so a byte-indexed cut at 20 would land inside
	// one of them.
	row := newValidCSVRow()
	row.RoundID = "R" + strings.Repeat("é", 15)
	row.Status = "invalid"
	violations := engine.Validate(row.rawRow(1))

	require.NotEmpty(t, violations)
	for _, v := range violations {
		assert.True(t, utf8.ValidString(v.RawRow), "captured raw row must stay valid UTF-8: %q", v.RawRow)
		assert.LessOrEqual(t, len(v.RawRow), 20)
	}
}
