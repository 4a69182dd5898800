// Package sqllab exposes the read-only SQL surface. It is not a SQL
// engine: incoming statements are parsed just enough to reject anything
// other than a single SELECT, and result sets are capped.
package sqllab

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/chatlab/chatlab/internal/clerr"
)

// DefaultRowCap bounds result sets unless the caller lowers it.
const DefaultRowCap = 1000

// Result is the outcome of one query.
type Result struct {
	Columns  []string        `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	RowCount int             `json:"rowCount"`
	Duration time.Duration   `json:"duration"`
	Limited  bool            `json:"limited"`
}

// forbidden lists verbs that can never open a read-only statement, checked
// after comment stripping so "/* */ DROP" doesn't sneak through.
var forbidden = []string{
	"insert", "update", "delete", "drop", "create", "alter", "replace",
	"attach", "detach", "pragma", "vacuum", "reindex", "begin", "commit",
	"rollback", "savepoint", "release",
}

// Validate rejects everything but a single SELECT (or WITH ... SELECT)
// statement.
func Validate(query string) error {
	stripped := stripComments(query)
	trimmed := strings.TrimSpace(stripped)
	if trimmed == "" {
		return clerr.New(clerr.KindParseStructural, "empty query")
	}

	// A trailing semicolon is fine; an interior one means multiple
	// statements.
	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.Contains(trimmed, ";") {
		return clerr.New(clerr.KindParseStructural, "only a single statement is allowed")
	}

	lower := strings.ToLower(trimmed)
	first := firstWord(lower)
	if first != "select" && first != "with" {
		return clerr.New(clerr.KindParseStructural, "only SELECT statements are allowed")
	}

	// A WITH prelude must still resolve to a SELECT, and no statement may
	// smuggle a write verb at statement position. Verbs inside string
	// literals are excluded by scrubbing them first.
	scrubbed := scrubStringLiterals(lower)
	if first == "with" && !strings.Contains(scrubbed, "select") {
		return clerr.New(clerr.KindParseStructural, "only SELECT statements are allowed")
	}
	for _, verb := range forbidden {
		if containsWord(scrubbed, verb) {
			return clerr.New(clerr.KindParseStructural, "statement %q is not allowed in the SQL lab", verb)
		}
	}
	return nil
}

// Query validates and executes a read-only query against the corpus store,
// capping rows at rowCap (DefaultRowCap when <= 0).
func Query(ctx context.Context, db *sql.DB, query string, rowCap int) (*Result, error) {
	if err := Validate(query); err != nil {
		return nil, err
	}
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, clerr.Wrap(clerr.KindParseStructural, "execute query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		if len(res.Rows) >= rowCap {
			res.Limited = true
			break
		}
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range raw {
			if b, ok := v.([]byte); ok {
				raw[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.RowCount = len(res.Rows)
	res.Duration = time.Since(start)
	return res, nil
}

// stripComments removes -- line comments and /* */ block comments.
func stripComments(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "--") {
			if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
				i += nl + 1
				sb.WriteByte(' ')
				continue
			}
			break
		}
		if strings.HasPrefix(s[i:], "/*") {
			if end := strings.Index(s[i+2:], "*/"); end >= 0 {
				i += end + 4
				sb.WriteByte(' ')
				continue
			}
			break
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}

// scrubStringLiterals blanks out the contents of '...' and "..." literals.
func scrubStringLiterals(s string) string {
	var sb strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
				sb.WriteByte(c)
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// containsWord reports whether word appears in s bounded by non-letter
// characters.
func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(s[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(s) || !isWordByte(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
