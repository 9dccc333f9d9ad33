package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// WhereClause represents a parsed --where condition
type WhereClause struct {
	Field    string
	Operator string
	Value    string
	regex    *regexp.Regexp // Compiled regex for ~ and !~ operators
}

// ParseWhereClause parses a where clause like "action=failed" or "screen_id~^Home"
// Supported operators: =, !=, ~, !~, >=, <=, ^, $
func ParseWhereClause(clause string) (*WhereClause, error) {
	// Longest first to avoid partial matches
	operators := []string{"!~", ">=", "<=", "!=", "~", "=", "^", "$"}

	for _, op := range operators {
		idx := strings.Index(clause, op)
		if idx > 0 {
			field := strings.ToLower(strings.TrimSpace(clause[:idx]))
			value := strings.TrimSpace(clause[idx+len(op):])

			if field == "" || value == "" {
				return nil, fmt.Errorf("invalid where clause: %s", clause)
			}

			wc := &WhereClause{
				Field:    field,
				Operator: op,
				Value:    value,
			}

			if op == "~" || op == "!~" {
				re, err := regexp.Compile(value)
				if err != nil {
					return nil, fmt.Errorf("invalid regex in where clause '%s': %w", clause, err)
				}
				wc.regex = re
			}
			if op == ">=" || op == "<=" {
				if _, err := strconv.ParseInt(value, 10, 64); err != nil {
					return nil, fmt.Errorf("where clause '%s': %s needs a number", clause, op)
				}
			}

			return wc, nil
		}
	}

	return nil, fmt.Errorf("no valid operator found in where clause: %s (use =, !=, ~, !~, >=, <=, ^, $)", clause)
}

// Match checks if a record matches this where clause
func (wc *WhereClause) Match(rec interface{}) bool {
	return wc.matchFields(Fields(rec))
}

func (wc *WhereClause) matchFields(fields map[string]string) bool {
	fieldValue, ok := fields[wc.Field]

	switch wc.Operator {
	case "=":
		return fieldValue == wc.Value
	case "!=":
		return fieldValue != wc.Value
	case "~":
		return wc.regex.MatchString(fieldValue)
	case "!~":
		return !wc.regex.MatchString(fieldValue)
	case "^":
		return strings.HasPrefix(fieldValue, wc.Value)
	case "$":
		return strings.HasSuffix(fieldValue, wc.Value)
	case ">=", "<=":
		if !ok {
			return false
		}
		return wc.compareNumber(fieldValue)
	}

	return false
}

// compareNumber handles >= and <= for numeric fields (version, attempt, failures)
func (wc *WhereClause) compareNumber(fieldValue string) bool {
	got, err := strconv.ParseInt(fieldValue, 10, 64)
	if err != nil {
		return false
	}
	want, _ := strconv.ParseInt(wc.Value, 10, 64)
	if wc.Operator == ">=" {
		return got >= want
	}
	return got <= want
}

// WhereFilter is a filter that applies multiple where clauses (AND logic)
type WhereFilter struct {
	clauses []*WhereClause
}

// NewWhereFilter creates a filter from multiple where clause strings.
// No clauses yields a nil filter, which matches everything.
func NewWhereFilter(whereClauses []string) (*WhereFilter, error) {
	if len(whereClauses) == 0 {
		return nil, nil
	}

	filter := &WhereFilter{}
	for _, clause := range whereClauses {
		wc, err := ParseWhereClause(clause)
		if err != nil {
			return nil, err
		}
		filter.clauses = append(filter.clauses, wc)
	}

	return filter, nil
}

// Match returns true if the record matches ALL where clauses
func (f *WhereFilter) Match(rec interface{}) bool {
	if f == nil {
		return true
	}
	fields := Fields(rec)
	for _, clause := range f.clauses {
		if !clause.matchFields(fields) {
			return false
		}
	}
	return true
}
