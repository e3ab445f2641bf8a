package iql

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FieldType categorizes fields for validation.
type FieldType int

const (
	FieldString FieldType = iota
	FieldEnum
	FieldPriority
	FieldDate
)

// Fields defines the queryable fields.
var Fields = map[string]FieldType{
	"key":      FieldString,
	"project":  FieldString,
	"type":     FieldEnum,
	"status":   FieldString,
	"priority": FieldPriority,
	"summary":  FieldString,
	"assignee": FieldString,
	"label":    FieldString,
	"parent":   FieldString,
	"epic":     FieldString,
	"created":  FieldDate,
	"updated":  FieldDate,
}

// nullableFields may be tested with IS [NOT] EMPTY.
var nullableFields = map[string]bool{
	"assignee": true,
	"label":    true,
	"parent":   true,
	"epic":     true,
}

// TypeValues are the valid values for the type field.
var TypeValues = map[string]bool{
	"epic":    true,
	"story":   true,
	"task":    true,
	"subtask": true,
	"bug":     true,
}

// PriorityRank orders priority names; a higher rank is more urgent.
var PriorityRank = map[string]int{
	"lowest":  1,
	"low":     2,
	"medium":  3,
	"high":    4,
	"highest": 5,
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
var relativeDate = regexp.MustCompile(`^-\d+[dhmw]$`)

// Validate checks a parsed query against the field definitions.
func Validate(query *Query) error {
	if query.Filter != nil {
		if err := validateExpr(query.Filter); err != nil {
			return err
		}
	}
	for _, term := range query.OrderBy {
		if _, ok := Fields[term.Field]; !ok || term.Field == "label" {
			return fmt.Errorf("cannot order by %q (valid: %s)", term.Field, orderFieldNames())
		}
	}
	return nil
}

func validateExpr(expr Expr) error {
	switch e := expr.(type) {
	case *BinaryExpr:
		if err := validateExpr(e.Left); err != nil {
			return err
		}
		return validateExpr(e.Right)
	case *NotExpr:
		return validateExpr(e.Expr)
	case *CompareExpr:
		return validateCompare(e)
	case *InExpr:
		return validateIn(e)
	case *EmptyExpr:
		if _, err := fieldType(e.Field); err != nil {
			return err
		}
		if !nullableFields[e.Field] {
			return fmt.Errorf("field %q is never empty", e.Field)
		}
	}
	return nil
}

func fieldType(field string) (FieldType, error) {
	ft, ok := Fields[field]
	if !ok {
		return 0, fmt.Errorf("unknown field: %q (valid: %s)", field, fieldNames())
	}
	return ft, nil
}

func validateCompare(e *CompareExpr) error {
	ft, err := fieldType(e.Field)
	if err != nil {
		return err
	}
	if err := validateOperator(e.Field, ft, e.Op); err != nil {
		return err
	}
	return validateValue(e.Field, ft, e.Value)
}

func validateIn(e *InExpr) error {
	ft, err := fieldType(e.Field)
	if err != nil {
		return err
	}
	if ft == FieldDate {
		return fmt.Errorf("operator IN is not valid for date field %q", e.Field)
	}
	for _, v := range e.Values {
		if err := validateValue(e.Field, ft, v); err != nil {
			return err
		}
	}
	return nil
}

func validateOperator(field string, ft FieldType, op TokenType) error {
	switch ft {
	case FieldEnum:
		if op != TokenEq && op != TokenNeq {
			return fmt.Errorf("operator %q is not valid for field %q (use = or !=)", op, field)
		}
	case FieldString:
		if op != TokenEq && op != TokenNeq && op != TokenContains && op != TokenNotContains {
			return fmt.Errorf("operator %q is not valid for field %q (use =, !=, ~, or !~)", op, field)
		}
	case FieldPriority, FieldDate:
		if op == TokenContains || op == TokenNotContains {
			return fmt.Errorf("operator %q is not valid for field %q", op, field)
		}
	}
	return nil
}

func validateValue(field string, ft FieldType, v Value) error {
	switch ft {
	case FieldEnum:
		if !TypeValues[strings.ToLower(v.String)] {
			return fmt.Errorf("invalid value %q for field %q (valid: %s)", v.Raw, field, joinKeys(TypeValues))
		}
	case FieldPriority:
		if _, ok := PriorityRank[strings.ToLower(v.String)]; !ok {
			return fmt.Errorf("invalid priority %q (valid: lowest, low, medium, high, highest)", v.Raw)
		}
	case FieldDate:
		ok := v.Type == ValueDate &&
			(v.String == "today" || v.String == "yesterday" || relativeDate.MatchString(v.String) || isoDate.MatchString(v.String))
		if !ok {
			return fmt.Errorf("field %q requires a date (today, yesterday, -Nd, -Nw, -Nh, -Nm or YYYY-MM-DD), got %q", field, v.Raw)
		}
	}
	return nil
}

func fieldNames() string {
	return joinKeys(Fields)
}

func orderFieldNames() string {
	names := make(map[string]bool)
	for name := range Fields {
		if name != "label" {
			names[name] = true
		}
	}
	return joinKeys(names)
}

func joinKeys[V any](m map[string]V) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
