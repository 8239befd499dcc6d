package model

import "time"

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindText
	KindNumber
	KindDate
	KindPeople
	KindOptions
	KindCheckbox
	KindRelation
)

func (k ValueKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindPeople:
		return "people"
	case KindOptions:
		return "options"
	case KindCheckbox:
		return "checkbox"
	case KindRelation:
		return "relation"
	}
	return "empty"
}

// Person is a user reference carried by a people property.
type Person struct {
	ID    string
	Name  string
	Email string
}

// Value is a vendor property value normalized into a small tagged variant.
// Only the field matching Kind is meaningful.
type Value struct {
	Kind      ValueKind
	Text      string
	Number    float64
	Date      *time.Time
	People    []Person
	Options   []string
	Checked   bool
	Relations []string
}

// Text returns a text value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// Date returns a date value; a nil t yields an empty value.
func Date(t *time.Time) Value {
	if t == nil {
		return Value{}
	}
	return Value{Kind: KindDate, Date: t}
}

// People returns a people value.
func People(p ...Person) Value { return Value{Kind: KindPeople, People: p} }

// Options returns a multi-option value.
func Options(o ...string) Value { return Value{Kind: KindOptions, Options: o} }

// Checkbox returns a boolean value.
func Checkbox(b bool) Value { return Value{Kind: KindCheckbox, Checked: b} }

// Relation returns a relation value.
func Relation(ids ...string) Value { return Value{Kind: KindRelation, Relations: ids} }

// Record is one vendor row with its system timestamps and named properties.
type Record struct {
	ID             string
	CreatedAt      *time.Time
	LastModifiedAt *time.Time
	Archived       bool
	ParentID       string
	Properties     map[string]Value
}
