package entity

import (
	"errors"
	"fmt"
	"time"
)

// FieldType is the value type a schema field accepts
type FieldType string

const (
	// FieldString accepts string values
	FieldString FieldType = "string"
	// FieldNumber accepts integer and floating point values
	FieldNumber FieldType = "number"
	// FieldBool accepts boolean values
	FieldBool FieldType = "bool"
	// FieldStringList accepts lists of strings
	FieldStringList FieldType = "stringList"
)

// FieldDef describes one field of a kind's schema
type FieldDef struct {
	Name string
	Type FieldType
}

// ErrUnknownField is returned when an entity carries a field its schema does not define
var ErrUnknownField = errors.New("unknown field")

var schemas = map[Kind][]FieldDef{
	KindContact: {
		{Name: "firstName", Type: FieldString},
		{Name: "lastName", Type: FieldString},
		{Name: "email", Type: FieldString},
		{Name: "phone", Type: FieldString},
		{Name: "companyName", Type: FieldString},
		{Name: "source", Type: FieldString},
		{Name: "tags", Type: FieldStringList},
		{Name: "dnd", Type: FieldBool},
		{Name: "dateOfBirth", Type: FieldString},
	},
	KindOpportunity: {
		{Name: "name", Type: FieldString},
		{Name: "pipelineId", Type: FieldString},
		{Name: "pipelineStageId", Type: FieldString},
		{Name: "status", Type: FieldString},
		{Name: "contactId", Type: FieldString},
		{Name: "assignedTo", Type: FieldString},
		{Name: "monetaryValue", Type: FieldNumber},
	},
	KindCampaign: {
		{Name: "name", Type: FieldString},
		{Name: "status", Type: FieldString},
		{Name: "channel", Type: FieldString},
		{Name: "budget", Type: FieldNumber},
		{Name: "startDate", Type: FieldString},
		{Name: "endDate", Type: FieldString},
	},
}

// Schema returns the field definitions of a kind in canonical order
func Schema(kind Kind) []FieldDef {
	return schemas[kind]
}

// Keys returns the names of the fields present in f, in the schema order of kind
func (f Fields) Keys(kind Kind) []string {
	keys := make([]string, 0, len(f))
	for _, def := range schemas[kind] {
		if _, ok := f[def.Name]; ok {
			keys = append(keys, def.Name)
		}
	}
	return keys
}

func lookupField(kind Kind, name string) (FieldDef, bool) {
	for _, def := range schemas[kind] {
		if def.Name == name {
			return def, true
		}
	}
	return FieldDef{}, false
}

// Sanitize removes fields unknown to the entity's schema and normalizes
// values to their canonical Go types. Values that cannot be coerced are dropped.
func Sanitize(e *Entity) {
	if e == nil {
		return
	}
	for name, value := range e.Fields {
		def, ok := lookupField(e.Kind, name)
		if !ok {
			delete(e.Fields, name)
			delete(e.FieldModifiedAt, name)
			continue
		}
		normalized, err := coerce(def, value)
		if err != nil {
			delete(e.Fields, name)
			continue
		}
		e.Fields[name] = normalized
	}
}

// Validate checks the entity against its kind's schema
func Validate(e *Entity) error {
	if e == nil {
		return errors.New("entity is nil")
	}
	if _, ok := schemas[e.Kind]; !ok {
		return fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	if e.TenantID == "" {
		return errors.New("tenant id is required")
	}
	for name, value := range e.Fields {
		def, ok := lookupField(e.Kind, name)
		if !ok {
			return fmt.Errorf("%s.%s: %w", e.Kind, name, ErrUnknownField)
		}
		if _, err := coerce(def, value); err != nil {
			return fmt.Errorf("%s.%s: %w", e.Kind, name, err)
		}
	}
	return nil
}

func coerce(def FieldDef, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch def.Type {
	case FieldString:
		switch v := value.(type) {
		case string:
			return v, nil
		case time.Time:
			return v.UTC().Format(time.RFC3339), nil
		}
	case FieldNumber:
		if f, ok := toFloat(value); ok {
			return f, nil
		}
	case FieldBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case FieldStringList:
		if list, ok := toStringList(value); ok {
			return list, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", def.Type, value)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func toStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
