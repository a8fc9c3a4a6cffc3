package model

import (
	"reflect"

	"github.com/mitchellh/hashstructure/v2"
)

// ModifiedFunc decides whether candidate counts as a change from current.
// current is nil before the first change has been accepted.
type ModifiedFunc[T any] func(candidate, current *Snapshot[T]) bool

// Field names a snapshot field that participates in modification checks.
type Field int

const (
	FieldStatus Field = iota
	FieldTask
	FieldRoute
	FieldData
	FieldErrors
)

// DefaultFields are compared when no field set is declared. Task is left out
// so a cleared task descriptor alone is never a change.
var DefaultFields = []Field{FieldStatus, FieldRoute, FieldData, FieldErrors}

// FieldsModified returns a policy that compares the given fields structurally.
// With no fields it uses DefaultFields.
func FieldsModified[T any](fields ...Field) ModifiedFunc[T] {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return func(candidate, current *Snapshot[T]) bool {
		if current == nil || candidate == nil {
			return candidate != current
		}
		for _, f := range fields {
			if !fieldEqual(f, candidate, current) {
				return true
			}
		}
		return false
	}
}

func fieldEqual[T any](f Field, a, b *Snapshot[T]) bool {
	switch f {
	case FieldStatus:
		return a.Status == b.Status
	case FieldTask:
		return a.Task == b.Task
	case FieldRoute:
		return a.Route.Equal(b.Route)
	case FieldData:
		return DeepEqual(a.Data, b.Data)
	case FieldErrors:
		return a.Errors.Equal(b.Errors)
	default:
		return true
	}
}

// DeepEqual compares two values by structural fingerprint, falling back to
// reflect.DeepEqual for values hashstructure cannot walk.
func DeepEqual(a, b any) bool {
	ha, errA := Fingerprint(a)
	hb, errB := Fingerprint(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return ha == hb
}

// Fingerprint returns a structural hash of v.
func Fingerprint(v any) (uint64, error) {
	return hashstructure.Hash(v, hashstructure.FormatV2, nil)
}
