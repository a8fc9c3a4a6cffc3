package errstore

import (
	"fmt"
	"reflect"
	"time"
)

// Record is one tracked failure, keyed by (Code, SubjectID).
type Record struct {
	// Code identifies the failure class, e.g. "Pipelines_Public_FetchPipeline_404".
	Code string
	// SubjectID identifies the object or request instance that failed.
	SubjectID string
	// Time is when the record was created or last replaced.
	Time time.Time
	// Cause is the underlying error, nil when none was supplied.
	Cause error
	// StatusCode is the protocol status associated with Cause, 0 when unknown.
	StatusCode int
}

// Equal reports whether two records are value-equal. Causes must be the same
// error value, not merely errors with the same message.
func (r Record) Equal(other Record) bool {
	return r.Code == other.Code &&
		r.SubjectID == other.SubjectID &&
		r.Time.Equal(other.Time) &&
		r.StatusCode == other.StatusCode &&
		sameCause(r.Cause, other.Cause)
}

func (r Record) String() string {
	if r.Cause == nil {
		return fmt.Sprintf("%s (%s)", r.Code, r.SubjectID)
	}
	return fmt.Sprintf("%s (%s): %v", r.Code, r.SubjectID, r.Cause)
}

func (r Record) key() recordKey {
	return recordKey{code: r.Code, subject: r.SubjectID}
}

type recordKey struct {
	code    string
	subject string
}

// sameCause compares causes by identity. Pointer-backed errors match only when
// they point at the same value; causes with non-comparable dynamic types never
// match.
func sameCause(a, b error) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	// Comparable struct types can still hold non-comparable interface fields.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// DistinctRecords returns the records in records with no value-equal
// counterpart in other.
func DistinctRecords(records, other []Record) []Record {
	var out []Record
	for _, rec := range records {
		found := false
		for _, o := range other {
			if rec.Equal(o) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, rec)
		}
	}
	return out
}

func equalRecords(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
