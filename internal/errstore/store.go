package errstore

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Listener is notified after every mutation with the store that changed.
type Listener func(s *Store)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Store is an ordered registry of error records with change notification.
// The zero value is ready to use.
type Store struct {
	mu        sync.RWMutex
	records   []Record
	listeners []listenerEntry
	nextID    uint64
	disposed  bool

	now          func() time.Time
	logger       *slog.Logger
	matchTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger for pattern and listener failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMatchTimeout bounds how long a single pattern may run against a code.
func WithMatchTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.matchTimeout = d
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Store) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Store) timeout() time.Duration {
	if s.matchTimeout > 0 {
		return s.matchTimeout
	}
	return defaultMatchTimeout
}

// Record stores a failure for (code, subjectID) without a status code.
func (s *Store) Record(code, subjectID string, cause error) {
	s.Put(Record{Code: code, SubjectID: subjectID, Cause: cause})
}

// RecordStatus stores a failure for (code, subjectID) with a protocol status.
func (s *Store) RecordStatus(code, subjectID string, cause error, statusCode int) {
	s.Put(Record{Code: code, SubjectID: subjectID, Cause: cause, StatusCode: statusCode})
}

// Put inserts rec, replacing any live record with the same code and subject in
// place. The record's Time is always set to the current time. Records without
// a code or subject are ignored.
func (s *Store) Put(rec Record) {
	if s == nil {
		return
	}
	if rec.Code == "" || rec.SubjectID == "" {
		s.log().Debug("ignoring error record without code or subject",
			slog.String("code", rec.Code),
			slog.String("subject", rec.SubjectID),
		)
		return
	}
	rec.Time = s.clock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	key := rec.key()
	idx := slices.IndexFunc(s.records, func(r Record) bool { return r.key() == key })
	if idx >= 0 {
		s.records[idx] = rec
	} else {
		s.records = append(s.records, rec)
	}
	s.mu.Unlock()

	s.notify()
}

// RemoveCode drops every record whose code equals one of codes. Listeners are
// notified even when nothing matched.
func (s *Store) RemoveCode(codes ...string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.records = slices.DeleteFunc(s.records, func(r Record) bool {
		return slices.Contains(codes, r.Code)
	})
	s.mu.Unlock()

	s.notify()
}

// RemoveCodePattern drops every record whose code contains a match for one of
// patterns. Invalid patterns are logged and skipped. Listeners are notified
// even when nothing matched.
func (s *Store) RemoveCodePattern(patterns ...string) {
	if s == nil {
		return
	}
	res, errs := compilePatterns(patterns, s.timeout())

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.records = slices.DeleteFunc(s.records, func(r Record) bool {
		ok, matchErrs := matchAny(res, r.Code)
		errs = append(errs, matchErrs...)
		return ok
	})
	s.mu.Unlock()

	s.logPatternErrors("remove", errs)
	s.notify()
}

// HasCode reports whether any record has one of codes.
func (s *Store) HasCode(codes ...string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.records, func(r Record) bool {
		return slices.Contains(codes, r.Code)
	})
}

// HasCodePattern reports whether any record's code matches one of patterns.
func (s *Store) HasCodePattern(patterns ...string) bool {
	if s == nil {
		return false
	}
	records := s.Records()
	res, errs := compilePatterns(patterns, s.timeout())
	found := false
	for _, re := range res {
		for _, rec := range records {
			ok, err := matchPattern(re, rec.Code)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	s.logPatternErrors("has", errs)
	return found
}

// FindRecords returns the records for each code in turn, in store order.
func (s *Store) FindRecords(codes ...string) []Record {
	records := s.Records()
	var out []Record
	for _, code := range codes {
		for _, rec := range records {
			if rec.Code == code {
				out = append(out, rec)
			}
		}
	}
	return out
}

// FindRecordsByPattern returns the matches for each pattern in turn, in store
// order. A record matching several patterns appears once per pattern.
func (s *Store) FindRecordsByPattern(patterns ...string) []Record {
	if s == nil {
		return nil
	}
	res, errs := compilePatterns(patterns, s.timeout())
	records := s.Records()
	var out []Record
	for _, re := range res {
		for _, rec := range records {
			ok, err := matchPattern(re, rec.Code)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				out = append(out, rec)
			}
		}
	}
	s.logPatternErrors("find", errs)
	return out
}

// DistinctErrorRecords returns every record in the store with no value-equal
// counterpart in other.
func (s *Store) DistinctErrorRecords(other []Record) []Record {
	return DistinctRecords(s.Records(), other)
}

// Purge replaces the store's records with a copy of other's. When both stores
// already hold equal records nothing changes and no listener runs.
func (s *Store) Purge(other *Store) {
	if s == nil || s == other {
		return
	}
	incoming := other.Records()

	s.mu.Lock()
	if s.disposed || equalRecords(s.records, incoming) {
		s.mu.Unlock()
		return
	}
	s.records = incoming
	s.mu.Unlock()

	s.notify()
}

// Clear removes every record and notifies listeners.
func (s *Store) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.records = nil
	s.mu.Unlock()

	s.notify()
}

// OnChange registers fn to run after every mutation. A nil fn is ignored. The
// returned function removes the listener.
func (s *Store) OnChange(fn Listener) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l listenerEntry) bool { return l.id == id })
	}
}

// Dispose drops all records and listeners. Later mutations are ignored.
func (s *Store) Dispose() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.listeners = nil
	s.disposed = true
}

// IsDisposed reports whether Dispose has been called.
func (s *Store) IsDisposed() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// Equal reports whether both stores hold pairwise value-equal records in the
// same order.
func (s *Store) Equal(other *Store) bool {
	if s == other {
		return true
	}
	return equalRecords(s.Records(), other.Records())
}

// Records returns a copy of the records in store order.
func (s *Store) Records() []Record {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Len returns the number of records.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clone returns a store with the same records and options but no listeners.
func (s *Store) Clone() *Store {
	if s == nil {
		return New()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Store{
		records:      slices.Clone(s.records),
		now:          s.now,
		logger:       s.logger,
		matchTimeout: s.matchTimeout,
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		s.invokeListener(l.fn)
	}
}

func (s *Store) invokeListener(fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error("error store listener panicked", slog.Any("panic", r))
		}
	}()
	fn(s)
}

func (s *Store) logPatternErrors(op string, errs []error) {
	for _, err := range errs {
		s.log().Warn("error store pattern skipped",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}
