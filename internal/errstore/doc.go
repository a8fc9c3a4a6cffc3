// Package errstore tracks error records for a subject.
//
// # Overview
//
// A Store holds at most one live Record per (Code, SubjectID). Recording the
// same pair again replaces the record in place and refreshes its Time, so the
// store describes the current failures rather than a log of them.
//
// # Matching
//
// Codes can be queried exactly (HasCode, FindRecords, RemoveCode) or by
// pattern (HasCodePattern, FindRecordsByPattern, RemoveCodePattern). Patterns
// use ECMAScript regular expression semantics and match anywhere in the code:
//
//	s.RemoveCodePattern("A_404")   // removes "A_404" and "XA_404", keeps "AB_404"
//	s.RemoveCodePattern("^A_404$") // removes only "A_404"
//
// A pattern that fails to compile or times out is logged and treated as no
// match. The remaining patterns are still applied.
//
// # Equality
//
// Two records are equal when code, subject, time and status code match and
// both carry the same Cause value. A cause that was re-wrapped or re-created
// with the same message is a different error. DistinctErrorRecords and Purge
// both rely on this rule.
//
// # Notification
//
// Listeners registered with OnChange run synchronously after Put, RemoveCode,
// RemoveCodePattern, Clear and any Purge that changed the records. A panicking
// listener is recovered and logged. Dispose clears records and listeners
// without notifying anyone.
package errstore
