// Package logtail reads the end of sluice's own log file for display in the
// terminal UI.
//
// Read keeps a ring buffer of the last N lines, so memory stays bounded by N
// regardless of file size. A missing file is not an error; the UI simply has
// nothing to show yet.
//
// Tail additionally decodes each line as written by slog's JSON handler into
// an Entry. Lines that are not JSON are kept with the whole line as the
// message. Non-standard keys become Attrs, sorted by key.
package logtail
