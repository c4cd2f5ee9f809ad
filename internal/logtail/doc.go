// Package logtail reads the tail of the starwatch log file for the in-app
// log view.
//
// The file is scanned once per call with a fixed-size ring buffer, so memory
// stays bounded by maxLines regardless of file size. Lines written by the
// JSON logger are decoded into Entry values; anything else (a crash trace,
// a console-format line) is passed through in Entry.Raw.
package logtail
