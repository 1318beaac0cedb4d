// Package synth wraps text-to-speech engines behind a single client. The
// client short-circuits trivial text, rate-limits requests and converts engine
// failures into *Error values; it never retries.
package synth
