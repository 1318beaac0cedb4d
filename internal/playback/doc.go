// Package playback coordinates navigation, cache lookups, prefetch and
// auto-advance for one loaded document. A Controller owns the single mutable
// Session; every command returns a Snapshot the UI redraws from.
package playback
