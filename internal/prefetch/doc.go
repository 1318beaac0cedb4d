// Package prefetch synthesizes upcoming pages in the background so they are
// cached before the reader reaches them. Work for a (page, rate) key is never
// duplicated: background tasks and foreground requests for the same key share
// one synthesis.
package prefetch
