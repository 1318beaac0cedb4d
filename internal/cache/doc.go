// Package cache holds synthesized page audio in memory, keyed by page and
// speaking rate. Retention follows an explicit policy: a sliding window
// around the current page, or unbounded, each with an optional byte
// ceiling. Stored audio may be zstd-compressed.
package cache
