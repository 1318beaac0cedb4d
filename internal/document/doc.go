// Package document provides indexed access to the text of a paginated
// document. Extraction happens either once up front (EagerStore) or on demand
// with memoization (LazyStore); both satisfy the same Store contract.
package document
