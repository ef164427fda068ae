// Package store implements the per-dispatch result store: a keyed map from
// task ID to the value (or error) the task produced, with both polling and
// blocking retrieval. Results are published exactly once and are immutable
// afterwards, so repeated reads always return the same value.
package store
