// Package dedupe remembers the result of an idempotent operation for a short
// window so retried requests carrying the same key get the same answer.
package dedupe
