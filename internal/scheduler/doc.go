// Package scheduler provides a debounced write scheduler keyed by string.
//
// # Overview
//
// Rapid Schedule calls for the same key coalesce into a single delayed
// write: only the most recent WriteFunc submitted before the delay elapses
// ever executes. Different keys are independent and may execute
// concurrently.
//
// # Coalescing
//
// Each key carries a monotonic generation counter. Schedule bumps the
// generation and arms a timer that captures it; when the timer fires it
// re-checks the captured generation under the lock and bails if a newer
// Schedule or a Cancel superseded it. Cancel is therefore synchronous and
// immediate: once it returns, the cancelled write can no longer run.
//
// # What the scheduler does not do
//
// It gives no ordering guarantee across keys, and it does not prevent a
// caller from scheduling a new write for a key while a previous write for
// that key is still in flight. Callers that need create-then-update
// semantics (the journal draft coordinator) enforce that themselves.
package scheduler
