// Package engine implements message dispatch and the single-writer loop that
// owns the state cache.
//
// ARCHITECTURE:
//
// Dispatcher:
// Pure-with-side-effects handlers, one per inbound message kind. A handler
// mutates the cache and journal and returns the ordered outbound messages for
// the originating session plus any queries to run. It never returns an error
// past its boundary; failures become error-flagged messages and log lines.
//
// Single-Writer Event Loop:
// Engine.Run processes inbound messages and query completions one at a time
// in a single goroutine. Confirmation and derived changes for one message are
// computed in one step, so no other session's change can interleave.
//
// Query Worker:
// Queries are the only suspension point. They are handed to one worker
// goroutine that runs them in FIFO order against the adapter and re-enqueues
// each completion to the loop. A hung query delays later queries, never cache
// reads or writes.
//
// Chains:
// A completion may fire a rule that issues another query. Each request carries
// its chain depth; requests beyond the configured limit are dropped with a
// ChainLimitError. Duplicate responses are not de-duplicated: every arrival
// re-fires its rule.
package engine
