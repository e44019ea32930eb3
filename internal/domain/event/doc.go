// Package event defines the immutable task-session event envelope, the closed
// set of event types, append-time normalization, and schema upcasting.
//
// Events are facts that have occurred, not commands or requests. Stored
// payloads may predate the current schema; the Upcaster migrates them on read
// so history is never rewritten.
package event
