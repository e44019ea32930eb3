// Package task implements the task-session decider: pure command validation
// (Decide) and state evolution (Fold, Replay, Apply) over the stream's event
// history. Nothing in this package performs I/O.
package task
