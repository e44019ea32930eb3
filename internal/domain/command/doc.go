// Package command defines the command envelope and decision contract used
// across the write path.
//
// Commands express business intent from the adapter layer. They are the
// stable boundary before the task decider so that business rules are
// evaluated only against normalized inputs and the replayed stream state.
package command
