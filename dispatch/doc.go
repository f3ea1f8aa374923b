// Package dispatch streams a batch of commands to a machine.Link on a
// background goroutine.
//
// A Worker moves through Idle, Running, and one of the terminal states
// Completed, Cancelled, or Failed. Cancellation is cooperative: it is only
// honored between commands, so a command is either sent in full or not at
// all. On cancel the link is rolled back to the context of the previous
// command and told to interrupt the running program. A transport fault ends
// the run without rollback since the controller state is unknown.
//
// Progress is published to subscribers in command order; a slow subscriber
// never stalls the worker.
package dispatch
