// Package runtime provides process startup and shutdown orchestration for
// one or more state controllers sharing a process.
//
// The Service starts every registered controller's lifecycle loop as a
// sibling goroutine, starts the metrics HTTP server, and blocks until a
// shutdown signal arrives or a controller exits with a fatal error. On
// shutdown it cancels the shared context and waits (bounded by a timeout)
// for every controller's current iteration to finish before returning.
package runtime
