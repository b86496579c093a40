// Package loaders contains the built-in bootstrap loaders: the single-instance
// guard, the main window and the application lifecycle wiring. Each loader is
// registered with bootstrap.Orchestrator.Use and runs once on the event loop.
package loaders
