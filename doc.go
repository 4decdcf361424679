// Package crewflow compiles workflow graphs of agent crews into
// executable flow specifications and runs them in-process.
//
// A graph is a set of crew nodes, each carrying tasks, connected by edges
// that express scheduling dependencies: unconditional triggers, AND/OR
// joins, and conditional routers written in a small state-centric
// condition language. Compilation turns the graph into a serializable
// FlowSpecification; execution drives one instance of that specification
// to a terminal status, dispatching crew tasks through a pluggable
// executor and tracking shared flow state.
//
// # Core Concepts
//
// The crewflow programming model is intentionally small:
//
//  1. GraphBuilder
//  2. Compile
//  3. Runner / runtime
//  4. TaskExecutor
//  5. Observer
//
// # Graphs and Compilation
//
// GraphBuilder provides the ergonomic API for assembling nodes and edges;
// graphs built elsewhere (for example, deserialized from a visual editor)
// plug straight into Compile. Compilation is total: malformed fragments
// degrade into warnings on the CompileReport rather than errors, and the
// resulting specification always executes.
//
// # Execution
//
// The runtime schedules every starting point, then reacts to asynchronous
// task completions: join points (listeners) fire at most once when their
// condition is met, routers evaluate their condition against flow state
// merged with the completed task's output, and the run ends when no task
// remains in flight. Task failure fails the instance; cancellation stops
// new dispatches and drains what is already running.
//
// Task execution itself is delegated to a TaskExecutor. The worker
// package provides a function-backed executor with a goroutine pool and
// retry policies; custom executors can forward tasks to any agent
// backend.
//
// # Storage
//
// Instances, per-edge state writes and execution events can be kept in
// memory or persisted in SQLite. Both stores implement the same
// interfaces, so tests and deployments share one code path.
//
// # Observability
//
// Observers receive flow and task lifecycle callbacks. The package ships
// a structured-logging observer built on log/slog, a basic metrics
// collector, and a composite that fans out to several observers.
//
// See the package examples for typical usage.
package crewflow
