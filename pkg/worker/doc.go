// Package worker provides the function-backed task executor used to run
// crew tasks for crewflow executions.
//
// The executor consumes dispatches from a task queue, runs the Go function
// registered for each task id on a pool of goroutines, applies retry
// policies, and delivers each result back to the execution runtime through
// the dispatch callback.
//
// # Executor Responsibilities
//
// A FuncExecutor is responsible for:
//
//   - Accepting dispatches from running flow executions
//   - Routing each dispatch to the function registered for its task id
//   - Applying per-task retry policies with linear backoff
//   - Delivering exactly one result per accepted dispatch
//
// Executors are long-lived components. One executor can serve many
// concurrent flow executions; concurrency is controlled by the number of
// worker goroutines started.
//
// # Lifecycle
//
// The executor's lifecycle is independent of any single flow run. A
// cancelled execution stops producing new dispatches, but tasks already
// accepted keep running and report their results, which the runtime drains
// during shutdown. Stop shuts the pool down after in-flight tasks finish.
//
// # Integration
//
// FuncExecutor implements the api.TaskExecutor interface the runtime
// dispatches through. Applications that run crew tasks elsewhere (a remote
// service, a container fleet) can implement api.TaskExecutor directly and
// skip this package.
//
// Most users construct executors via helpers in the crewflow package,
// which wire the executor, runtime, and observers together with sensible
// defaults.
package worker
