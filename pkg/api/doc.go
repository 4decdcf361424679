// Package api contains the core building blocks shared by the crewflow
// compiler and execution runtime. It defines the authored graph model, the
// compiled flow specification wire contract, the collaborator interfaces,
// and the observability hooks.
//
// Most users interact with the higher-level crewflow package, which
// re-exports selected types and helpers from this package. The api package
// is intended for advanced use cases, custom integrations, or contributors
// extending the engine itself.
//
// # Graph Model
//
// The authored graph is a list of Nodes and Edges produced by an external
// authoring surface. A Node groups Tasks; an Edge carries the join, routing
// and state semantics of a transition (listen set, target set, logic type,
// optional router condition and state operations). The graph is handed to
// the compiler by value and never mutated.
//
// # Flow Specification
//
// FlowSpecification is the compiler's output and the runtime's only input:
// Listeners (join points), Actions (unconditional triggers), StartingPoints
// (entry tasks) and Routers (conditional gates). The document serializes as
// JSON and must remain stable across versions; it is immutable once
// produced and consumed exactly once per execution instance.
//
// # Collaborators
//
// The runtime delegates actual task execution to a TaskExecutor, which
// receives TaskRequests and delivers asynchronous TaskResults. Durable
// storage of flow state is delegated to the persistence collaborator via
// StateRecord values; both interfaces are fire-and-forget from the
// runtime's perspective.
//
// # Observability
//
// The Observer interface reports flow, task, listener and router lifecycle
// events. Ready-made implementations cover structured logging (log/slog),
// basic in-memory metrics, and fan-out composition.
package api
