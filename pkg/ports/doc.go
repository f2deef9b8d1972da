/*
Package ports defines the driven ports (interfaces) of the flowline engine.

These interfaces decouple the execution engine from external implementations,
allowing it to work with various storage backends and tool providers.

# Key Interfaces

  - GraphStore: Persists validated graphs (memory, SQLite, Redis).
  - RunStore: Persists run records and their execution logs.
  - ToolDispatcher: Invokes a named tool against a state snapshot.
  - DistributedLocker: Provides distributed locking for concurrent run access.
  - WorkflowService: The create/run/inspect surface consumed by transports.
*/
package ports
