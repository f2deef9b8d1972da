/*
Package domain contains the core domain models of the flowline engine.

It defines the immutable graph definition (nodes, edges, node configurations),
the dynamically shaped State threaded through a run, and the Run record with
its append-only execution log. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Graph: Validated, immutable set of nodes and edges with one start node.
  - NodeConfig: Behavior of a node (normal, conditional or loop) and its tool.
  - Edge: Simple (single target) or conditional (expression plus two targets).
  - State: JSON-shaped key/value data owned by exactly one run.
  - Run: Per-execution record holding status, state and the execution log.
*/
package domain
