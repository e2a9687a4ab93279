/*
Package ports defines the driven ports (interfaces) for the canopy engine.

These interfaces decouple the session engine from its collaborators: the
expression language, the messaging platform client, role lookup, session
bootstrap and snapshot storage.

# Key Interfaces

  - Evaluator: Evaluates an expression against the current Env.
  - Performer: Performs an outbound call (send or edit a message, ...).
  - RoleResolver / Initializer: Run once when a session is created.
  - Fallback: Receives the events no element recognized.
  - MemoryStore: Persists and loads session snapshots.
  - DistributedLocker: Provides distributed locking for concurrent snapshot access.
*/
package ports
