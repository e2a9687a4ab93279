/*
Package session implements the session registry and snapshot persistence.

The Registry maps each Identity to a live session actor, creates sessions on
first contact and schedules their mailbox drains on a shared bounded pool.
At most one worker drains a given session at a time; independent sessions
run in parallel.

The Manager persists session snapshots through a ports.MemoryStore,
serializing access per identity with reference-counted local locks and an
optional ports.DistributedLocker for multi-replica deployments.
*/
package session
