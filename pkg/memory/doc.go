// Package memory holds the per-session state of the canopy engine: the
// key/value and component store, the branching-element stack, the
// tree-executor stack, the cache and keyboard tables, message registries,
// role and language.
//
// A Memory is single-owner. The session runtime guarantees that only the
// worker draining a session touches its Memory, so no method synchronizes.
package memory
