// Package process implements one simulated server process.
//
// A Process owns the entity table, the per-entity locks and the storage
// registry for one node of the simulated stripe. It implements the
// dispatch Handler contract for local execution and the Passive contract
// for receiving replicated operations from an upstream active.
//
// All entity state is confined to a single message-processing goroutine,
// mirroring the single-threaded execution model entities are written
// against: an entity never observes two platform calls at once.
//
// @design DS-0302
package process
