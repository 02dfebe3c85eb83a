// Package dispatch implements the server-side message dispatch and
// replication protocol.
//
// One Dispatcher call handles one decoded operation end to end:
//
//  1. Acknowledge the transaction immediately, unblocking the sender's
//     pipeline before any work happens.
//  2. If the operation is flagged for replication and a passive is
//     attached, forward the raw frame to the passive through an
//     interlock and block until the passive has applied it. The
//     passive's state therefore reflects every replicated operation
//     before the active executes it.
//  3. Route the operation to the entity-management Handler.
//  4. Send exactly one completion, carrying the response payload or a
//     typed error, for the same transaction.
//
// Deferred operations (Fetch and the write-lock acquisitions) complete
// through a single-shot Completion handle instead of returning inline,
// which makes the suspension point explicit. Client-bound message types
// arriving here indicate a programming error and panic.
//
// @req RQ-0202
// @design DS-0202
package dispatch
