/*
Package treedb implements an embedded ordered key-value store with
automatically maintained secondary indexes, layered on top of a
memory-mapped B+-tree engine (Bolt by default).

Data lives in named trees. Each tree is an ordered collection of opaque
byte keys and values, and may carry any number of secondary indexes. An
index maps keys extracted from values (by a user-supplied extractor
callback) back to the primary keys that produced them. Every insert,
update, upsert and delete maintains all of a tree's indexes inside the
same engine transaction, so the primary store and the indexes stay
mutually consistent under every failure mode: either the whole mutation
is visible after commit, or none of it is.

Index definitions survive restarts. A descriptor with persistence hooks
is recorded in a reserved metadata sub-database, and on reopen the
caller's index loader re-binds it to in-process extractor code through
the extractor registry.

Reads go through zero-copy iterators and callback-driven scans that
expose the engine's MVCC snapshots: any number of read-only transactions
run in parallel with a single writer.
*/
package treedb
