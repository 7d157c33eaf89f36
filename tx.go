package treedb

import "runtime/debug"

// Txn wraps an engine transaction. A read-only Txn sees the MVCC
// snapshot taken at begin (or last Renew) time; a writable Txn is
// serialized by the engine's single-writer lock. A Txn must only be
// used by one goroutine at a time.
type Txn struct {
	db       *DB
	etx      EngineTx
	readonly bool
	done     bool
	inReset  bool

	countDeltas map[*Tree]int64
}

// Begin starts a read-only or read-write transaction. Read-write
// transactions block until the engine's write lock is available.
func (db *DB) Begin(writable bool) (*Txn, error) {
	if writable {
		db.PendingWriterCount.Add(1)
	}
	etx, err := db.eng.BeginTx(writable)
	if writable {
		db.PendingWriterCount.Add(-1)
	}
	if err != nil {
		return nil, translateEngineErr(err, "beginning %s transaction", txKind(writable))
	}
	if writable {
		db.WriterCount.Add(1)
	} else {
		db.ReaderCount.Add(1)
	}
	return &Txn{db: db, etx: etx, readonly: !writable}, nil
}

func txKind(writable bool) string {
	if writable {
		return "write"
	}
	return "read"
}

func (txn *Txn) IsReadOnly() bool { return txn.readonly }

func (txn *Txn) DB() *DB { return txn.db }

// Commit makes the transaction's changes durable and consumes the
// handle. Committing a read-only transaction just releases its
// snapshot.
func (txn *Txn) Commit() error {
	if txn.done {
		return errf(InvalidArgument, nil, "transaction already finished")
	}
	txn.finish()
	if txn.etx == nil { // reset read-only txn
		return nil
	}
	if txn.readonly {
		ensure(txn.etx.Rollback())
		return nil
	}
	if err := txn.etx.Commit(); err != nil {
		txn.etx.Rollback()
		return translateEngineErr(err, "committing transaction")
	}
	for tree, delta := range txn.countDeltas {
		tree.count.Add(delta)
	}
	txn.db.WriteCount.Add(1)
	return nil
}

// Abort discards all of the transaction's work and consumes the handle.
func (txn *Txn) Abort() {
	if txn.done {
		return
	}
	txn.finish()
	if txn.etx != nil {
		ensure(txn.etx.Rollback())
	}
}

func (txn *Txn) finish() {
	txn.done = true
	if txn.readonly {
		txn.db.ReaderCount.Add(-1)
	} else {
		txn.db.WriterCount.Add(-1)
	}
}

// Reset releases a read-only transaction's snapshot while keeping the
// handle for later Renew. Illegal on a write transaction.
func (txn *Txn) Reset() error {
	if txn.done {
		return errf(InvalidArgument, nil, "transaction already finished")
	}
	if !txn.readonly {
		return errf(InvalidArgument, nil, "cannot reset a write transaction")
	}
	if txn.inReset {
		return nil
	}
	ensure(txn.etx.Rollback())
	txn.etx = nil
	txn.inReset = true
	return nil
}

// Renew re-acquires a snapshot for a transaction released by Reset.
func (txn *Txn) Renew() error {
	if txn.done {
		return errf(InvalidArgument, nil, "transaction already finished")
	}
	if !txn.readonly {
		return errf(InvalidArgument, nil, "cannot renew a write transaction")
	}
	if !txn.inReset {
		return errf(InvalidArgument, nil, "transaction is not reset")
	}
	etx, err := txn.db.eng.BeginTx(false)
	if err != nil {
		return translateEngineErr(err, "renewing read transaction")
	}
	txn.etx = etx
	txn.inReset = false
	return nil
}

func (txn *Txn) usable() error {
	if txn.done {
		return errf(InvalidArgument, nil, "transaction already finished")
	}
	if txn.inReset {
		return errf(InvalidArgument, nil, "transaction is reset; call Renew first")
	}
	return nil
}

func (txn *Txn) requireWritable() error {
	if err := txn.usable(); err != nil {
		return err
	}
	if txn.readonly {
		return errf(InvalidArgument, nil, "write operation on a read-only transaction")
	}
	return nil
}

func (txn *Txn) bucket(name string) (Bucket, error) {
	b := txn.etx.Bucket(name)
	if b == nil {
		return nil, errf(NotFound, nil, "sub-database %q does not exist", name)
	}
	return b, nil
}

func (txn *Txn) treeBucket(t *Tree) (Bucket, error) {
	b := txn.etx.Bucket(t.name)
	if b == nil {
		return nil, treeErrf(t.name, "", Generic, nil, "primary sub-database is missing")
	}
	return b, nil
}

func (txn *Txn) indexBucket(t *Tree, desc *indexDescriptor) (Bucket, error) {
	b := txn.etx.Bucket(desc.bucket)
	if b == nil {
		return nil, treeErrf(t.name, desc.name, IndexError, nil, "index sub-database is missing")
	}
	return b, nil
}

// bumpCount accumulates an entry-count delta; deltas are applied to the
// tree's cached count only when the transaction commits, so an aborted
// transaction leaves the count untouched.
func (txn *Txn) bumpCount(t *Tree, delta int64) {
	if txn.countDeltas == nil {
		txn.countDeltas = make(map[*Tree]int64, 4)
	}
	txn.countDeltas[t] += delta
}

// View runs f in a read-only transaction.
func (db *DB) View(f func(txn *Txn) error) error {
	txn, err := db.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Abort()
	if err := safelyCall(f, txn); err != nil {
		return err
	}
	db.ReadCount.Add(1)
	return nil
}

// Update runs f in a write transaction, committing when f returns nil
// and aborting otherwise.
func (db *DB) Update(f func(txn *Txn) error) error {
	txn, err := db.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Abort()
	if err := safelyCall(f, txn); err != nil {
		return err
	}
	return txn.Commit()
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return "panic: " + stringify(p.reason) + "\n\n" + p.stack
}

func stringify(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unexpected panic value"
}

func safelyCall(fn func(*Txn) error, txn *Txn) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(txn)
}
