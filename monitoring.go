package treedb

// TreeStats aggregates storage statistics for a tree's primary
// sub-database and all of its index sub-databases.
type TreeStats struct {
	Name       string
	Rows       int64
	IndexRows  int64
	DataSize   int64
	DataAlloc  int64
	IndexSize  int64
	IndexAlloc int64
}

// DBStats is a snapshot of database-wide activity counters plus the
// engine's own statistics.
type DBStats struct {
	Engine             EngineStat
	MapSize            int64
	ReaderCount        int64
	WriterCount        int64
	PendingWriterCount int64
	ReadCount          uint64
	WriteCount         uint64
}

// Stats gathers storage statistics for the tree in a read transaction.
func (t *Tree) Stats() (TreeStats, error) {
	st := TreeStats{Name: t.name, Rows: t.Count()}
	err := t.db.View(func(txn *Txn) error {
		b, err := txn.treeBucket(t)
		if err != nil {
			return err
		}
		bs := b.Stats()
		st.DataSize = bs.LeafInuse
		st.DataAlloc = bs.TotalAlloc()

		for _, desc := range t.indexes {
			ib, err := txn.indexBucket(t, desc)
			if err != nil {
				return err
			}
			ibs := ib.Stats()
			st.IndexRows += int64(ibs.KeyN)
			st.IndexSize += ibs.LeafInuse
			st.IndexAlloc += ibs.TotalAlloc()
		}
		return nil
	})
	if err != nil {
		return TreeStats{}, err
	}
	return st, nil
}

// Stats returns database-wide counters together with the engine's
// statistics.
func (db *DB) Stats() (DBStats, error) {
	est, err := db.Stat()
	if err != nil {
		return DBStats{}, err
	}
	return DBStats{
		Engine:             est,
		MapSize:            db.MapSize(),
		ReaderCount:        db.ReaderCount.Load(),
		WriterCount:        db.WriterCount.Load(),
		PendingWriterCount: db.PendingWriterCount.Load(),
		ReadCount:          db.ReadCount.Load(),
		WriteCount:         db.WriteCount.Load(),
	}, nil
}
