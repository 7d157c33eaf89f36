package treedb

import "github.com/puzpuzpuz/xsync/v3"

// Extractor computes an index key from a value. ok reports whether the
// value should be indexed at all; when ok is false, sparse indexes skip
// the entry and non-sparse indexes reject the mutation. The returned
// key is only retained for the duration of the call.
type Extractor func(value []byte) (key []byte, ok bool)

// ExtractorID durably names an extractor function: the high 32 bits are
// a schema version, the low 32 bits a flag pattern. Persisted index
// descriptors record the id; the registry is the only way to recover
// executable behavior from it after a restart.
type ExtractorID uint64

// MakeExtractorID packs a schema version and a flag pattern.
func MakeExtractorID(version, flags uint32) ExtractorID {
	return ExtractorID(uint64(version)<<32 | uint64(flags))
}

func (id ExtractorID) Version() uint32 { return uint32(id >> 32) }
func (id ExtractorID) Flags() uint32   { return uint32(id) }

// SchemaVersion packs a major/minor pair into the 32-bit schema version
// used by extractor ids.
func SchemaVersion(major, minor uint16) uint32 {
	return uint32(major)<<16 | uint32(minor)
}

// extractorRegistry is a process-lifetime lookup table living inside a
// database handle, so multiple databases in one process don't share
// extractors.
type extractorRegistry struct {
	m *xsync.MapOf[uint64, Extractor]
}

func newExtractorRegistry() *extractorRegistry {
	return &extractorRegistry{m: xsync.NewMapOf[uint64, Extractor]()}
}

// set records the mapping; overwriting an existing id is refused.
func (r *extractorRegistry) set(id ExtractorID, fn Extractor) error {
	if fn == nil {
		return errf(InvalidArgument, nil, "nil extractor for id %#x", uint64(id))
	}
	if _, loaded := r.m.LoadOrStore(uint64(id), fn); loaded {
		return errf(InvalidArgument, nil, "extractor %#x is already registered", uint64(id))
	}
	return nil
}

func (r *extractorRegistry) get(id ExtractorID) (Extractor, bool) {
	return r.m.Load(uint64(id))
}
