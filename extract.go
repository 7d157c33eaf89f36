package treedb

import (
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackFieldExtractor builds an Extractor that indexes one top-level
// field of msgpack-encoded map values. Missing fields, empty string or
// bytes values, and undecodable values are not indexed, which makes
// the extractor a natural fit for sparse indexes.
func MsgpackFieldExtractor(field string) Extractor {
	return func(value []byte) ([]byte, bool) {
		var m map[string]any
		if err := msgpack.Unmarshal(value, &m); err != nil {
			return nil, false
		}
		raw, found := m[field]
		if !found {
			return nil, false
		}
		switch v := raw.(type) {
		case string:
			if v == "" {
				return nil, false
			}
			return []byte(v), true
		case []byte:
			if len(v) == 0 {
				return nil, false
			}
			return v, true
		default:
			key, err := msgpack.Marshal(raw)
			if err != nil {
				return nil, false
			}
			return key, true
		}
	}
}

// MsgpackPersistence serializes index user data with msgpack for
// storage in the metadata records.
func MsgpackPersistence() *Persistence {
	return &Persistence{
		Marshal: func(userData any) ([]byte, error) {
			if userData == nil {
				return nil, nil
			}
			return msgpack.Marshal(userData)
		},
		Unmarshal: func(data []byte) (any, error) {
			if len(data) == 0 {
				return nil, nil
			}
			var v any
			if err := msgpack.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}
