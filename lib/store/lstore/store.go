package lstore

import (
	"strconv"
	"sync/atomic"

	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

type record struct {
	value []byte
	etag  string
}

type storeImpl struct {
	records *xsync.MapOf[string, record]
	index   atomic.Uint64
	bytes   atomic.Int64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore() store.IStore {
	return &storeImpl{
		records: xsync.NewMapOf[string, record](),
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique ETag.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) ReadState(key string) ([]byte, string, bool, error) {
	r, ok := s.records.Load(key)
	if !ok {
		return nil, "", false, nil
	}
	return r.value, r.etag, true, nil
}

func (s *storeImpl) WriteState(key string, value []byte, etag string) (string, error) {
	var (
		newETag  string
		mismatch *store.Error
	)
	s.records.Compute(key, func(old record, loaded bool) (record, bool) {
		current := ""
		if loaded {
			current = old.etag
		}
		if current != etag {
			mismatch = store.NewError(store.RetCETagMismatch, "expected etag "+strconv.Quote(etag)+", current is "+strconv.Quote(current))
			return old, !loaded
		}
		newETag = strconv.FormatUint(s.incAndGetIndex(), 10)
		s.bytes.Add(int64(len(value) - len(old.value)))
		return record{value: append([]byte(nil), value...), etag: newETag}, false
	})
	if mismatch != nil {
		return "", mismatch
	}
	return newETag, nil
}

func (s *storeImpl) ClearState(key string, etag string) error {
	var mismatch *store.Error
	s.records.Compute(key, func(old record, loaded bool) (record, bool) {
		if !loaded {
			if etag != "" {
				mismatch = store.NewError(store.RetCETagMismatch, "record does not exist")
			}
			return old, true
		}
		if old.etag != etag {
			mismatch = store.NewError(store.RetCETagMismatch, "expected etag "+strconv.Quote(etag)+", current is "+strconv.Quote(old.etag))
			return old, false
		}
		s.bytes.Add(-int64(len(old.value)))
		return old, true
	})
	if mismatch != nil {
		return mismatch
	}
	return nil
}

func (s *storeImpl) GetInfo() (store.Info, error) {
	return store.Info{
		Type:     "lstore",
		Records:  uint64(s.records.Size()),
		Bytes:    uint64(s.bytes.Load()),
		LastETag: strconv.FormatUint(s.index.Load(), 10),
	}, nil
}
