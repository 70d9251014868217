package testing

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dLV/lib/store"
)

// StoreFactory is a function that creates a new, empty instance of an IStore implementation
type StoreFactory func() store.IStore

// RunStoreTests runs the test suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Create&Read", func(t *testing.T) {
			testCreateRead(t, factory())
		})

		t.Run("Update", func(t *testing.T) {
			testUpdate(t, factory())
		})

		t.Run("ETagMismatch", func(t *testing.T) {
			testETagMismatch(t, factory())
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory())
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCreateRead(t *testing.T, s store.IStore) {
	_, _, found, err := s.ReadState("missing")
	if err != nil {
		t.Fatalf("ReadState failed: %v", err)
	}
	if found {
		t.Fatal("expected missing record not to be found")
	}

	etag, err := s.WriteState("key", []byte("value"), "")
	if err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}
	if etag == "" {
		t.Fatal("expected a non empty etag")
	}

	value, readETag, found, err := s.ReadState("key")
	if err != nil || !found {
		t.Fatalf("ReadState failed: found=%v err=%v", found, err)
	}
	if !bytes.Equal(value, []byte("value")) {
		t.Errorf("expected value %q, got %q", "value", value)
	}
	if readETag != etag {
		t.Errorf("expected etag %q, got %q", etag, readETag)
	}
}

func testUpdate(t *testing.T, s store.IStore) {
	etag, err := s.WriteState("key", []byte("v1"), "")
	if err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}

	seen := map[string]bool{etag: true}
	for i := 2; i <= 10; i++ {
		value := []byte(fmt.Sprintf("v%d", i))
		etag, err = s.WriteState("key", value, etag)
		if err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
		if seen[etag] {
			t.Fatalf("etag %q was issued twice", etag)
		}
		seen[etag] = true
	}

	value, readETag, _, err := s.ReadState("key")
	if err != nil {
		t.Fatalf("ReadState failed: %v", err)
	}
	if string(value) != "v10" || readETag != etag {
		t.Errorf("unexpected record %q / %q", value, readETag)
	}
}

func testETagMismatch(t *testing.T, s store.IStore) {
	etag, err := s.WriteState("key", []byte("v1"), "")
	if err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}

	// creating an existing record fails
	if _, err := s.WriteState("key", []byte("v2"), ""); !store.IsETagMismatch(err) {
		t.Errorf("expected etag mismatch when creating existing record, got %v", err)
	}
	// writing with a wrong etag fails
	if _, err := s.WriteState("key", []byte("v2"), etag+"x"); !store.IsETagMismatch(err) {
		t.Errorf("expected etag mismatch for wrong etag, got %v", err)
	}
	// updating a missing record fails
	if _, err := s.WriteState("other", []byte("v2"), etag); !store.IsETagMismatch(err) {
		t.Errorf("expected etag mismatch for missing record, got %v", err)
	}

	value, readETag, _, _ := s.ReadState("key")
	if string(value) != "v1" || readETag != etag {
		t.Errorf("failed writes must not change the record, got %q / %q", value, readETag)
	}
	if _, _, found, _ := s.ReadState("other"); found {
		t.Error("failed write must not create a record")
	}
}

func testClear(t *testing.T, s store.IStore) {
	etag, err := s.WriteState("key", []byte("v1"), "")
	if err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}

	if err := s.ClearState("key", "wrong"); !store.IsETagMismatch(err) {
		t.Errorf("expected etag mismatch, got %v", err)
	}
	if err := s.ClearState("key", etag); err != nil {
		t.Fatalf("ClearState failed: %v", err)
	}
	if _, _, found, _ := s.ReadState("key"); found {
		t.Error("expected record to be deleted")
	}
	if err := s.ClearState("key", ""); err != nil {
		t.Errorf("clearing a missing record with empty etag should succeed, got %v", err)
	}

	// the record can be created again
	if _, err := s.WriteState("key", []byte("v2"), ""); err != nil {
		t.Errorf("re-creating record failed: %v", err)
	}
}

func testConcurrentWriters(t *testing.T, s store.IStore) {
	etag, err := s.WriteState("counter", []byte("0"), "")
	if err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}

	const writers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.WriteState("counter", []byte(fmt.Sprintf("writer-%d", i)), etag)
			if err == nil {
				wins.Add(1)
			} else if !store.IsETagMismatch(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful writer, got %d", wins.Load())
	}
}

func testInfo(t *testing.T, s store.IStore) {
	for i := 0; i < 3; i++ {
		if _, err := s.WriteState(fmt.Sprintf("key-%d", i), []byte("value"), ""); err != nil {
			t.Fatalf("WriteState failed: %v", err)
		}
	}
	info, err := s.GetInfo()
	if err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
	if info.Records != 3 {
		t.Errorf("expected 3 records, got %d", info.Records)
	}
	if info.Type == "" {
		t.Error("expected store type to be set")
	}
}
