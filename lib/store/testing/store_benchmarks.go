package testing

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dLV/lib/store"
)

// RunStoreBenchmarks runs the benchmarks for an IStore implementation.
func RunStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Create", func(b *testing.B) {
			benchmarkCreate(b, factory())
		})

		b.Run("Update", func(b *testing.B) {
			benchmarkUpdate(b, factory())
		})

		b.Run("Read", func(b *testing.B) {
			benchmarkRead(b, factory())
		})

		b.Run("ConflictingUpdate", func(b *testing.B) {
			benchmarkConflictingUpdate(b, factory())
		})
	})
}

func benchmarkCreate(b *testing.B, s store.IStore) {
	value := []byte("value")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.WriteState(fmt.Sprintf("key-%d", i), value, ""); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkUpdate(b *testing.B, s store.IStore) {
	value := make([]byte, 256)
	etag, err := s.WriteState("key", value, "")
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if etag, err = s.WriteState("key", value, etag); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkRead(b *testing.B, s store.IStore) {
	for i := 0; i < 1000; i++ {
		if _, err := s.WriteState(fmt.Sprintf("key-%d", i), []byte("value"), ""); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := s.ReadState(fmt.Sprintf("key-%d", i%1000)); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkConflictingUpdate(b *testing.B, s store.IStore) {
	if _, err := s.WriteState("key", []byte("value"), ""); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.WriteState("key", []byte("value"), "stale"); !store.IsETagMismatch(err) {
			b.Fatalf("expected etag mismatch, got %v", err)
		}
	}
}
