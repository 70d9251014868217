// Package testing provides standardised tests and benchmarks for
// record stores that satisfy the store.IStore interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the IStore contract, in particular
//     the ETag semantics under concurrent writers
//   - benchmark: Performance tests for the common record operations
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() store.IStore {
//		return NewMyStore()
//	}
//
//	// Running the standard test suite
//	storetesting.RunStoreTests(t, "MyStore", factory)
//
//	// Running performance benchmarks
//	storetesting.RunStoreBenchmarks(b, "MyStore", factory)
package testing
