package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTRead    QueryType = iota // Retrieve a record by key.
	QueryTGetInfo                  // Retrieve metadata about the records held by the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTRead:
		return "Read"
	case QueryTGetInfo:
		return "GetInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query (empty for some queries).
}

// QueryResult is the result of a QueryTRead operation.
// The result of QueryTGetInfo is a store.Info.
type QueryResult struct {
	Ok    bool
	Value []byte
	ETag  string
}
