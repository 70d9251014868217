// Package internal contains the commands and queries exchanged between the dstore client and
// its RAFT state machine. Commands are written to the RAFT log and therefore use a compact
// binary encoding; queries never leave the node and are passed as plain structs.
package internal
