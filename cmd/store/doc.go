// Package store implements the store commands of the dLV cli. They read and delete
// single records of a store shard, e.g. the record of a counter entity.
//
// See dlv store --help for all commands.
package store
