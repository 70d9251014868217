package serve

import (
	"testing"

	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShards(t *testing.T) {
	shards, err := parseShards("100=lstore, 101=dstore,200=protocol")
	require.NoError(t, err)
	assert.Equal(t, []common.ServerShard{
		{ShardID: 100, Type: common.ShardTypeLocalIStore},
		{ShardID: 101, Type: common.ShardTypeRemoteIStore},
		{ShardID: 200, Type: common.ShardTypeProtocol},
	}, shards)

	_, err = parseShards("100")
	assert.Error(t, err)

	_, err = parseShards("abc=lstore")
	assert.Error(t, err)

	_, err = parseShards("100=bogus")
	assert.Error(t, err)
}
