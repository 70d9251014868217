package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/primary"
	"github.com/ValentinKolb/dLV/lib/logview/protocol/loopback"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	Balance int
	History []int
}

type accountHost struct{}

func (accountHost) NewView() *account { return &account{} }

func (accountHost) ApplyEntry(view *account, amount int) (*account, error) {
	view.Balance += amount
	view.History = append(view.History, amount)
	return view, nil
}

func TestMemoryAdaptors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	network := loopback.NewNetwork("a", "b")
	storage := NewStorage()
	cfg := Config{ProviderID: "mem", Latency: time.Millisecond}

	a, err := NewAdaptor[*account, int](accountHost{}, network.Services("a", "acc"), storage, cfg)
	require.NoError(t, err)
	b, err := NewAdaptor[*account, int](accountHost{}, network.Services("b", "acc"), storage, cfg)
	require.NoError(t, err)
	network.Register("a", "acc", a)
	network.Register("b", "acc", b)
	require.NoError(t, a.Activate(ctx))
	require.NoError(t, b.Activate(ctx))
	defer a.Deactivate(context.Background())
	defer b.Deactivate(context.Background())

	a.SubmitRange([]int{10, 20})
	assert.Equal(t, 30, a.TentativeView().Balance)

	require.NoError(t, a.ConfirmSubmittedEntries(ctx))
	assert.Equal(t, 30, a.ConfirmedView().Balance)
	assert.Equal(t, 2, storage.Version("acc"))

	b.Submit(-5)
	require.NoError(t, b.ConfirmSubmittedEntries(ctx))
	require.NoError(t, a.SynchronizeNow(ctx))

	assert.Equal(t, 25, a.ConfirmedView().Balance)
	assert.Equal(t, 25, b.ConfirmedView().Balance)
	assert.Equal(t, []int{10, 20, -5}, b.ConfirmedView().History)
	assert.Equal(t, 3, storage.Version("acc"))
}

func TestMemoryConfiguration(t *testing.T) {
	network := loopback.NewNetwork("a")
	_, err := NewAdaptor[*account, int](accountHost{}, network.Services("a", "acc"), NewStorage(), Config{})
	assert.True(t, errors.Is(err, logview.ErrConfiguration))
	_, err = NewAdaptor[*account, int](accountHost{}, network.Services("a", "acc"), nil, Config{ProviderID: "mem"})
	assert.True(t, errors.Is(err, logview.ErrConfiguration))
}

type sumHost struct{}

func (sumHost) NewView() int { return 0 }

func (sumHost) ApplyEntry(view int, entry int) (int, error) { return view + entry, nil }

func TestMemoryWriteAtStaleVersion(t *testing.T) {
	ctx := context.Background()
	network := loopback.NewNetwork("a")
	storage := NewStorage()
	b := &backend[int, int]{
		ops:    primary.NewViewOps[int, int](sumHost{}, nil, network.Services("a", "sum")),
		record: storage.record("sum"),
	}

	out := b.Write(ctx, primary.Snapshot[int]{View: 0, Version: 0}, []int{1, 2})
	require.Equal(t, primary.WriteOK, out.Status)
	assert.Equal(t, 2, storage.Version("sum"))

	// a second writer that still sees version 0 is rejected
	out = b.Write(ctx, primary.Snapshot[int]{View: 0, Version: 0}, []int{5})
	require.Equal(t, primary.WriteConflict, out.Status)
	assert.True(t, errors.Is(out.Err, logview.ErrVersionConflict))
	assert.Equal(t, 2, storage.Version("sum"))

	read := b.Read(ctx, -1)
	require.Equal(t, primary.ReadFound, read.Status)
	assert.Equal(t, 3, read.View)
	assert.Equal(t, 2, read.Version)
}
