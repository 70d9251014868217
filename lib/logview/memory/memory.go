package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/codec"
	"github.com/ValentinKolb/dLV/lib/logview/notify"
	"github.com/ValentinKolb/dLV/lib/logview/primary"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/puzpuzpuz/xsync/v3"
)

// Config configures the memory provider
type Config struct {
	ProviderID string
	// Latency delays every read and write
	Latency time.Duration
	// Codec used to store views (default msgpack)
	Codec codec.ICodec
}

// Storage holds the records of all entities
type Storage struct {
	records *xsync.MapOf[string, *record]
}

type record struct {
	mu      sync.Mutex
	view    []byte
	version int
}

// NewStorage creates an empty storage
func NewStorage() *Storage {
	return &Storage{records: xsync.NewMapOf[string, *record]()}
}

// Version returns the stored version of an entity (0 if there is no record)
func (s *Storage) Version(entity string) int {
	r, ok := s.records.Load(entity)
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

func (s *Storage) record(entity string) *record {
	r, _ := s.records.LoadOrCompute(entity, func() *record { return &record{} })
	return r
}

// NewAdaptor creates an adaptor that stores the view of the entity of services in storage
func NewAdaptor[V, E any](host logview.IViewHost[V, E], services protocol.IServices, storage *Storage, cfg Config) (*primary.Adaptor[V, E], error) {
	if cfg.ProviderID == "" {
		return nil, logview.ConfigurationError("memory provider: missing provider id")
	}
	if storage == nil {
		return nil, logview.ConfigurationError("memory provider %s: missing storage", cfg.ProviderID)
	}
	ops := primary.NewViewOps(host, cfg.Codec, services)
	b := &backend[V, E]{
		ops:     ops,
		record:  storage.record(services.EntityID()),
		latency: cfg.Latency,
	}
	return primary.NewAdaptor[V, E](ops, b, primary.Options{ProviderID: cfg.ProviderID}), nil
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

type backend[V, E any] struct {
	ops     *primary.ViewOps[V, E]
	record  *record
	latency time.Duration
}

func (b *backend[V, E]) Name() string {
	return "memory"
}

func (b *backend[V, E]) Read(ctx context.Context, knownVersion int) primary.ReadOutcome[V] {
	if err := b.delay(ctx); err != nil {
		return primary.ReadError[V](err)
	}
	b.record.mu.Lock()
	data, version := b.record.view, b.record.version
	b.record.mu.Unlock()

	if data == nil {
		return primary.Empty[V]()
	}
	if knownVersion >= 0 && version <= knownVersion {
		return primary.NotNewer[V]()
	}
	view, err := b.ops.DecodeView(data)
	if err != nil {
		return primary.ReadError[V](err)
	}
	return primary.Found(view, version)
}

func (b *backend[V, E]) Write(ctx context.Context, confirmed primary.Snapshot[V], entries []E) primary.WriteOutcome[V] {
	if err := b.delay(ctx); err != nil {
		return primary.WriteError[V](err)
	}
	b.record.mu.Lock()
	defer b.record.mu.Unlock()

	// only possible if several adaptors of the same entity share the storage concurrently
	if b.record.version != confirmed.Version {
		return primary.Conflict[V](logview.ConflictError("stored version %d, expected %d", b.record.version, confirmed.Version))
	}
	view, _ := b.ops.Apply(b.ops.Copy(confirmed.View), entries, "memory write")
	data, err := b.ops.EncodeView(view)
	if err != nil {
		return primary.WriteError[V](fmt.Errorf("encode view: %w", err))
	}
	b.record.view = data
	b.record.version = confirmed.Version + len(entries)
	return primary.WrittenView(view)
}

func (b *backend[V, E]) Decorate(*notify.Notification[E]) {}

func (b *backend[V, E]) NotificationApplied(notify.Notification[E]) {}

func (b *backend[V, E]) HandleRequest(_ context.Context, msg *protocol.Message, _ primary.IRequestContext[V, E]) (*protocol.Message, error) {
	return nil, b.ops.Services.ProtocolError("memory backend does not handle %s", msg.Type)
}

func (b *backend[V, E]) ConfigurationChanged(protocol.MultiClusterConfiguration) error {
	return nil
}

func (b *backend[V, E]) delay(ctx context.Context) error {
	if b.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(b.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
