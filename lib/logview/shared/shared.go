package shared

import (
	"context"
	"sort"
	"strings"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/codec"
	"github.com/ValentinKolb/dLV/lib/logview/notify"
	"github.com/ValentinKolb/dLV/lib/logview/primary"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("logview/shared")

// DefaultKeyPrefix is prepended to the entity id to form the key of the record
const DefaultKeyPrefix = "logview/"

// Config configures the shared storage provider
type Config struct {
	ProviderID string
	// StoreName is the name of the store in the registry that holds the records
	StoreName string
	// KeyPrefix is prepended to the entity id (default DefaultKeyPrefix)
	KeyPrefix string
	// Codec used for records and messages (default msgpack)
	Codec codec.ICodec
}

// Record is the content stored for every entity
type Record struct {
	State         []byte `json:"state" msgpack:"s"`
	GlobalVersion int    `json:"version" msgpack:"v"`
	// WriteVector holds the sorted ids of all clusters whose bit is set. A cluster flips its bit
	// with every write, which lets it tell whether an ambiguous write was applied.
	WriteVector string `json:"write_vector" msgpack:"w"`
}

// NewAdaptor creates an adaptor that stores the log of the entity of services in the store
// registered as cfg.StoreName
func NewAdaptor[V, E any](host logview.IViewHost[V, E], services protocol.IServices, registry *store.Registry, cfg Config) (*primary.Adaptor[V, E], error) {
	if cfg.ProviderID == "" {
		return nil, logview.ConfigurationError("shared provider: missing provider id")
	}
	if cfg.StoreName == "" {
		return nil, logview.ConfigurationError("shared provider %s: missing store name", cfg.ProviderID)
	}
	if registry == nil {
		return nil, logview.ConfigurationError("shared provider %s: missing store registry", cfg.ProviderID)
	}
	s, err := registry.Get(cfg.StoreName)
	if err != nil {
		return nil, logview.ConfigurationError("shared provider %s: %v", cfg.ProviderID, err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	ops := primary.NewViewOps(host, cfg.Codec, services)
	b := &backend[V, E]{
		ops:      ops,
		store:    s,
		services: services,
		key:      prefix + services.EntityID(),
		cluster:  services.MyClusterID(),
	}
	return primary.NewAdaptor[V, E](ops, b, primary.Options{ProviderID: cfg.ProviderID}), nil
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

// backend keeps the ETag and write vector of the last record it has seen. Both are only
// accessed from the worker goroutine of the adaptor.
type backend[V, E any] struct {
	ops      *primary.ViewOps[V, E]
	store    store.IStore
	services protocol.IServices
	key      string
	cluster  string

	etag   string
	vector string

	// set after a write with unknown outcome, expectBit is the bit the write would have left
	unresolved bool
	expectBit  bool
}

func (b *backend[V, E]) Name() string {
	return "shared"
}

func (b *backend[V, E]) Read(ctx context.Context, knownVersion int) primary.ReadOutcome[V] {
	if err := ctx.Err(); err != nil {
		return primary.ReadError[V](err)
	}
	value, etag, found, err := b.store.ReadState(b.key)
	if err != nil {
		return primary.ReadError[V](logview.TransportError(err, "read record %s", b.key))
	}
	if !found {
		b.etag, b.vector = "", ""
		b.unresolved = false
		return primary.Empty[V]()
	}

	var rec Record
	if err := b.ops.Codec.Unmarshal(value, &rec); err != nil {
		return primary.ReadError[V](b.services.ProtocolError("invalid record %s: %v", b.key, err))
	}
	b.etag, b.vector = etag, rec.WriteVector

	landed := false
	if b.unresolved {
		landed = getBit(rec.WriteVector, b.cluster) == b.expectBit
		b.unresolved = false
	}

	var out primary.ReadOutcome[V]
	if knownVersion >= 0 && rec.GlobalVersion <= knownVersion {
		out = primary.NotNewer[V]()
	} else {
		view, err := b.ops.DecodeView(rec.State)
		if err != nil {
			return primary.ReadError[V](b.services.ProtocolError("invalid view in record %s: %v", b.key, err))
		}
		out = primary.Found(view, rec.GlobalVersion)
	}
	out.WriteLanded = landed
	return out
}

func (b *backend[V, E]) Write(ctx context.Context, confirmed primary.Snapshot[V], entries []E) primary.WriteOutcome[V] {
	if err := ctx.Err(); err != nil {
		return primary.WriteError[V](err)
	}

	view, _ := b.ops.Apply(b.ops.Copy(confirmed.View), entries, "shared record")
	state, err := b.ops.EncodeView(view)
	if err != nil {
		return primary.WriteError[V](err)
	}
	vector := flipBit(b.vector, b.cluster)
	data, err := b.ops.Codec.Marshal(Record{
		State:         state,
		GlobalVersion: confirmed.Version + len(entries),
		WriteVector:   vector,
	})
	if err != nil {
		return primary.WriteError[V](err)
	}

	etag, err := b.store.WriteState(b.key, data, b.etag)
	if store.IsETagMismatch(err) {
		return primary.Conflict[V](logview.ConflictError("record %s changed since version %d", b.key, confirmed.Version))
	}
	if err != nil {
		// the store may have applied the write anyway, the next read tells
		b.unresolved = true
		b.expectBit = getBit(vector, b.cluster)
		return primary.WriteError[V](logview.TransportError(err, "write record %s", b.key))
	}

	log.Debugf("[%s] wrote version %d, etag %s", b.services.EntityID(), confirmed.Version+len(entries), etag)
	b.etag, b.vector = etag, vector
	return primary.WrittenView(view)
}

func (b *backend[V, E]) Decorate(n *notify.Notification[E]) {
	n.ETag = encodeToken(b.etag, b.vector)
}

func (b *backend[V, E]) NotificationApplied(n notify.Notification[E]) {
	etag, vector, ok := decodeToken(n.ETag)
	if !ok {
		// the next write will conflict and read the current record
		return
	}
	b.etag, b.vector = etag, vector
}

func (b *backend[V, E]) HandleRequest(_ context.Context, msg *protocol.Message, _ primary.IRequestContext[V, E]) (*protocol.Message, error) {
	return nil, b.services.ProtocolError("shared provider does not handle %s", msg.Type)
}

func (b *backend[V, E]) ConfigurationChanged(protocol.MultiClusterConfiguration) error {
	return nil
}

// --------------------------------------------------------------------------
// Write Vector and Notification Token
// --------------------------------------------------------------------------

// getBit returns whether the bit of cluster is set in vector
func getBit(vector, cluster string) bool {
	for _, id := range splitVector(vector) {
		if id == cluster {
			return true
		}
	}
	return false
}

// flipBit returns vector with the bit of cluster inverted
func flipBit(vector, cluster string) string {
	ids := splitVector(vector)
	kept := ids[:0]
	found := false
	for _, id := range ids {
		if id == cluster {
			found = true
			continue
		}
		kept = append(kept, id)
	}
	if !found {
		kept = append(kept, cluster)
	}
	sort.Strings(kept)
	return strings.Join(kept, ",")
}

func splitVector(vector string) []string {
	if vector == "" {
		return nil
	}
	return strings.Split(vector, ",")
}

// encodeToken combines the ETag and the write vector of a record into the token that is sent
// with notifications. ETags are opaque, so the vector follows the last separator.
func encodeToken(etag, vector string) string {
	return etag + ";" + vector
}

func decodeToken(token string) (etag, vector string, ok bool) {
	i := strings.LastIndexByte(token, ';')
	if i < 0 {
		return "", "", false
	}
	return token[:i], token[i+1:], true
}
