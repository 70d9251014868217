package custom

import (
	"context"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/codec"
	"github.com/ValentinKolb/dLV/lib/logview/notify"
	"github.com/ValentinKolb/dLV/lib/logview/primary"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("logview/custom")

// ICustomStorage is implemented by entities that store their log themselves.
type ICustomStorage[V, E any] interface {
	logview.IViewHost[V, E]
	// ReadStateFromStorage returns the latest stored version and view.
	// An entity without stored state returns version 0 and a new view.
	ReadStateFromStorage(ctx context.Context) (version int, view V, err error)
	// ApplyUpdatesToStorage appends updates if the stored version equals expectedVersion.
	// It returns false (and no error) if the stored version differs.
	ApplyUpdatesToStorage(ctx context.Context, updates []E, expectedVersion int) (bool, error)
}

// Config configures the custom storage provider
type Config struct {
	ProviderID string
	// PrimaryCluster is the only cluster that accesses the storage. Empty means every cluster is
	// primary, which requires a single-cluster configuration.
	PrimaryCluster string
	// Codec used for messages between clusters (default msgpack)
	Codec codec.ICodec
}

// Validate checks the configuration against the current multi-cluster configuration
func (c Config) Validate(cfg protocol.MultiClusterConfiguration) error {
	if c.ProviderID == "" {
		return logview.ConfigurationError("custom provider: missing provider id")
	}
	if c.PrimaryCluster == "" && len(cfg.Clusters) > 1 {
		return logview.ConfigurationError("custom provider %s: primary cluster required for %d clusters", c.ProviderID, len(cfg.Clusters))
	}
	return nil
}

// NewAdaptor creates an adaptor for the entity of services that stores its log via host
func NewAdaptor[V, E any](host ICustomStorage[V, E], services protocol.IServices, cfg Config) (*primary.Adaptor[V, E], error) {
	if err := cfg.Validate(services.MultiClusterConfiguration()); err != nil {
		return nil, err
	}
	ops := primary.NewViewOps[V, E](host, cfg.Codec, services)
	b := &backend[V, E]{
		ops:            ops,
		host:           host,
		services:       services,
		primaryCluster: cfg.PrimaryCluster,
	}
	return primary.NewAdaptor[V, E](ops, b, primary.Options{ProviderID: cfg.ProviderID}), nil
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

type backend[V, E any] struct {
	ops            *primary.ViewOps[V, E]
	host           ICustomStorage[V, E]
	services       protocol.IServices
	primaryCluster string
}

func (b *backend[V, E]) Name() string {
	return "custom"
}

func (b *backend[V, E]) isPrimary() bool {
	return b.primaryCluster == "" || b.primaryCluster == b.services.MyClusterID()
}

func (b *backend[V, E]) Read(ctx context.Context, knownVersion int) primary.ReadOutcome[V] {
	if b.isPrimary() {
		version, view, err := b.host.ReadStateFromStorage(ctx)
		if err != nil {
			return primary.ReadError[V](logview.TransportError(err, "read from storage"))
		}
		return primary.Found(view, version)
	}

	resp, err := b.services.SendMessage(ctx, &protocol.Message{
		Type:    protocol.MsgTReadRequest,
		Origin:  b.services.MyClusterID(),
		Version: knownVersion,
	}, b.primaryCluster)
	if err != nil {
		return primary.ReadError[V](logview.TransportError(err, "read from primary %s", b.primaryCluster))
	}
	if resp == nil || resp.Type != protocol.MsgTReadResponse {
		return primary.ReadError[V](b.services.ProtocolError("unexpected response to read request: %s", resp))
	}
	if len(resp.View) == 0 {
		if resp.Version == 0 {
			return primary.Empty[V]()
		}
		return primary.NotNewer[V]()
	}
	view, err := b.ops.DecodeView(resp.View)
	if err != nil {
		return primary.ReadError[V](b.services.ProtocolError("invalid view from primary: %v", err))
	}
	return primary.Found(view, resp.Version)
}

func (b *backend[V, E]) Write(ctx context.Context, confirmed primary.Snapshot[V], entries []E) primary.WriteOutcome[V] {
	if b.isPrimary() {
		ok, err := b.host.ApplyUpdatesToStorage(ctx, entries, confirmed.Version)
		if err != nil {
			return primary.WriteError[V](logview.TransportError(err, "write to storage"))
		}
		if !ok {
			return primary.Conflict[V](logview.ConflictError("storage rejected write at version %d", confirmed.Version))
		}
		return primary.Written[V]()
	}

	updates, err := b.ops.EncodeEntries(entries)
	if err != nil {
		return primary.WriteError[V](err)
	}
	resp, err := b.services.SendMessage(ctx, &protocol.Message{
		Type:    protocol.MsgTUpdateRequest,
		Origin:  b.services.MyClusterID(),
		Version: confirmed.Version,
		Updates: updates,
	}, b.primaryCluster)
	if err != nil {
		return primary.WriteError[V](logview.TransportError(err, "write via primary %s", b.primaryCluster))
	}
	if resp == nil || resp.Type != protocol.MsgTUpdateResponse {
		return primary.WriteError[V](b.services.ProtocolError("unexpected response to update request: %s", resp))
	}
	if !resp.Ok {
		return primary.Conflict[V](logview.ConflictError("primary %s rejected write at version %d", b.primaryCluster, confirmed.Version))
	}
	return primary.Written[V]()
}

func (b *backend[V, E]) Decorate(*notify.Notification[E]) {}

func (b *backend[V, E]) NotificationApplied(notify.Notification[E]) {}

func (b *backend[V, E]) HandleRequest(ctx context.Context, msg *protocol.Message, rc primary.IRequestContext[V, E]) (*protocol.Message, error) {
	if !b.isPrimary() {
		return nil, b.services.ProtocolError("%s received by non-primary cluster (primary is %s)", msg.Type, b.primaryCluster)
	}

	switch msg.Type {
	case protocol.MsgTReadRequest:
		snapshot := rc.ConfirmedSnapshot()
		resp := &protocol.Message{Type: protocol.MsgTReadResponse, Version: snapshot.Version}
		if msg.Version < 0 || snapshot.Version > msg.Version {
			view, err := b.ops.EncodeView(snapshot.View)
			if err != nil {
				return nil, errors.Wrap(err, "encode view")
			}
			resp.View = view
		}
		return resp, nil

	case protocol.MsgTUpdateRequest:
		entries, err := b.ops.DecodeEntries(msg.Updates)
		if err != nil {
			return nil, b.services.ProtocolError("invalid update request from %s: %v", msg.Origin, err)
		}
		ok, err := b.host.ApplyUpdatesToStorage(ctx, entries, msg.Version)
		if err != nil {
			return nil, logview.TransportError(err, "write to storage for %s", msg.Origin)
		}
		resp := &protocol.Message{Type: protocol.MsgTUpdateResponse, Ok: ok, Version: msg.Version}
		if ok {
			resp.Version = msg.Version + len(entries)
			log.Debugf("[%s] wrote %d entries for %s, version %d", b.services.EntityID(), len(entries), msg.Origin, resp.Version)
			rc.AcceptRemoteWrite(notify.Notification[E]{
				Version: resp.Version,
				Updates: entries,
				Origin:  msg.Origin,
			})
		}
		return resp, nil

	default:
		return nil, b.services.ProtocolError("unexpected message %s", msg)
	}
}

func (b *backend[V, E]) ConfigurationChanged(cfg protocol.MultiClusterConfiguration) error {
	if b.primaryCluster == "" {
		if len(cfg.Clusters) > 1 {
			return b.services.ProtocolError("no primary cluster configured for %d clusters", len(cfg.Clusters))
		}
		return nil
	}
	if !cfg.Contains(b.primaryCluster) {
		return b.services.ProtocolError("primary cluster %s is not part of the configuration %v", b.primaryCluster, cfg.Clusters)
	}
	return nil
}
