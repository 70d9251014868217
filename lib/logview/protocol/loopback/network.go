package loopback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/puzpuzpuz/xsync/v3"
)

// DropFunc decides whether a message from one cluster to another is dropped
type DropFunc func(from, to string, msg *protocol.Message) bool

// Network connects the adaptors of several clusters inside one process
type Network struct {
	// handlers maps cluster id -> entity id -> handler
	handlers    *xsync.MapOf[string, *xsync.MapOf[string, protocol.IHandler]]
	partitioned *xsync.MapOf[string, bool]
	config      atomic.Pointer[protocol.MultiClusterConfiguration]
	latency     atomic.Int64

	mu   sync.RWMutex
	drop DropFunc

	sent atomic.Uint64
}

// NewNetwork creates a network whose configuration consists of the given clusters
func NewNetwork(clusters ...string) *Network {
	n := &Network{
		handlers:    xsync.NewMapOf[string, *xsync.MapOf[string, protocol.IHandler]](),
		partitioned: xsync.NewMapOf[string, bool](),
	}
	n.SetConfiguration(protocol.MultiClusterConfiguration{
		Clusters:       clusters,
		AdminTimestamp: time.Now(),
	})
	return n
}

// --------------------------------------------------------------------------
// Topology & Fault Injection
// --------------------------------------------------------------------------

// SetConfiguration replaces the multi-cluster configuration. Adaptors are not informed, call
// their OnMultiClusterConfigurationChange method if needed.
func (n *Network) SetConfiguration(cfg protocol.MultiClusterConfiguration) {
	n.config.Store(&cfg)
}

// Configuration returns the current configuration
func (n *Network) Configuration() protocol.MultiClusterConfiguration {
	return *n.config.Load()
}

// SetPartitioned cuts off (or reconnects) a cluster from all other clusters
func (n *Network) SetPartitioned(cluster string, partitioned bool) {
	n.partitioned.Store(cluster, partitioned)
}

// SetDropFunc sets a function that can drop individual messages (nil disables dropping)
func (n *Network) SetDropFunc(drop DropFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop = drop
}

// SetLatency sets the delay applied to every message
func (n *Network) SetLatency(latency time.Duration) {
	n.latency.Store(int64(latency))
}

// MessagesSent returns the number of messages that were delivered to a handler
func (n *Network) MessagesSent() uint64 {
	return n.sent.Load()
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// Register registers the handler (usually an adaptor) of an entity in a cluster
func (n *Network) Register(cluster, entity string, handler protocol.IHandler) {
	entities, _ := n.handlers.LoadOrCompute(cluster, func() *xsync.MapOf[string, protocol.IHandler] {
		return xsync.NewMapOf[string, protocol.IHandler]()
	})
	entities.Store(entity, handler)
}

// Unregister removes the handler of an entity in a cluster
func (n *Network) Unregister(cluster, entity string) {
	if entities, ok := n.handlers.Load(cluster); ok {
		entities.Delete(entity)
	}
}

// Services returns the services for the adaptor of an entity in a cluster
func (n *Network) Services(cluster, entity string) protocol.IServices {
	return &services{
		BaseServices: protocol.BaseServices{Entity: entity, Cluster: cluster},
		network:      n,
	}
}

// --------------------------------------------------------------------------
// Delivery
// --------------------------------------------------------------------------

func (n *Network) deliver(ctx context.Context, from, to, entity string, msg *protocol.Message) (*protocol.Message, error) {
	if p, _ := n.partitioned.Load(from); p {
		return nil, logview.TransportError(fmt.Errorf("cluster %s is partitioned", from), "send %s to %s", msg.Type, to)
	}
	if p, _ := n.partitioned.Load(to); p {
		return nil, logview.TransportError(fmt.Errorf("cluster %s is partitioned", to), "send %s to %s", msg.Type, to)
	}

	n.mu.RLock()
	drop := n.drop
	n.mu.RUnlock()
	if drop != nil && drop(from, to, msg) {
		return nil, logview.TransportError(fmt.Errorf("message dropped"), "send %s to %s", msg.Type, to)
	}

	if latency := time.Duration(n.latency.Load()); latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	entities, ok := n.handlers.Load(to)
	if !ok {
		return nil, logview.TransportError(fmt.Errorf("unknown cluster"), "send %s to %s", msg.Type, to)
	}
	handler, ok := entities.Load(entity)
	if !ok {
		return nil, logview.TransportError(fmt.Errorf("entity %s not active", entity), "send %s to %s", msg.Type, to)
	}

	n.sent.Add(1)
	return handler.OnProtocolMessageReceived(ctx, msg)
}

// services implements protocol.IServices for one entity in one cluster
type services struct {
	protocol.BaseServices
	network *Network
}

func (s *services) MultiClusterConfiguration() protocol.MultiClusterConfiguration {
	return s.network.Configuration()
}

func (s *services) ActiveClusters() []string {
	return s.network.Configuration().Clusters
}

func (s *services) SendMessage(ctx context.Context, msg *protocol.Message, targetCluster string) (*protocol.Message, error) {
	return s.network.deliver(ctx, s.Cluster, targetCluster, s.Entity, msg)
}
