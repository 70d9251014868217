package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/serializer"
	"github.com/ValentinKolb/dLV/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// ProtocolNetwork connects the adaptors of this cluster with the protocol shards of the
// other clusters. Every remote cluster gets its own transport, connected on first use.
type ProtocolNetwork struct {
	clusterID    string
	shardId      uint64
	config       common.ClientConfig
	newTransport func() transport.IRPCClientTransport
	serializer   serializer.IRPCSerializer

	endpoints     map[string]string
	configuration atomic.Pointer[protocol.MultiClusterConfiguration]

	// connectMu serializes connection attempts, established transports live in transports
	connectMu  sync.Mutex
	transports *xsync.MapOf[string, transport.IRPCClientTransport]
}

// NewProtocolNetwork creates the network of clusterID. clusters maps the id of every cluster
// (including clusterID) to the endpoint of its protocol shard. config provides the timeout and
// transport settings, its endpoints are ignored.
func NewProtocolNetwork(
	clusterID string,
	clusters map[string]string,
	shardId uint64,
	config common.ClientConfig,
	transportFactory func() transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*ProtocolNetwork, error) {
	if _, ok := clusters[clusterID]; !ok {
		return nil, logview.ConfigurationError("cluster %q is not part of the clusters %v", clusterID, clusters)
	}

	n := &ProtocolNetwork{
		clusterID:    clusterID,
		shardId:      shardId,
		config:       config,
		newTransport: transportFactory,
		serializer:   serializer,
		endpoints:    clusters,
		transports:   xsync.NewMapOf[string, transport.IRPCClientTransport](),
	}

	ids := (&common.LogViewConfig{Clusters: clusters}).ClusterIDs()
	n.configuration.Store(&protocol.MultiClusterConfiguration{
		Clusters:       ids,
		AdminTimestamp: time.Now(),
	})
	return n, nil
}

// Services returns the services for the adaptor of an entity in this cluster
func (n *ProtocolNetwork) Services(entity string) protocol.IServices {
	return &rpcServices{
		BaseServices: protocol.BaseServices{Entity: entity, Cluster: n.clusterID},
		network:      n,
	}
}

// Configuration returns the current multi-cluster configuration
func (n *ProtocolNetwork) Configuration() protocol.MultiClusterConfiguration {
	return *n.configuration.Load()
}

// Close closes the transports to all clusters
func (n *ProtocolNetwork) Close() error {
	n.connectMu.Lock()
	defer n.connectMu.Unlock()

	n.transports.Range(func(cluster string, t transport.IRPCClientTransport) bool {
		if err := t.Close(); err != nil {
			Logger.Warningf("Failed to close transport to cluster %s: %v", cluster, err)
		}
		n.transports.Delete(cluster)
		return true
	})
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// transportTo returns the transport to cluster, connecting it if necessary
func (n *ProtocolNetwork) transportTo(cluster string) (transport.IRPCClientTransport, error) {
	if t, ok := n.transports.Load(cluster); ok {
		return t, nil
	}

	endpoint, ok := n.endpoints[cluster]
	if !ok {
		return nil, fmt.Errorf("unknown cluster %q", cluster)
	}

	n.connectMu.Lock()
	defer n.connectMu.Unlock()

	// another request may have connected in the meantime
	if t, ok := n.transports.Load(cluster); ok {
		return t, nil
	}

	config := n.config
	config.Transport.Endpoints = []string{endpoint}

	t := n.newTransport()
	if err := t.Connect(config); err != nil {
		return nil, err
	}
	n.transports.Store(cluster, t)
	Logger.Infof("Connected to the protocol shard of cluster %s at %s", cluster, endpoint)
	return t, nil
}

// send wraps msg, sends it to the adaptor of entity in cluster and unwraps the response
func (n *ProtocolNetwork) send(ctx context.Context, entity string, msg *protocol.Message, cluster string) (*protocol.Message, error) {
	req, err := common.NewProtocolMessage(entity, msg)
	if err != nil {
		return nil, err
	}

	t, err := n.transportTo(cluster)
	if err != nil {
		return nil, logview.TransportError(err, "connect to cluster %s", cluster)
	}

	resp, err := invokeRPCRequest(ctx, n.shardId, req, t, n.serializer)
	if err != nil {
		return nil, logview.TransportError(err, "send %s to cluster %s", msg.Type, cluster)
	}
	return resp.ToProtocolMessage()
}

// --------------------------------------------------------------------------
// Services
// --------------------------------------------------------------------------

// rpcServices implements protocol.IServices on top of a ProtocolNetwork
type rpcServices struct {
	protocol.BaseServices
	network *ProtocolNetwork
}

// MultiClusterConfiguration (docu see protocol.IServices)
func (s *rpcServices) MultiClusterConfiguration() protocol.MultiClusterConfiguration {
	return s.network.Configuration()
}

// ActiveClusters (docu see protocol.IServices)
func (s *rpcServices) ActiveClusters() []string {
	return s.network.Configuration().Clusters
}

// SendMessage (docu see protocol.IServices)
func (s *rpcServices) SendMessage(ctx context.Context, msg *protocol.Message, targetCluster string) (*protocol.Message, error) {
	return s.network.send(ctx, s.Entity, msg, targetCluster)
}
