package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dLV/lib/counter"
	"github.com/ValentinKolb/dLV/lib/logview/codec"
	"github.com/ValentinKolb/dLV/lib/logview/primary"
	"github.com/ValentinKolb/dLV/lib/logview/shared"
	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/ValentinKolb/dLV/lib/store/dstore"
	"github.com/ValentinKolb/dLV/lib/store/lstore"
	"github.com/ValentinKolb/dLV/rpc/client"
	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/serializer"
	"github.com/ValentinKolb/dLV/rpc/transport"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

const (
	// CounterStoreName is the name of the record store used by the counter entities
	CounterStoreName = "counters"
	// CounterProviderID is the provider id of the counter adaptors
	CounterProviderID = "counter"
	// CounterKeyPrefix is prepended to the counter name to form the key of its record
	CounterKeyPrefix = "counter/"
)

// RPCServer serves store shards and the protocol shard of a cluster
type RPCServer struct {
	config          common.ServerConfig
	transport       transport.IRPCServerTransport
	serializer      serializer.IRPCSerializer
	clientTransport func() transport.IRPCClientTransport
	shards          *xsync.MapOf[uint64, IRPCServerAdapter]

	nodeHost      *dragonboat.NodeHost
	counters      *counter.Manager
	network       *client.ProtocolNetwork
	recordStore   store.IStore
	metricsServer *http.Server
}

// NewRPCServer creates a new RPC server
// It takes a config, a server transport, a serializer and a factory for the client transports
// used to reach other clusters and a remote record store as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//		tcp.NewTCPClientTransport,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	clientTransport func() transport.IRPCClientTransport,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:          config,
		transport:       transport,
		serializer:      serializer,
		clientTransport: clientTransport,
		shards:          xsync.NewMapOf[uint64, IRPCServerAdapter](),
	}
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer.
// It blocks until Stop is called or the transport fails.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Stop stops the transport, deactivates all counters (bounded by ctx) and releases all resources
func (s *RPCServer) Stop(ctx context.Context) error {
	var errs []error
	if err := s.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	if s.counters != nil {
		if err := s.counters.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("deactivate counters: %w", err))
		}
	}
	if s.network != nil {
		if err := s.network.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close protocol network: %w", err))
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics endpoint: %w", err))
		}
	}
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
	Logger.Infof("RPC server stopped")
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Get appropriate shard
		adapter, ok := s.shards.Load(shardId)

		if !ok {
			// Case shard does not exist -> error
			respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			// Let the adapter handle the request
			respMsg = adapter.Handle(&msg)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

func (s *RPCServer) init() error {

	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Create the Dragonboat NodeHost
	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	// Configure the timeout for the distributed store and the protocol shard
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of remote and or local store shards
		and at most one protocol shard. Store shards are created first, so the protocol
		shard can keep its records in one of them.
	*/

	stores := make(map[uint64]store.IStore)
	var protocolShard *common.ServerShard

	for i, shardConfig := range s.config.Shards {
		switch shardConfig.Type {

		case common.ShardTypeLocalIStore:
			stores[shardConfig.ShardID] = lstore.NewLocalStore()
			Logger.Infof("created local store for shard %d", shardConfig.ShardID)

		case common.ShardTypeRemoteIStore:
			// Start Raft for the shard
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}
			stores[shardConfig.ShardID] = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout)
			Logger.Infof("created distributed store for shard %d", shardConfig.ShardID)

		case common.ShardTypeProtocol:
			if protocolShard != nil {
				return fmt.Errorf("only one protocol shard is supported, got %d and %d", protocolShard.ShardID, shardConfig.ShardID)
			}
			protocolShard = &s.config.Shards[i]

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	for shardID, st := range stores {
		s.shards.Store(shardID, NewIStoreServerAdapter(st))
	}

	if protocolShard != nil {
		adapter, err := s.initProtocolShard(protocolShard.ShardID, stores, timeout)
		if err != nil {
			return err
		}
		s.shards.Store(protocolShard.ShardID, adapter)
		Logger.Infof("created protocol shard %d for cluster %s", protocolShard.ShardID, s.config.LogView.ClusterID)
	}

	if s.config.MetricsEndpoint != "" {
		s.startMetricsEndpoint()
	}

	Logger.Infof("dLV setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// initProtocolShard creates the record store, the protocol network and the counter manager
func (s *RPCServer) initProtocolShard(shardID uint64, stores map[uint64]store.IStore, timeout time.Duration) (IRPCServerAdapter, error) {
	lv := s.config.LogView

	if s.clientTransport == nil {
		return nil, fmt.Errorf("protocol shard %d needs a client transport", shardID)
	}

	c, err := codec.ByName(lv.Codec)
	if err != nil {
		return nil, err
	}

	// The records are kept in a remote store if endpoints are given, otherwise in a local shard
	if len(lv.StoreEndpoints) > 0 {
		s.recordStore, err = client.NewRPCStore(lv.StoreShard, common.ClientConfig{
			TimeoutSecond: int(s.config.TimeoutSecond),
			Transport: common.ClientTransportConfig{
				Endpoints:  lv.StoreEndpoints,
				RetryCount: 1,
			},
		}, s.clientTransport(), s.serializer)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to the record store: %w", err)
		}
	} else {
		st, ok := stores[lv.StoreShard]
		if !ok {
			return nil, fmt.Errorf("record store shard %d is not served by this server", lv.StoreShard)
		}
		s.recordStore = st
	}

	registry := store.NewRegistry()
	registry.Register(CounterStoreName, s.recordStore)

	// Notifications are retried by the adaptors, so every transport attempt is made once
	s.network, err = client.NewProtocolNetwork(lv.ClusterID, lv.Clusters, shardID, common.ClientConfig{
		TimeoutSecond: int(s.config.TimeoutSecond),
		Transport:     common.ClientTransportConfig{RetryCount: 1},
	}, s.clientTransport, s.serializer)
	if err != nil {
		return nil, err
	}

	s.counters = counter.NewManager(func(entity string) (*primary.Adaptor[int64, int64], error) {
		return shared.NewAdaptor[int64, int64](counter.Host{}, s.network.Services(entity), registry, shared.Config{
			ProviderID: CounterProviderID,
			StoreName:  CounterStoreName,
			KeyPrefix:  CounterKeyPrefix,
			Codec:      c,
		})
	})

	return NewProtocolServerAdapter(s.counters, timeout), nil
}

// startMetricsEndpoint serves the process metrics in the prometheus text format
func (s *RPCServer) startMetricsEndpoint() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})
	s.metricsServer = &http.Server{
		Addr:              s.config.MetricsEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
}
