package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dLV/cmd/util"
	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/server"
	"github.com/ValentinKolb/dLV/rpc/transport"
	"github.com/ValentinKolb/dLV/rpc/transport/http"
	"github.com/ValentinKolb/dLV/rpc/transport/tcp"
	"github.com/ValentinKolb/dLV/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dLV server",
		Long:    `Start the dLV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DLV_<flag> (e.g. DLV_CLUSTER_ID=eu)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=lstore,200=protocol", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: dstore, lstore, protocol"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of snapshots that should be retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(dstore) DataDir is the directory used for storing the raft log and the snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for proposals, store requests and protocol messages"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/dlv.sock, ...)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum number of requests processed concurrently per connection (0 = transport default, ignored for http)"))

	key = "cluster-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(protocol) The id of the cluster this server belongs to"))

	key = "clusters"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(protocol) Comma-separated list of all clusters and the endpoints of their protocol shards in the format 'eu=10.0.0.1:8080,us=10.1.0.1:8080'"))

	key = "counter-store-shard"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("(protocol) The store shard holding the counter records"))

	key = "counter-store-endpoints"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(protocol) Comma-separated endpoints of a remote server holding the counter store shard. If empty the shard must be served by this server"))

	key = "codec"
	ServeCmd.PersistentFlags().String(key, "msgpack", cmdUtil.WrapString("(protocol) The codec used for the counter records (msgpack, json)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the prometheus metrics endpoint (e.g. localhost:9090, empty = disabled)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// parseShards parses the shard list in the format ID=TYPE,...
func parseShards(shardsConfig string) ([]common.ServerShard, error) {
	shards := []common.ServerShard{}
	for _, shardConfig := range strings.Split(shardsConfig, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		// Parse shard ID
		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}

		// Parse shard type
		shardType := common.ServerShardType(strings.TrimSpace(parts[1]))
		switch shardType {
		case common.ShardTypeRemoteIStore, common.ShardTypeLocalIStore, common.ShardTypeProtocol:
		default:
			return nil, fmt.Errorf("invalid shard type: %s (expected one of: dstore, lstore, protocol)", shardType)
		}

		shards = append(shards, common.ServerShard{
			ShardID: shardID,
			Type:    shardType,
		})
	}
	return shards, nil
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = cmdUtil.HashString(id)
	} else if serveCmdConfig.HasRemoteShard() {
		// error only if cluster mode
		return fmt.Errorf("ReplicaId is required for remote shards")
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		members, err := cmdUtil.ParseKeyValueList(clusterMembers)
		if err != nil {
			return fmt.Errorf("invalid cluster members: %w", err)
		}
		serveCmdConfig.ClusterMembers = make(map[uint64]string, len(members))
		for name, address := range members {
			serveCmdConfig.ClusterMembers[cmdUtil.HashString(name)] = address
		}
	} else if serveCmdConfig.HasRemoteShard() {
		// error only if cluster mode
		return fmt.Errorf("ClusterMembers is required for remote shards")
	}

	// test if the replica id is in the cluster members (only for cluster mode)
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok && serveCmdConfig.HasRemoteShard() {
		return fmt.Errorf("no address found for replica ID %d in cluster members", serveCmdConfig.ReplicaID)
	}

	if serveCmdConfig.HasProtocolShard() {
		return processLogViewConfig()
	}
	return nil
}

// processLogViewConfig reads the settings of the protocol shard
func processLogViewConfig() error {
	lv := &serveCmdConfig.LogView

	lv.ClusterID = viper.GetString("cluster-id")
	if lv.ClusterID == "" {
		return fmt.Errorf("ClusterID is required for a protocol shard")
	}

	clusters, err := cmdUtil.ParseKeyValueList(viper.GetString("clusters"))
	if err != nil {
		return fmt.Errorf("invalid clusters: %w", err)
	}
	if len(clusters) == 0 {
		// a single cluster reaches itself
		clusters[lv.ClusterID] = serveCmdConfig.Transport.Endpoint
	}
	if _, ok := clusters[lv.ClusterID]; !ok {
		return fmt.Errorf("cluster %s is missing in the clusters list", lv.ClusterID)
	}
	lv.Clusters = clusters

	lv.StoreShard = viper.GetUint64("counter-store-shard")
	lv.StoreEndpoints = nil
	if endpoints := viper.GetString("counter-store-endpoints"); endpoints != "" {
		lv.StoreEndpoints = strings.Split(endpoints, ",")
	}
	lv.Codec = viper.GetString("codec")
	return nil
}

// run starts the dLV server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPServerTransport(64 * 1024)
	case "unix":
		t = unix.NewUnixServerTransport(64 * 1024)
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	clientTransport, err := cmdUtil.GetTransportFactory()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
		clientTransport,
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serv.Serve()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-serveErr:
		// Release what init created even if listening failed
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(err, serv.Stop(ctx))
	case sig := <-signals:
		server.Logger.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := serv.Stop(ctx); err != nil {
		return err
	}
	return <-serveErr
}
