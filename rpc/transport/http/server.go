package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/transport"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	// maxBodySize limits the size of a single request
	maxBodySize = 64 * 1024 * 1024
	// shutdownTimeout bounds the graceful shutdown in Close
	shutdownTimeout = 5 * time.Second
)

var (
	requestsTotal   = vmetrics.NewCounter(`dlv_rpc_requests_total{transport="http"}`)
	requestErrors   = vmetrics.NewCounter(`dlv_rpc_request_errors_total{transport="http"}`)
	requestDuration = vmetrics.NewHistogram(`dlv_rpc_request_duration_seconds{transport="http"}`)
)

// NewHttpServerTransport creates a new server transport that serves POST /{shardId}
func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{}
}

type httpServerTransport struct {
	handler transport.ServerHandleFunc

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{shardId}", t.serveShard)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.server = &http.Server{
		Addr:              config.Transport.Endpoint,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if config.TimeoutSecond > 0 {
		t.server.WriteTimeout = time.Duration(config.TimeoutSecond) * time.Second
	}
	server := t.server
	t.mu.Unlock()

	Logger.Infof("Starting HTTP server on %s", config.Transport.Endpoint)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *httpServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return t.server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// serveShard passes the body of a request to the handler and writes its response
func (t *httpServerTransport) serveShard(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestsTotal.Inc()
	defer requestDuration.UpdateDuration(start)

	status, err := t.process(w, r)
	if err != nil {
		requestErrors.Inc()
		Logger.Debugf("%s %s => %d: %v", r.Method, r.URL.Path, status, err)
		http.Error(w, err.Error(), status)
		return
	}
	Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, status, time.Since(start))
}

// process handles a single request, on failure it returns the status code to reply with
func (t *httpServerTransport) process(w http.ResponseWriter, r *http.Request) (int, error) {
	shardId, err := strconv.ParseUint(r.PathValue("shardId"), 10, 64)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("invalid shard id %q", r.PathValue("shardId"))
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request exceeds %d bytes", maxBodySize)
		}
		return http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err)
	}

	resp := t.handler(shardId, body)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(resp)))
	if _, err = w.Write(resp); err != nil {
		// the header is already sent, only log
		Logger.Errorf("Failed to write response for shard %d: %v", shardId, err)
	}
	return http.StatusOK, nil
}
