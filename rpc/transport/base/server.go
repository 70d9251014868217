package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/transport"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport accepts connections and hands every connection to a serverConn
type serverTransport struct {
	connector IServerConnector
	handler   transport.ServerHandleFunc
	buffers   *sync.Pool
	workers   int

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	conns    *xsync.MapOf[net.Conn, struct{}]
}

// serverConn processes the requests of one connection with a bounded number of workers.
// Responses may be written out of order, the request id lets the client match them.
type serverConn struct {
	net.Conn
	parent   *serverTransport
	timeout  time.Duration
	slots    chan struct{}
	inflight sync.WaitGroup
	writeMu  sync.Mutex

	requests *vmetrics.Counter
	duration *vmetrics.Histogram
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport. Every connection processes up to
// maxWorkersPerConn requests concurrently, request payloads are read into pooled buffers of
// bufferSize bytes.
func NewBaseServerTransport(connector IServerConnector, bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		workers:   max(maxWorkersPerConn, 1),
		conns:     xsync.NewMapOf[net.Conn, struct{}](),
		buffers: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if config.Transport.WorkersPerConn > 0 {
		t.workers = config.Transport.WorkersPerConn
	}

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return listener.Close()
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Transport.Endpoint, t.workers)

	for {
		conn, err := listener.Accept()
		switch {
		case errors.Is(err, net.ErrClosed):
			return nil
		case err != nil:
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		t.conns.Store(conn, struct{}{})
		go t.newServerConn(conn, config).serve()
	}
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})
	return err
}

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

func (t *serverTransport) newServerConn(conn net.Conn, config common.ServerConfig) *serverConn {
	name := t.connector.GetName()
	return &serverConn{
		Conn:     conn,
		parent:   t,
		timeout:  time.Duration(config.TimeoutSecond) * time.Second,
		slots:    make(chan struct{}, t.workers),
		requests: vmetrics.GetOrCreateCounter(fmt.Sprintf(`dlv_rpc_requests_total{transport=%q}`, name)),
		duration: vmetrics.GetOrCreateHistogram(fmt.Sprintf(`dlv_rpc_request_duration_seconds{transport=%q}`, name)),
	}
}

// serve reads requests until the connection fails or is closed. Idle connections are kept
// open, the client detects dead peers through its own request timeouts.
func (c *serverConn) serve() {
	defer func() {
		// the connection is closed only after all responses are written
		c.inflight.Wait()
		c.parent.conns.Delete(c.Conn)
		_ = c.Close()
	}()

	for {
		buf := c.parent.buffers.Get().([]byte)
		shardID, requestID, data, err := readFrame(c.Conn, buf)
		if err != nil {
			c.parent.buffers.Put(buf)
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				Logger.Debugf("Connection from %s closed", c.RemoteAddr())
			} else {
				Logger.Errorf("Error reading request from %s: %v", c.RemoteAddr(), err)
			}
			return
		}

		// blocks while all workers of this connection are busy
		c.slots <- struct{}{}
		c.inflight.Add(1)
		go func() {
			defer func() {
				c.parent.buffers.Put(buf)
				<-c.slots
				c.inflight.Done()
			}()
			c.process(shardID, requestID, data)
		}()
	}
}

// process runs the handler for one request and writes the response frame
func (c *serverConn) process(shardID, requestID uint64, data []byte) {
	start := time.Now()
	resp := c.parent.handler(shardID, data)
	c.requests.Inc()
	c.duration.UpdateDuration(start)
	Logger.Debugf("Processed request %d for shard %d in %s", requestID, shardID, time.Since(start))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			Logger.Errorf("Failed to set write deadline: %v", err)
			return
		}
	}
	if err := writeFrame(c.Conn, shardID, requestID, resp); err != nil {
		Logger.Errorf("Failed to write response %d: %v", requestID, err)
	}
}
