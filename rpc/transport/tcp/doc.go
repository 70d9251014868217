// Package tcp implements the tcp socket transport of the rpc layer. It provides the
// tcp specific connectors for the base package, which contains the framing, connection
// pooling and request correlation (see its documentation).
//
// Key Components:
//
//   - clientConnector: tcp implementation of base.IClientConnector
//
//   - serverConnector: tcp implementation of base.IServerConnector
//
// Both connectors apply the socket options of SocketConf and TCPConf (no delay,
// buffer sizes, keep-alive, linger) to every connection.
//
// The default server buffer size is 512 KB.
package tcp
