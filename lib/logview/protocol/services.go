package protocol

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("logview/protocol")

// IServices is provided by the runtime to the adaptor of one entity.
type IServices interface {
	// EntityID returns the id of the entity the services belong to.
	EntityID() string
	// MyClusterID returns the id of the local cluster.
	MyClusterID() string
	// MultiClusterConfiguration returns the current configuration.
	MultiClusterConfiguration() MultiClusterConfiguration
	// ActiveClusters returns the clusters that currently serve the entity (including the local one).
	ActiveClusters() []string
	// SendMessage sends msg to the adaptor of the same entity in targetCluster and returns its response.
	SendMessage(ctx context.Context, msg *Message, targetCluster string) (*Message, error)

	// ProtocolError reports a violation of the protocol and returns it as an error.
	ProtocolError(format string, args ...any) error
	// CaughtException reports an unexpected error caught in the adaptor.
	CaughtException(where string, err error)
	// CaughtViewUpdateException reports an error (or panic) of the host's transition function.
	CaughtViewUpdateException(where string, err error)
}

// IHandler is implemented by adaptors to receive messages from other clusters.
type IHandler interface {
	OnProtocolMessageReceived(ctx context.Context, msg *Message) (*Message, error)
}

// --------------------------------------------------------------------------
// Base Services
// --------------------------------------------------------------------------

// BaseServices implements the reporting part of IServices by logging. It is meant to be embedded
// by implementations of IServices.
type BaseServices struct {
	Entity  string
	Cluster string
}

// EntityID (docu see IServices.EntityID)
func (b *BaseServices) EntityID() string {
	return b.Entity
}

// MyClusterID (docu see IServices.MyClusterID)
func (b *BaseServices) MyClusterID() string {
	return b.Cluster
}

// ProtocolError (docu see IServices.ProtocolError)
func (b *BaseServices) ProtocolError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	log.Errorf("[%s@%s] protocol error: %s", b.Entity, b.Cluster, msg)
	return errors.Newf("protocol error: %s", msg)
}

// CaughtException (docu see IServices.CaughtException)
func (b *BaseServices) CaughtException(where string, err error) {
	log.Errorf("[%s@%s] caught exception in %s: %v", b.Entity, b.Cluster, where, err)
}

// CaughtViewUpdateException (docu see IServices.CaughtViewUpdateException)
func (b *BaseServices) CaughtViewUpdateException(where string, err error) {
	log.Errorf("[%s@%s] caught view update exception in %s: %v", b.Entity, b.Cluster, where, err)
}
