package primary

import (
	"fmt"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/codec"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/cockroachdb/errors"
)

// ViewOps bundles the operations on views and entries that are shared by the adaptor and its
// backend: applying entries (with failure isolation), copying views and encoding.
type ViewOps[V, E any] struct {
	Host     logview.IViewHost[V, E]
	Codec    codec.ICodec
	Services protocol.IServices

	// onTransitionFailure is called for every failed transition (used for statistics)
	onTransitionFailure func()
}

// NewViewOps creates the view operations for host. If c is nil the default codec is used.
func NewViewOps[V, E any](host logview.IViewHost[V, E], c codec.ICodec, services protocol.IServices) *ViewOps[V, E] {
	if c == nil {
		c = codec.Default()
	}
	return &ViewOps[V, E]{Host: host, Codec: c, Services: services}
}

// NewView returns the view of an empty log
func (o *ViewOps[V, E]) NewView() V {
	return o.Host.NewView()
}

// Copy returns a deep copy of view. If the copy fails, the error is reported and view itself
// is returned.
func (o *ViewOps[V, E]) Copy(view V) V {
	if copier, ok := o.Host.(logview.IViewCopier[V]); ok {
		return copier.CopyView(view)
	}
	copied, err := codec.Copy(o.Codec, view)
	if err != nil {
		o.Services.CaughtException("copy view", err)
		return view
	}
	return copied
}

// Apply applies entries to view in order and returns the resulting view together with the
// number of failed transitions. Failed transitions are reported and skipped.
func (o *ViewOps[V, E]) Apply(view V, entries []E, where string) (V, int) {
	failed := 0
	for _, entry := range entries {
		next, err := o.applyOne(view, entry)
		if err != nil {
			failed++
			o.Services.CaughtViewUpdateException(where, err)
			if o.onTransitionFailure != nil {
				o.onTransitionFailure()
			}
			continue
		}
		view = next
	}
	return view, failed
}

// applyOne calls the transition function and converts panics into errors
func (o *ViewOps[V, E]) applyOne(view V, entry E) (result V, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = view
			err = logview.TransitionError(errors.Newf("panic: %v", r), "apply entry %v", entry)
		}
	}()
	next, err := o.Host.ApplyEntry(view, entry)
	if err != nil {
		return view, logview.TransitionError(err, "apply entry %v", entry)
	}
	return next, nil
}

// EncodeView encodes a view with the codec
func (o *ViewOps[V, E]) EncodeView(view V) ([]byte, error) {
	return o.Codec.Marshal(view)
}

// DecodeView decodes a view with the codec
func (o *ViewOps[V, E]) DecodeView(data []byte) (V, error) {
	return codec.Decode[V](o.Codec, data)
}

// EncodeEntries encodes entries with the codec
func (o *ViewOps[V, E]) EncodeEntries(entries []E) ([][]byte, error) {
	return codec.EncodeAll(o.Codec, entries)
}

// DecodeEntries decodes entries with the codec
func (o *ViewOps[V, E]) DecodeEntries(data [][]byte) ([]E, error) {
	entries, err := codec.DecodeAll[E](o.Codec, data)
	if err != nil {
		return nil, fmt.Errorf("decode entries (%s): %w", o.Codec.Name(), err)
	}
	return entries, nil
}
