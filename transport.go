package mtphost

import (
	"context"
	"errors"
	"time"
)

// Transport is the USB transport contract the link layer drives. It is
// deliberately narrow: claim/release the interface, move bytes on the
// bulk pair, poll the interrupt-in endpoint for events, and recover
// from a stall. Anything above this — transaction framing, retries,
// backoff — lives in link.go and session.go, never here.
//
// Implementations must be safe for BulkIn/BulkOut/InterruptIn to be
// called from different goroutines than Claim/Release/ClearHalt/Reset.
// BulkIn and BulkOut are never called concurrently with each other (the
// session actor guarantees at most one transaction in flight per
// device), but the session's event pump calls InterruptIn from its own
// goroutine, concurrently with them.
type Transport interface {
	// Claim acquires exclusive access to the device's MTP interface.
	Claim(ctx context.Context) error

	// Release gives up the interface claimed by Claim.
	Release() error

	// BulkOut writes p to the bulk-out endpoint, returning the number
	// of bytes written. A short write without an error is not possible;
	// implementations must either write all of p or return an error.
	BulkOut(ctx context.Context, p []byte) (n int, err error)

	// BulkIn reads into p from the bulk-in endpoint, returning the
	// number of bytes read. Unlike io.Reader, a zero-length read with
	// nil error is a valid, meaningful result (a ZLP) and must be
	// returned as such rather than retried internally.
	BulkIn(ctx context.Context, p []byte) (n int, err error)

	// InterruptIn reads one interrupt-in packet into p, blocking until
	// one arrives or ctx is done.
	InterruptIn(ctx context.Context, p []byte) (n int, err error)

	// ClearHalt clears a stall condition on the given endpoint
	// direction ("in" or "out") of the bulk pair.
	ClearHalt(ctx context.Context, dir string) error

	// Reset performs a USB port/device reset. Open calls it before the
	// handshake unless the resolved tuning sets SkipReset. The link
	// layer's stall recovery does not call it: a stall that persists
	// after one ClearHalt is returned to the caller.
	Reset(ctx context.Context) error
}

// Transport-level errors. The link layer maps these onto the error
// taxonomy in errors.go; Transport implementations should return these
// values themselves rather than inventing their own sentinels. The link
// layer compares errors against them with ==, so a wrapped sentinel is
// passed through unmapped.
var (
	ErrNoDevice      = errors.New("transport: no such device")
	ErrAccessDenied  = errors.New("transport: access denied")
	ErrTransportStall = errors.New("transport: endpoint stalled")
	ErrTransportIO   = errors.New("transport: I/O error")
)

// TransportTimeout is returned by a Transport method when the
// operation's own deadline (distinct from ctx's) elapses first.
type TransportTimeout struct {
	Dir string // "in", "out", "interrupt"
}

func (e *TransportTimeout) Error() string {
	return "transport: timed out waiting for " + e.Dir
}

func (e *TransportTimeout) Timeout() bool { return true }

// defaultEndpointTimeout is a per-call bound for a single bulk or
// interrupt call. Neither the link layer nor GousbTransport applies it;
// their calls are bounded only by the ctx they are given.
const defaultEndpointTimeout = 2 * time.Second
