package mtphost

import (
	"context"
	"time"
)

// link drives one Transport through the command/data/response
// discipline of a single PTP transaction. It owns transaction-id
// assignment and stall recovery; it knows nothing about sessions,
// busy-retry, or quirk policy — that's session.go's job.
type link struct {
	t   Transport
	txn uint32 // last transaction id assigned; 0 is reserved for session-less ops

	ioTimeout time.Duration
}

func newLink(t Transport, ioTimeout time.Duration) *link {
	if ioTimeout <= 0 {
		ioTimeout = DefaultIOTimeout
	}
	return &link{t: t, ioTimeout: ioTimeout}
}

// nextTxn returns a fresh, monotonically increasing transaction id.
// 0 is skipped: some devices treat a 0 transaction id as "no session."
func (l *link) nextTxn() uint32 {
	l.txn++
	if l.txn == 0 {
		l.txn = 1
	}
	return l.txn
}

// exchange runs one full transaction: send the command container
// (optionally followed by an outbound data phase), then read either an
// inbound data phase followed by the response, or the response
// directly. dataOut is nil for operations with no outbound data phase.
// dataIn receives the inbound payload, or nil if the operation has no
// data phase in that direction.
func (l *link) exchange(ctx context.Context, code uint16, params []uint32, dataOut []byte) (resp Container, dataIn []byte, err error) {
	txn := l.nextTxn()

	if err := l.sendWithStallRecovery(ctx, encodeCommand(code, txn, params)); err != nil {
		return Container{}, nil, err
	}

	if dataOut != nil {
		header := encodeDataHeader(code, txn, len(dataOut))
		if err := l.sendWithStallRecovery(ctx, append(header, dataOut...)); err != nil {
			return Container{}, nil, err
		}
	}

	first, err := l.readContainerWithStallRecovery(ctx)
	if err != nil {
		return Container{}, nil, err
	}

	switch first.Type {
	case ContainerResponse:
		return first, nil, nil
	case ContainerData:
		dataIn = first.Payload
		resp, err = l.readResponse(ctx)
		if err != nil {
			return Container{}, nil, err
		}
		return resp, dataIn, nil
	default:
		return Container{}, nil, &Protocol{Message: "unexpected container type in response position"}
	}
}

// readResponse reads exactly one response container, with stall
// recovery but no further data-phase handling.
func (l *link) readResponse(ctx context.Context) (Container, error) {
	c, err := l.readContainerWithStallRecovery(ctx)
	if err != nil {
		return Container{}, err
	}
	if c.Type != ContainerResponse {
		return Container{}, &Protocol{Message: "expected response container"}
	}
	return c, nil
}

func (l *link) sendWithStallRecovery(ctx context.Context, buf []byte) error {
	_, err := l.t.BulkOut(ctx, buf)
	if err == ErrTransportStall {
		if clearErr := l.t.ClearHalt(ctx, "out"); clearErr != nil {
			return clearErr
		}
		_, err = l.t.BulkOut(ctx, buf)
	}
	return translateTransportErr(err, "bulk-out")
}

// readContainerWithStallRecovery reads one complete container
// (header, then payload/parameters sized by the header's length
// field), recovering once from a stalled bulk-in endpoint.
func (l *link) readContainerWithStallRecovery(ctx context.Context) (Container, error) {
	c, err := l.readContainer(ctx)
	if err == ErrTransportStall {
		if clearErr := l.t.ClearHalt(ctx, "in"); clearErr != nil {
			return Container{}, clearErr
		}
		c, err = l.readContainer(ctx)
	}
	if err != nil {
		return Container{}, translateTransportErr(err, "bulk-in")
	}
	return c, nil
}

// maxBulkInChunk is the size of one bulk-in read call; headers and
// small responses always fit in one, and data-phase payloads are read
// in a loop until length bytes have been collected.
const maxBulkInChunk = 512 * 1024

func (l *link) readContainer(ctx context.Context) (Container, error) {
	first := make([]byte, maxBulkInChunk)
	n, err := l.t.BulkIn(ctx, first)
	if err != nil {
		return Container{}, err
	}
	if n < ContainerHeaderSize {
		if err := l.readFull(ctx, first[n:ContainerHeaderSize]); err != nil {
			return Container{}, err
		}
		n = ContainerHeaderSize
	}

	length, ctype, code, txn, ok := decodeContainerHeader(first[:ContainerHeaderSize])
	if !ok {
		return Container{}, &Protocol{Message: "malformed container header"}
	}
	if length < ContainerHeaderSize {
		return Container{}, &Protocol{Message: "container length shorter than header"}
	}

	rest := make([]byte, length-ContainerHeaderSize)
	if got := copy(rest, first[ContainerHeaderSize:n]); got < len(rest) {
		if err := l.readFull(ctx, rest[got:]); err != nil {
			return Container{}, err
		}
	}

	c := Container{Type: ctype, Code: code, TransactionID: txn}
	switch ctype {
	case ContainerData:
		c.Payload = rest
	default:
		params := make([]uint32, 0, len(rest)/4)
		for o := 0; o+4 <= len(rest); o += 4 {
			p, _ := decodeU32(rest, o)
			params = append(params, p)
		}
		c.Params = params
	}
	return c, nil
}

// readFull reads exactly len(p) bytes from the bulk-in endpoint,
// issuing further BulkIn calls as needed. A zero-length read with no
// error (a ZLP) is a legitimate terminator the device sends after a
// payload that's an exact multiple of the endpoint's max packet size;
// if it arrives before p is full, that's a protocol error.
func (l *link) readFull(ctx context.Context, p []byte) error {
	got := 0
	for got < len(p) {
		n, err := l.t.BulkIn(ctx, p[got:])
		if err != nil {
			return err
		}
		if n == 0 {
			return &Protocol{Message: "short read: zero-length packet before container complete"}
		}
		got += n
	}
	return nil
}

func translateTransportErr(err error, phase string) error {
	if err == nil {
		return nil
	}
	switch err {
	case ErrTransportStall:
		return ErrStall
	case ErrNoDevice:
		return ErrDisconnected
	case ErrAccessDenied:
		return ErrPermissionDenied
	}
	if t, ok := err.(interface{ Timeout() bool }); ok && t.Timeout() {
		return &Timeout{Phase: phase}
	}
	return err
}
