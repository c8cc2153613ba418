package mtphost

import (
	"context"
	"math/rand"
	"time"

	"mtphost/logx"
)

// request is one queued unit of work for the session loop: a single PTP
// operation, run through the busy-backoff loop. Compound operations
// (enumeration, transfer) queue one request per exchange, so requests
// from other callers can run between their steps.
type request struct {
	fn   func(ctx context.Context) (Container, []byte, error)
	resp chan requestResult
}

type requestResult struct {
	c    Container
	data []byte
	err  error
}

// Session is the actor owning a single device: one goroutine drains
// its request queue, so at most one transaction is ever in flight,
// matching the device's own single-outstanding-transaction contract.
type Session struct {
	link     *link
	identity StableIdentity
	tuning   EffectiveTuning
	info     DeviceInfo

	queue  chan request
	done   chan struct{}
	events *eventPump
	log    *logx.Logger
}

// OpenOptions configures how a session is brought up.
type OpenOptions struct {
	Tuning TuningOverride
	Quirk  *QuirkEntry
}

// Open runs the quirk-aware open sequence: claim, resolve policy from
// opts, reset (unless the resolved tuning sets SkipReset), the
// post-claim stabilize delay, GetDeviceInfo, stabilize, OpenSession
// (SessionAlreadyOpen is accepted), stabilize again, then start the
// event pump. Policy is resolved before GetDeviceInfo, so nothing the
// device reports, its serial number included, takes part in it. It
// returns a live Session or the first error encountered, having
// released the interface on failure.
func Open(ctx context.Context, t Transport, fp Fingerprint, opts OpenOptions) (*Session, error) {
	if err := t.Claim(ctx); err != nil {
		return nil, translateTransportErr(err, "claim")
	}

	var quirkOverride *TuningOverride
	if opts.Quirk != nil {
		quirkOverride = &opts.Quirk.Tuning
	}
	tuning := ResolvePolicy(nil, quirkOverride, &opts.Tuning)

	if !tuning.SkipReset {
		if err := t.Reset(ctx); err != nil {
			t.Release()
			return nil, translateTransportErr(err, "reset")
		}
	}

	sleepCtx(ctx, tuning.PostClaimStabilize)

	l := newLink(t, tuning.IOTimeout)

	handshakeCtx, cancel := context.WithTimeout(ctx, tuning.HandshakeTimeout)
	resp, payload, err := l.exchange(handshakeCtx, OpGetDeviceInfo, nil, nil)
	cancel()
	if err != nil {
		t.Release()
		return nil, err
	}
	if err := checkOK(resp, OpGetDeviceInfo); err != nil {
		t.Release()
		return nil, err
	}

	info, err := decodeDeviceInfo(payload)
	if err != nil {
		t.Release()
		return nil, err
	}

	identity := NewStableIdentity(fp, info.SerialNumber)

	sleepCtx(ctx, tuning.StabilizeDelay)

	openCtx, cancel := context.WithTimeout(ctx, tuning.HandshakeTimeout)
	resp, _, err = l.exchange(openCtx, OpOpenSession, []uint32{1}, nil)
	cancel()
	if err != nil {
		t.Release()
		return nil, err
	}
	if resp.Code != RespOK && resp.Code != RespSessionAlreadyOpen {
		t.Release()
		return nil, classifyResponse(resp.Code, "OpenSession")
	}

	sleepCtx(ctx, tuning.StabilizeDelay)

	s := &Session{
		link:     l,
		identity: identity,
		tuning:   tuning,
		info:     info,
		queue:    make(chan request, 16),
		done:     make(chan struct{}),
		log:      logx.Default.WithPrefix("[" + identity.String() + "] "),
	}
	s.log.Infof("session opened: %s", identity.String())

	go s.loop()

	s.events = newEventPump(t, s)
	s.events.start()

	return s, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func checkOK(c Container, op uint16) error {
	if c.Type != ContainerResponse {
		return &Protocol{Message: "expected response container"}
	}
	if c.Code != RespOK {
		return classifyResponse(c.Code, opName(op))
	}
	return nil
}

func opName(op uint16) string {
	switch op {
	case OpGetDeviceInfo:
		return "GetDeviceInfo"
	case OpOpenSession:
		return "OpenSession"
	case OpGetObjectInfo:
		return "GetObjectInfo"
	case OpGetObjectHandles:
		return "GetObjectHandles"
	case OpGetObjectPropList:
		return "GetObjectPropList"
	case OpDeleteObject:
		return "DeleteObject"
	case OpMoveObject:
		return "MoveObject"
	default:
		return "operation"
	}
}

// loop is the session's single worker goroutine: it drains queue
// strictly in order, so callers never need their own locking around
// do().
func (s *Session) loop() {
	for {
		select {
		case req := <-s.queue:
			c, data, err := req.fn(context.Background())
			req.resp <- requestResult{c: c, data: data, err: err}
		case <-s.done:
			return
		}
	}
}

// do runs one PTP operation through the busy-backoff loop and returns
// its response container and any data-phase payload. It implements
// enumExecutor so enum.go and transfer.go can depend on Session
// directly.
func (s *Session) do(ctx context.Context, code uint16, params []uint32, dataOut []byte) (Container, []byte, error) {
	result := make(chan requestResult, 1)
	s.queue <- request{
		resp: result,
		fn: func(bg context.Context) (Container, []byte, error) {
			return s.doWithBackoff(ctx, code, params, dataOut)
		},
	}
	r := <-result
	return r.c, r.data, r.err
}

func (s *Session) doWithBackoff(ctx context.Context, code uint16, params []uint32, dataOut []byte) (Container, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.tuning.BusyRetries; attempt++ {
		resp, data, err := s.link.exchange(ctx, code, params, dataOut)
		if err != nil {
			return Container{}, nil, err
		}

		if resp.Type == ContainerResponse && isRetryableBusy(resp.Code) {
			lastErr = classifyResponse(resp.Code, opName(code))
			if attempt == s.tuning.BusyRetries {
				break
			}
			delay := busyBackoffDelay(attempt)
			s.log.Debugf("busy (0x%04x) on %s, retrying in %s", resp.Code, opName(code), delay)
			sleepCtx(ctx, delay)
			continue
		}

		if resp.Code != RespOK {
			return resp, data, classifyResponse(resp.Code, opName(code))
		}
		return resp, data, nil
	}
	return Container{}, nil, lastErr
}

// busyBackoffDelay computes an exponential backoff with jitter for
// busy-retry attempt n (0-indexed), bounded to
// [busyBackoffMinDelay, busyBackoffMaxDelay].
func busyBackoffDelay(attempt int) time.Duration {
	base := time.Duration(DefaultBusyBaseMs) * time.Millisecond
	d := base << attempt
	jitter := 1 + (rand.Float64()*2-1)*DefaultBusyJitter
	d = time.Duration(float64(d) * jitter)
	if d < busyBackoffMinDelay {
		d = busyBackoffMinDelay
	}
	if d > busyBackoffMaxDelay {
		d = busyBackoffMaxDelay
	}
	return d
}

// supports reports whether op is in the device's OperationsSupported
// set.
func (s *Session) supports(op uint16) bool {
	return s.info.SupportsOperation(op)
}

// Identity returns the session's stable identity.
func (s *Session) Identity() StableIdentity { return s.identity }

// Tuning returns the resolved effective tuning.
func (s *Session) Tuning() EffectiveTuning { return s.tuning }

// DeviceInfo returns the device info captured at open time.
func (s *Session) DeviceInfo() DeviceInfo { return s.info }

// Close closes the PTP session and stops the actor loop. It does not
// release the Transport; callers that own the Transport should Release
// it themselves after Close returns.
func (s *Session) Close(ctx context.Context) error {
	s.events.stop()
	_, _, err := s.do(ctx, OpCloseSession, nil, nil)
	close(s.done)
	return err
}

// Delete deletes the object identified by handle. If recursive is set
// and the object is an Association (folder), its children are deleted
// depth-first first; a child failure doesn't stop the walk, so the
// tree is reclaimed on a best-effort basis, but is reported back to
// the caller once the folder itself has been removed.
func (s *Session) Delete(ctx context.Context, handle uint32, recursive bool) error {
	var childErr error
	if recursive {
		childErr = s.deleteChildren(ctx, handle)
	}

	resp, _, err := s.do(ctx, OpDeleteObject, []uint32{handle, 0}, nil)
	if err != nil {
		return err
	}
	if err := checkOK(resp, OpDeleteObject); err != nil {
		return err
	}
	return childErr
}

// deleteChildren recursively deletes handle's children, depth-first,
// when handle is an Association. It continues past a failed child
// rather than aborting, returning the first error encountered (if any)
// once every child has been attempted.
func (s *Session) deleteChildren(ctx context.Context, handle uint32) error {
	info, err := s.ObjectInfo(ctx, handle)
	if err != nil || info.ObjectFormat != FormatAssociation {
		return nil
	}

	children, err := s.listChildren(ctx, info.StorageID, handle)
	if err != nil {
		return err
	}

	var firstErr error
	for _, c := range children {
		if err := s.Delete(ctx, c.Handle, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Move moves handle to newParent on storageID. Per design, this
// never emulates MoveObject via copy+delete: if the device doesn't
// support MoveObject, it returns NotSupported.
func (s *Session) Move(ctx context.Context, handle, storageID, newParent uint32) error {
	if !s.supports(OpMoveObject) {
		return &NotSupported{Op: "MoveObject"}
	}
	resp, _, err := s.do(ctx, OpMoveObject, []uint32{handle, storageID, newParent}, nil)
	if err != nil {
		return err
	}
	return checkOK(resp, OpMoveObject)
}

// StorageIDs returns every storage ID the device currently exposes.
func (s *Session) StorageIDs(ctx context.Context) ([]uint32, error) {
	_, payload, err := s.do(ctx, OpGetStorageIDs, nil, nil)
	if err != nil {
		return nil, err
	}
	ids, _, ok := decodeU16ArrayAsU32(payload)
	if !ok {
		return nil, truncated("StorageIDs")
	}
	return ids, nil
}

// StorageInfo returns the StorageInfo dataset for a storage ID.
func (s *Session) StorageInfo(ctx context.Context, storageID uint32) (StorageInfo, error) {
	_, payload, err := s.do(ctx, OpGetStorageInfo, []uint32{storageID}, nil)
	if err != nil {
		return StorageInfo{}, err
	}
	return decodeStorageInfo(payload)
}

// ObjectInfo returns the ObjectInfo dataset for a handle.
func (s *Session) ObjectInfo(ctx context.Context, handle uint32) (ObjectInfo, error) {
	_, payload, err := s.do(ctx, OpGetObjectInfo, []uint32{handle}, nil)
	if err != nil {
		return ObjectInfo{}, err
	}
	return decodeObjectInfo(payload)
}
