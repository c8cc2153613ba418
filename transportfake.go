package mtphost

import (
	"context"
	"sync"
)

// fakeTransport is an in-memory Transport used by tests to drive the
// link/session/transfer engines without real hardware.
//
// The fake models a single outstanding exchange at a time: a test
// queues up scripted responses (one []byte, or an error, per expected
// read) via queueBulkIn/queueInterruptIn, and the code under test
// drives BulkOut/BulkIn/InterruptIn against them.
type fakeTransport struct {
	mu sync.Mutex

	claimed bool
	claimErr error

	bulkOutLog [][]byte
	bulkIn     [][]byte // FIFO of scripted bulk-in reads
	bulkInErr  []error  // parallel FIFO of errors, nil for no error

	interruptIn    [][]byte
	interruptInErr []error

	stallNext      bool // next BulkIn call reports a stall, consuming no queued entry
	clearHaltCalls int
	resetCalls     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Claim(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimed = true
	return nil
}

func (f *fakeTransport) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = false
	return nil
}

func (f *fakeTransport) BulkOut(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.bulkOutLog = append(f.bulkOutLog, cp)
	return len(p), nil
}

func (f *fakeTransport) BulkIn(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stallNext {
		f.stallNext = false
		return 0, ErrTransportStall
	}

	if len(f.bulkIn) == 0 {
		return 0, ErrTransportIO
	}

	next := f.bulkIn[0]
	f.bulkIn = f.bulkIn[1:]

	var err error
	if len(f.bulkInErr) > 0 {
		err = f.bulkInErr[0]
		f.bulkInErr = f.bulkInErr[1:]
	}
	if err != nil {
		return 0, err
	}

	n := copy(p, next)
	return n, nil
}

func (f *fakeTransport) InterruptIn(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.interruptIn) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return 0, ctx.Err()
	}

	next := f.interruptIn[0]
	f.interruptIn = f.interruptIn[1:]

	var err error
	if len(f.interruptInErr) > 0 {
		err = f.interruptInErr[0]
		f.interruptInErr = f.interruptInErr[1:]
	}
	if err != nil {
		return 0, err
	}

	n := copy(p, next)
	return n, nil
}

func (f *fakeTransport) ClearHalt(ctx context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearHaltCalls++
	return nil
}

func (f *fakeTransport) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	return nil
}

func (f *fakeTransport) queueBulkIn(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkIn = append(f.bulkIn, b)
	f.bulkInErr = append(f.bulkInErr, nil)
}

func (f *fakeTransport) queueBulkInErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkIn = append(f.bulkIn, nil)
	f.bulkInErr = append(f.bulkInErr, err)
}

// queueStallThenRecover arranges for the next BulkIn call to report a
// stall, and the one after that to return recovered — modeling a
// client that clears the halt and retries.
func (f *fakeTransport) queueStallThenRecover(recovered []byte) {
	f.mu.Lock()
	f.stallNext = true
	f.mu.Unlock()
	f.queueBulkIn(recovered)
}
