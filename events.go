package mtphost

import (
	"context"
	"sync"
	"time"
)

// EventCode identifies a PTP event container's code; callers match
// against these rather than the raw uint16 to keep the parsed-event
// surface stable if more codes are added.
type EventCode uint16

// Standard PTP event codes relevant here.
const (
	EventObjectAdded         EventCode = 0x4002
	EventObjectRemoved       EventCode = 0x4003
	EventStoreAdded          EventCode = 0x4004
	EventStoreRemoved        EventCode = 0x4005
	EventDevicePropChanged   EventCode = 0x4006
	EventStoreFull           EventCode = 0x400A
	EventDeviceReset         EventCode = 0x4014
)

// Event is a decoded interrupt-in notification.
type Event struct {
	Code   EventCode
	Params []uint32
	At     time.Time
}

// eventPump polls the interrupt-in endpoint in the background and
// delivers decoded events to subscribers, coalescing duplicate
// (code, params) pairs that arrive within EventCoalesceWindow — a
// device that fires the same ObjectAdded notification twice in quick
// succession should only be reported once.
type eventPump struct {
	t Transport
	s *Session

	mu   sync.Mutex
	subs []chan Event

	lastCode   EventCode
	lastParams [MaxParams]uint32
	lastAt     time.Time

	cancel context.CancelFunc
	stopped chan struct{}
}

func newEventPump(t Transport, s *Session) *eventPump {
	return &eventPump{t: t, s: s}
}

// Subscribe registers a channel to receive future events. The
// returned channel is buffered; a slow consumer drops events rather
// than blocking the pump.
func (p *eventPump) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

func (p *eventPump) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.stopped = make(chan struct{})
	go p.run(ctx)
}

func (p *eventPump) stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.stopped
}

func (p *eventPump) run(ctx context.Context) {
	defer close(p.stopped)
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := p.t.InterruptIn(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if n < ContainerHeaderSize {
			continue
		}

		ev, ok := decodeEvent(buf[:n])
		if !ok {
			continue
		}

		if p.coalesced(ev) {
			continue
		}

		p.mu.Lock()
		subs := make([]chan Event, len(p.subs))
		copy(subs, p.subs)
		p.mu.Unlock()

		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (p *eventPump) coalesced(ev Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	var params [MaxParams]uint32
	copy(params[:], ev.Params)

	if ev.Code == p.lastCode && params == p.lastParams && ev.At.Sub(p.lastAt) < EventCoalesceWindow {
		return true
	}
	p.lastCode = ev.Code
	p.lastParams = params
	p.lastAt = ev.At
	return false
}

func decodeEvent(buf []byte) (Event, bool) {
	_, ctype, code, _, ok := decodeContainerHeader(buf)
	if !ok || ctype != ContainerEvent {
		return Event{}, false
	}

	rest := buf[ContainerHeaderSize:]
	params := make([]uint32, 0, len(rest)/4)
	for o := 0; o+4 <= len(rest); o += 4 {
		v, _ := decodeU32(rest, o)
		params = append(params, v)
	}

	return Event{Code: EventCode(code), Params: params, At: time.Now()}, true
}
