package mtphost

import (
	"context"
	"testing"
	"time"
)

func TestLinkSimpleResponseOnlyExchange(t *testing.T) {
	ft := newFakeTransport()
	resp := encodeResponse(RespOK, 1, []uint32{0x42})
	ft.queueBulkIn(resp)

	l := newLink(ft, time.Second)
	c, data, err := l.exchange(context.Background(), OpOpenSession, []uint32{1}, nil)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if data != nil {
		t.Fatalf("expected no data phase, got %v", data)
	}
	if c.Code != RespOK || len(c.Params) != 1 || c.Params[0] != 0x42 {
		t.Fatalf("unexpected response: %+v", c)
	}
	if len(ft.bulkOutLog) != 1 {
		t.Fatalf("expected exactly one bulk-out write, got %d", len(ft.bulkOutLog))
	}
}

func TestLinkDataThenResponseExchange(t *testing.T) {
	ft := newFakeTransport()
	payload := []byte("device info bytes")
	dataContainer := append(encodeDataHeader(OpGetDeviceInfo, 1, len(payload)), payload...)
	ft.queueBulkIn(dataContainer)
	ft.queueBulkIn(encodeResponse(RespOK, 1, nil))

	l := newLink(ft, time.Second)
	c, data, err := l.exchange(context.Background(), OpGetDeviceInfo, nil, nil)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("unexpected payload: %q", data)
	}
	if c.Code != RespOK {
		t.Fatalf("unexpected response code: %x", c.Code)
	}
}

func TestLinkRecoversFromStall(t *testing.T) {
	ft := newFakeTransport()
	resp := encodeResponse(RespOK, 1, nil)
	ft.queueStallThenRecover(resp)

	l := newLink(ft, time.Second)
	_, _, err := l.exchange(context.Background(), OpCloseSession, nil, nil)
	if err != nil {
		t.Fatalf("exchange after stall: %v", err)
	}
	if ft.clearHaltCalls != 1 {
		t.Fatalf("expected one ClearHalt call, got %d", ft.clearHaltCalls)
	}
}

func TestLinkTransactionIDsMonotonic(t *testing.T) {
	ft := newFakeTransport()
	ft.queueBulkIn(encodeResponse(RespOK, 1, nil))
	ft.queueBulkIn(encodeResponse(RespOK, 2, nil))

	l := newLink(ft, time.Second)
	_, _, _ = l.exchange(context.Background(), OpCloseSession, nil, nil)
	_, _, _ = l.exchange(context.Background(), OpCloseSession, nil, nil)

	c1, err := decodeParamContainer(ft.bulkOutLog[0])
	if err != nil {
		t.Fatal(err)
	}
	c2, err := decodeParamContainer(ft.bulkOutLog[1])
	if err != nil {
		t.Fatal(err)
	}
	if c2.TransactionID <= c1.TransactionID {
		t.Fatalf("transaction ids not monotonic: %d then %d", c1.TransactionID, c2.TransactionID)
	}
}

func TestLinkUnexpectedContainerTypeIsProtocolError(t *testing.T) {
	ft := newFakeTransport()
	ft.queueBulkIn(encodeCommand(OpGetDeviceInfo, 1, nil)) // a command where a response/data was expected

	l := newLink(ft, time.Second)
	_, _, err := l.exchange(context.Background(), OpGetDeviceInfo, nil, nil)
	if err == nil {
		t.Fatal("expected a protocol error for an unexpected container type")
	}
	if _, ok := err.(*Protocol); !ok {
		t.Fatalf("expected *Protocol, got %T: %v", err, err)
	}
}
