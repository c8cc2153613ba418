package mtphost

import "testing"

func TestU32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xFFFFFFFF, 0x12345678} {
		buf := encodeU32(v)
		got, ok := decodeU32(buf, 0)
		if !ok || got != v {
			t.Fatalf("decodeU32(encodeU32(%d)) = %d, %v", v, got, ok)
		}
	}
}

func TestU16RoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 0xFFFF, 0xDC01} {
		buf := encodeU16(v)
		got, ok := decodeU16(buf, 0)
		if !ok || got != v {
			t.Fatalf("decodeU16(encodeU16(%d)) = %d, %v", v, got, ok)
		}
	}
}

func TestU64RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xFFFFFFFFFFFFFFFF} {
		buf := encodeU64(v)
		got, ok := decodeU64(buf, 0)
		if !ok || got != v {
			t.Fatalf("decodeU64(encodeU64(%d)) = %d, %v", v, got, ok)
		}
	}
}

func TestPTPStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "hello world", "Canon EOS R5"}
	for _, s := range cases {
		buf := encodePTPString(s)
		got, next, ok := decodePTPString(buf, 0)
		if !ok {
			t.Fatalf("decodePTPString(%q) failed", s)
		}
		if got != s {
			t.Fatalf("decodePTPString(encodePTPString(%q)) = %q", s, got)
		}
		if next != len(buf) {
			t.Fatalf("decodePTPString(%q): next = %d, want %d", s, next, len(buf))
		}
	}
}

func TestPTPStringLongTruncates(t *testing.T) {
	long := make([]byte, 0)
	for i := 0; i < 300; i++ {
		long = append(long, 'x')
	}
	buf := encodePTPString(string(long))
	if buf[0] > 255 {
		t.Fatalf("count byte overflowed: %d", buf[0])
	}
	s, _, ok := decodePTPString(buf, 0)
	if !ok {
		t.Fatal("decode of truncated long string failed")
	}
	if len(s) >= 300 {
		t.Fatalf("expected truncation, got length %d", len(s))
	}
}

// Every decoder must return ok==false rather than panicking on a
// negative offset, a truncated buffer, or an offset past the end.
func TestDecodersNeverPanicOnBadOffsets(t *testing.T) {
	buf := []byte{1, 2, 3}

	checks := []func() bool{
		func() bool { _, ok := decodeU8(buf, -1); return !ok },
		func() bool { _, ok := decodeU8(buf, 100); return !ok },
		func() bool { _, ok := decodeU16(buf, -1); return !ok },
		func() bool { _, ok := decodeU16(buf, 2); return !ok }, // only 1 byte left
		func() bool { _, ok := decodeU32(buf, 0); return !ok },
		func() bool { _, ok := decodeU64(buf, 0); return !ok },
		func() bool { _, _, ok := decodePTPString(buf, -5); return !ok },
		func() bool { _, _, ok := decodePTPString([]byte{5, 1, 2}, 0); return !ok }, // claims 5 units, has 2 bytes
	}

	for i, check := range checks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("check %d panicked: %v", i, r)
				}
			}()
			if !check() {
				t.Fatalf("check %d: expected ok==false", i)
			}
		}()
	}
}

func TestDecodeContainerHeaderTruncated(t *testing.T) {
	short := make([]byte, ContainerHeaderSize-1)
	_, _, _, _, ok := decodeContainerHeader(short)
	if ok {
		t.Fatal("expected decodeContainerHeader to reject a truncated header")
	}
}

func TestDecodeParamContainerLengthMismatch(t *testing.T) {
	buf := encodeCommand(OpGetDeviceInfo, 1, []uint32{1, 2})
	buf = append(buf, 0, 0, 0) // corrupt: extra bytes not matching length field
	if _, err := decodeParamContainer(buf); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestDecodeParamContainerRoundTrip(t *testing.T) {
	buf := encodeCommand(OpOpenSession, 7, []uint32{1})
	c, err := decodeParamContainer(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Type != ContainerCommand || c.Code != OpOpenSession || c.TransactionID != 7 {
		t.Fatalf("unexpected container: %+v", c)
	}
	if len(c.Params) != 1 || c.Params[0] != 1 {
		t.Fatalf("unexpected params: %v", c.Params)
	}
}
