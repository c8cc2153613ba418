package mtphost

import "fmt"

// Container is a decoded PTP container: the 12-byte header (length,
// type, code, transaction id) plus up to five u32 parameters (command
// containers) or a raw payload (data containers).
type Container struct {
	Type          uint16
	Code          uint16
	TransactionID uint32
	Params        []uint32 // command/response containers
	Payload       []byte   // data containers
}

// encodeCommand builds a command container with the given operation
// code, transaction id, and up to MaxParams parameters.
func encodeCommand(code uint16, txn uint32, params []uint32) []byte {
	return encodeParamContainer(ContainerCommand, code, txn, params)
}

// encodeResponse builds a response container.
func encodeResponse(code uint16, txn uint32, params []uint32) []byte {
	return encodeParamContainer(ContainerResponse, code, txn, params)
}

func encodeParamContainer(ctype, code uint16, txn uint32, params []uint32) []byte {
	if len(params) > MaxParams {
		params = params[:MaxParams]
	}
	length := ContainerHeaderSize + len(params)*4
	buf := make([]byte, 0, length)
	buf = append(buf, encodeU32(uint32(length))...)
	buf = append(buf, encodeU16(ctype)...)
	buf = append(buf, encodeU16(code)...)
	buf = append(buf, encodeU32(txn)...)
	for _, p := range params {
		buf = append(buf, encodeU32(p)...)
	}
	return buf
}

// encodeDataHeader builds the 12-byte header for a data container
// carrying payloadLen bytes of payload. Payload itself is written
// separately by the link layer as it streams.
func encodeDataHeader(code uint16, txn uint32, payloadLen int) []byte {
	length := ContainerHeaderSize + payloadLen
	buf := make([]byte, 0, ContainerHeaderSize)
	buf = append(buf, encodeU32(uint32(length))...)
	buf = append(buf, encodeU16(ContainerData)...)
	buf = append(buf, encodeU16(code)...)
	buf = append(buf, encodeU32(txn)...)
	return buf
}

// decodeContainerHeader decodes the fixed 12-byte header at the front
// of buf. It does not consume parameters or payload.
func decodeContainerHeader(buf []byte) (length uint32, ctype, code uint16, txn uint32, ok bool) {
	if len(buf) < ContainerHeaderSize {
		return 0, 0, 0, 0, false
	}
	length, ok = decodeU32(buf, 0)
	if !ok {
		return 0, 0, 0, 0, false
	}
	ctype, ok = decodeU16(buf, 4)
	if !ok {
		return 0, 0, 0, 0, false
	}
	code, ok = decodeU16(buf, 6)
	if !ok {
		return 0, 0, 0, 0, false
	}
	txn, ok = decodeU32(buf, 8)
	if !ok {
		return 0, 0, 0, 0, false
	}
	return length, ctype, code, txn, true
}

// decodeParamContainer decodes a full command/response container
// (header plus trailing u32 parameters) from buf. It is an error for
// length to disagree with len(buf), or for the parameter area to not
// be a whole number of u32s.
func decodeParamContainer(buf []byte) (c Container, err error) {
	length, ctype, code, txn, ok := decodeContainerHeader(buf)
	if !ok {
		return Container{}, &Protocol{Message: "container header truncated"}
	}
	if int(length) != len(buf) {
		return Container{}, &Protocol{Message: fmt.Sprintf("container length mismatch: header says %d, got %d bytes", length, len(buf))}
	}

	rest := buf[ContainerHeaderSize:]
	if len(rest)%4 != 0 {
		return Container{}, &Protocol{Message: "parameter area is not a multiple of 4 bytes"}
	}

	params := make([]uint32, 0, len(rest)/4)
	for o := 0; o < len(rest); o += 4 {
		p, ok := decodeU32(rest, o)
		if !ok {
			return Container{}, &Protocol{Message: "truncated parameter"}
		}
		params = append(params, p)
	}
	if len(params) > MaxParams {
		return Container{}, &Protocol{Message: fmt.Sprintf("too many parameters: %d", len(params))}
	}

	return Container{Type: ctype, Code: code, TransactionID: txn, Params: params}, nil
}
