/* mtphost - MTP/PTP host library
 *
 * Little-endian wire codec: primitives, PTP strings, property values
 *
 * Every decode function here is total: truncated input, a negative
 * offset, or a malformed string yields ok == false, never a panic.
 */

package mtphost

import (
	"encoding/binary"
	"unicode/utf16"
)

// decodeU8 decodes a u8 at offset o.
func decodeU8(buf []byte, o int) (v uint8, ok bool) {
	if o < 0 || o+1 > len(buf) {
		return 0, false
	}
	return buf[o], true
}

// decodeU16 decodes a little-endian u16 at offset o.
func decodeU16(buf []byte, o int) (v uint16, ok bool) {
	if o < 0 || o+2 > len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(buf[o : o+2]), true
}

// decodeU32 decodes a little-endian u32 at offset o.
func decodeU32(buf []byte, o int) (v uint32, ok bool) {
	if o < 0 || o+4 > len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[o : o+4]), true
}

// decodeU64 decodes a little-endian u64 at offset o.
func decodeU64(buf []byte, o int) (v uint64, ok bool) {
	if o < 0 || o+8 > len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(buf[o : o+8]), true
}

func encodeU8(v uint8) []byte  { return []byte{v} }
func encodeU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}
func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// decodePTPString decodes a PTP string at offset o: a one-byte UTF-16
// code-unit count N (including the trailing NUL), followed by N
// UTF-16LE code units. Returns the decoded string (without the
// trailing NUL) and the offset just past the string.
func decodePTPString(buf []byte, o int) (s string, next int, ok bool) {
	n, ok := decodeU8(buf, o)
	if !ok {
		return "", 0, false
	}
	o++

	if n == 0 {
		return "", o, true
	}

	width := int(n) * 2
	if o+width > len(buf) {
		return "", 0, false
	}

	units := make([]uint16, n)
	for i := 0; i < int(n); i++ {
		u, ok := decodeU16(buf, o+i*2)
		if !ok {
			return "", 0, false
		}
		units[i] = u
	}

	// Drop the trailing NUL code unit, if present.
	if len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}

	return string(utf16.Decode(units)), o + width, true
}

// encodePTPString encodes s as a PTP string. Strings longer than 254
// UTF-16 code units (255 with the trailing NUL) are truncated to fit
// the one-byte count, matching device-side behavior rather than
// failing — callers that need a hard limit should check len() first.
func encodePTPString(s string) []byte {
	if s == "" {
		return []byte{0}
	}

	units := utf16.Encode([]rune(s))
	units = append(units, 0)

	if len(units) > 255 {
		units = units[:254]
		units = append(units, 0)
	}

	out := make([]byte, 1+len(units)*2)
	out[0] = byte(len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[1+i*2:], u)
	}
	return out
}

// decodeU16Array decodes a PTP-style count-prefixed (u32 count) array
// of u16 values at offset o, as used by DeviceInfo's five arrays.
func decodeU16Array(buf []byte, o int) (vals []uint16, next int, ok bool) {
	count, ok := decodeU32(buf, o)
	if !ok {
		return nil, 0, false
	}
	o += 4

	vals = make([]uint16, 0, count)
	for i := uint32(0); i < count; i++ {
		v, ok := decodeU16(buf, o)
		if !ok {
			return nil, 0, false
		}
		vals = append(vals, v)
		o += 2
	}
	return vals, o, true
}

func encodeU16Array(vals []uint16) []byte {
	out := encodeU32(uint32(len(vals)))
	for _, v := range vals {
		out = append(out, encodeU16(v)...)
	}
	return out
}

// PropValue is a decoded object-property value: a signed/unsigned
// integer of width 8/16/32/64/128 bits, a string, or an array of the
// base (non-array) type.
type PropValue struct {
	DataType uint16
	Scalar   uint64 // valid when !IsArray && DataType != TypeString
	Signed   bool   // whether Scalar's bit pattern should be read as signed
	Str      string // valid when DataType == TypeString
	Array    []uint64
	IsArray  bool
}

// propWidth returns the byte width of the base (non-array) type family,
// and whether it is signed. ok is false for an unrecognized data type.
func propWidth(base uint16) (width int, signed bool, ok bool) {
	switch base {
	case TypeInt8:
		return 1, true, true
	case TypeUint8:
		return 1, false, true
	case TypeInt16:
		return 2, true, true
	case TypeUint16:
		return 2, false, true
	case TypeInt32:
		return 4, true, true
	case TypeUint32:
		return 4, false, true
	case TypeInt64:
		return 8, true, true
	case TypeUint64:
		return 8, false, true
	case TypeInt128:
		return 16, true, true
	case TypeUint128:
		return 16, false, true
	default:
		return 0, false, false
	}
}

// decodePropValue decodes a single property value at offset o, given
// its data_type. Unknown data types yield ok == false.
func decodePropValue(buf []byte, o int, dataType uint16) (v PropValue, next int, ok bool) {
	if dataType == TypeString {
		s, next, ok := decodePTPString(buf, o)
		if !ok {
			return PropValue{}, 0, false
		}
		return PropValue{DataType: dataType, Str: s}, next, true
	}

	if dataType&typeArrayBit != 0 {
		base := dataType &^ typeArrayBit
		width, signed, ok := propWidth(base)
		if !ok {
			return PropValue{}, 0, false
		}

		count, ok := decodeU32(buf, o)
		if !ok {
			return PropValue{}, 0, false
		}
		o += 4

		arr := make([]uint64, 0, count)
		for i := uint32(0); i < count; i++ {
			scalar, next, ok := decodeFixedWidth(buf, o, width)
			if !ok {
				return PropValue{}, 0, false
			}
			arr = append(arr, scalar)
			o = next
		}

		return PropValue{DataType: dataType, IsArray: true, Array: arr, Signed: signed}, o, true
	}

	width, signed, ok := propWidth(dataType)
	if !ok {
		return PropValue{}, 0, false
	}

	scalar, next, ok := decodeFixedWidth(buf, o, width)
	if !ok {
		return PropValue{}, 0, false
	}

	return PropValue{DataType: dataType, Scalar: scalar, Signed: signed}, next, true
}

// decodeFixedWidth decodes a width-byte little-endian unsigned integer
// (the caller reinterprets the bit pattern as signed if needed). 128-bit
// values are truncated to their low 64 bits — the core never needs the
// high bits of a 128-bit property.
func decodeFixedWidth(buf []byte, o int, width int) (v uint64, next int, ok bool) {
	if o < 0 || o+width > len(buf) {
		return 0, 0, false
	}

	switch width {
	case 1:
		return uint64(buf[o]), o + 1, true
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf[o : o+2])), o + 2, true
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf[o : o+4])), o + 4, true
	case 8:
		return binary.LittleEndian.Uint64(buf[o : o+8]), o + 8, true
	case 16:
		return binary.LittleEndian.Uint64(buf[o : o+8]), o + 16, true
	default:
		return 0, 0, false
	}
}
