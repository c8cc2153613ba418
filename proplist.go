package mtphost

// ObjectPropEntry is one row of an ObjectPropList dataset: the object
// handle it belongs to, which property, its declared data type, and
// the decoded value.
type ObjectPropEntry struct {
	ObjectHandle uint32
	PropertyCode uint16
	DataType     uint16
	Value        PropValue
}

// decodeObjectPropList decodes a GetObjectPropList dataset: a u32
// count followed by that many fixed-prefix rows with trailing
// variable-width values.
func decodeObjectPropList(buf []byte) (entries []ObjectPropEntry, err error) {
	count, ok := decodeU32(buf, 0)
	if !ok {
		return nil, truncated("ObjectPropList.count")
	}

	o := 4
	entries = make([]ObjectPropEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e ObjectPropEntry

		if e.ObjectHandle, ok = decodeU32(buf, o); !ok {
			return nil, truncated("ObjectPropList.ObjectHandle")
		}
		o += 4
		if e.PropertyCode, ok = decodeU16(buf, o); !ok {
			return nil, truncated("ObjectPropList.PropertyCode")
		}
		o += 2
		if e.DataType, ok = decodeU16(buf, o); !ok {
			return nil, truncated("ObjectPropList.DataType")
		}
		o += 2

		var v PropValue
		v, o, ok = decodePropValue(buf, o, e.DataType)
		if !ok {
			return nil, truncated("ObjectPropList.Value")
		}
		e.Value = v

		entries = append(entries, e)
	}

	return entries, nil
}

// encodeObjectPropListEntry encodes a single row for SendObjectPropList.
func encodeObjectPropListEntry(objectHandle uint32, propCode, dataType uint16, v PropValue) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, encodeU32(objectHandle)...)
	buf = append(buf, encodeU16(propCode)...)
	buf = append(buf, encodeU16(dataType)...)
	buf = append(buf, encodePropValue(dataType, v)...)
	return buf
}

func encodePropValue(dataType uint16, v PropValue) []byte {
	if dataType == TypeString {
		return encodePTPString(v.Str)
	}
	if dataType&typeArrayBit != 0 {
		base := dataType &^ typeArrayBit
		width, _, _ := propWidth(base)
		out := encodeU32(uint32(len(v.Array)))
		for _, scalar := range v.Array {
			out = append(out, encodeFixedWidth(scalar, width)...)
		}
		return out
	}
	width, _, _ := propWidth(dataType)
	return encodeFixedWidth(v.Scalar, width)
}

func encodeFixedWidth(v uint64, width int) []byte {
	switch width {
	case 1:
		return []byte{byte(v)}
	case 2:
		return encodeU16(uint16(v))
	case 4:
		return encodeU32(uint32(v))
	default:
		return encodeU64(v)
	}
}

// BuildObjectPropList encodes a full SendObjectPropList dataset (the
// transfer engine's PropList write prelude) from the given rows, all
// attributed to the not-yet-assigned object handle (0, per the PTP
// convention for objects announced this way).
func BuildObjectPropList(rows []ObjectPropEntry) []byte {
	buf := encodeU32(uint32(len(rows)))
	for _, r := range rows {
		buf = append(buf, encodeObjectPropListEntry(0, r.PropertyCode, r.DataType, r.Value)...)
	}
	return buf
}
