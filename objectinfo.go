package mtphost

import "time"

// ObjectInfo is the dataset used both to describe an existing object
// (GetObjectInfo) and to announce a new one before a write
// (SendObjectInfo).
type ObjectInfo struct {
	StorageID        uint32
	ObjectFormat     uint16
	ProtectionStatus uint16
	ObjectCompressedSize uint32
	ThumbFormat      uint16
	ThumbCompressedSize uint32
	ThumbPixWidth    uint32
	ThumbPixHeight   uint32
	ImagePixWidth    uint32
	ImagePixHeight   uint32
	ImageBitDepth    uint32
	ParentObject     uint32
	AssociationType  uint16
	AssociationDesc  uint32
	SequenceNumber   uint32

	Filename     string
	CaptureDate  time.Time
	ModifiedDate time.Time
	Keywords     string
}

// dateTimeLayout is the PTP DateTime string format: YYYYMMDDThhmmss,
// optionally followed by ".s" fractional seconds and a timezone suffix.
// The core only needs second resolution and treats a blank string as
// the zero time, so it parses only the base 15-character form.
const dateTimeLayout = "20060102T150405"

func decodePTPDateTime(s string) time.Time {
	if len(s) < len(dateTimeLayout) {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeLayout, s[:len(dateTimeLayout)])
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodePTPDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeLayout)
}

// decodeObjectInfo decodes an ObjectInfo dataset.
func decodeObjectInfo(buf []byte) (oi ObjectInfo, err error) {
	o := 0
	var ok bool

	if oi.StorageID, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("StorageID")
	}
	o += 4
	if oi.ObjectFormat, ok = decodeU16(buf, o); !ok {
		return ObjectInfo{}, truncated("ObjectFormat")
	}
	o += 2
	if oi.ProtectionStatus, ok = decodeU16(buf, o); !ok {
		return ObjectInfo{}, truncated("ProtectionStatus")
	}
	o += 2
	if oi.ObjectCompressedSize, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("ObjectCompressedSize")
	}
	o += 4
	if oi.ThumbFormat, ok = decodeU16(buf, o); !ok {
		return ObjectInfo{}, truncated("ThumbFormat")
	}
	o += 2
	if oi.ThumbCompressedSize, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("ThumbCompressedSize")
	}
	o += 4
	if oi.ThumbPixWidth, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("ThumbPixWidth")
	}
	o += 4
	if oi.ThumbPixHeight, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("ThumbPixHeight")
	}
	o += 4
	if oi.ImagePixWidth, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("ImagePixWidth")
	}
	o += 4
	if oi.ImagePixHeight, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("ImagePixHeight")
	}
	o += 4
	if oi.ImageBitDepth, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("ImageBitDepth")
	}
	o += 4
	if oi.ParentObject, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("ParentObject")
	}
	o += 4
	if oi.AssociationType, ok = decodeU16(buf, o); !ok {
		return ObjectInfo{}, truncated("AssociationType")
	}
	o += 2
	if oi.AssociationDesc, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("AssociationDesc")
	}
	o += 4
	if oi.SequenceNumber, ok = decodeU32(buf, o); !ok {
		return ObjectInfo{}, truncated("SequenceNumber")
	}
	o += 4

	var captureStr, modifiedStr string
	if oi.Filename, o, ok = decodePTPString(buf, o); !ok {
		return ObjectInfo{}, truncated("Filename")
	}
	if captureStr, o, ok = decodePTPString(buf, o); !ok {
		return ObjectInfo{}, truncated("CaptureDate")
	}
	if modifiedStr, o, ok = decodePTPString(buf, o); !ok {
		return ObjectInfo{}, truncated("ModifiedDate")
	}
	if oi.Keywords, _, ok = decodePTPString(buf, o); !ok {
		return ObjectInfo{}, truncated("Keywords")
	}

	oi.CaptureDate = decodePTPDateTime(captureStr)
	oi.ModifiedDate = decodePTPDateTime(modifiedStr)

	return oi, nil
}

// encodeObjectInfo encodes oi for a SendObjectInfo data phase.
func encodeObjectInfo(oi ObjectInfo) []byte {
	buf := make([]byte, 0, 64+len(oi.Filename)*2)
	buf = append(buf, encodeU32(oi.StorageID)...)
	buf = append(buf, encodeU16(oi.ObjectFormat)...)
	buf = append(buf, encodeU16(oi.ProtectionStatus)...)
	buf = append(buf, encodeU32(oi.ObjectCompressedSize)...)
	buf = append(buf, encodeU16(oi.ThumbFormat)...)
	buf = append(buf, encodeU32(oi.ThumbCompressedSize)...)
	buf = append(buf, encodeU32(oi.ThumbPixWidth)...)
	buf = append(buf, encodeU32(oi.ThumbPixHeight)...)
	buf = append(buf, encodeU32(oi.ImagePixWidth)...)
	buf = append(buf, encodeU32(oi.ImagePixHeight)...)
	buf = append(buf, encodeU32(oi.ImageBitDepth)...)
	buf = append(buf, encodeU32(oi.ParentObject)...)
	buf = append(buf, encodeU16(oi.AssociationType)...)
	buf = append(buf, encodeU32(oi.AssociationDesc)...)
	buf = append(buf, encodeU32(oi.SequenceNumber)...)
	buf = append(buf, encodePTPString(oi.Filename)...)
	buf = append(buf, encodePTPString(encodePTPDateTime(oi.CaptureDate))...)
	buf = append(buf, encodePTPString(encodePTPDateTime(oi.ModifiedDate))...)
	buf = append(buf, encodePTPString(oi.Keywords)...)
	return buf
}

// IsFolder reports whether oi describes an association of the generic
// folder type.
func (oi *ObjectInfo) IsFolder() bool {
	return oi.ObjectFormat == FormatAssociation && oi.AssociationType == AssociationGenericFolder
}
