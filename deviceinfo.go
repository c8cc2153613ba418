package mtphost

// DeviceInfo is the dataset returned by GetDeviceInfo: protocol version,
// vendor extension info, the five operation/event/property/capture-
// format/playback-format capability arrays, and manufacturer/model/version/serial strings.
type DeviceInfo struct {
	StandardVersion        uint16
	VendorExtensionID      uint32
	VendorExtensionVersion uint16
	VendorExtensionDesc    string
	FunctionalMode         uint16

	OperationsSupported     []uint16
	EventsSupported         []uint16
	DevicePropertiesSupported []uint16
	CaptureFormats          []uint16
	PlaybackFormats         []uint16

	Manufacturer   string
	Model          string
	DeviceVersion  string
	SerialNumber   string
}

// decodeDeviceInfo decodes a GetDeviceInfo dataset.
func decodeDeviceInfo(buf []byte) (di DeviceInfo, err error) {
	o := 0
	var ok bool

	if di.StandardVersion, ok = decodeU16(buf, o); !ok {
		return DeviceInfo{}, truncated("StandardVersion")
	}
	o += 2
	if di.VendorExtensionID, ok = decodeU32(buf, o); !ok {
		return DeviceInfo{}, truncated("VendorExtensionID")
	}
	o += 4
	if di.VendorExtensionVersion, ok = decodeU16(buf, o); !ok {
		return DeviceInfo{}, truncated("VendorExtensionVersion")
	}
	o += 2
	if di.VendorExtensionDesc, o, ok = decodePTPString(buf, o); !ok {
		return DeviceInfo{}, truncated("VendorExtensionDesc")
	}
	if di.FunctionalMode, ok = decodeU16(buf, o); !ok {
		return DeviceInfo{}, truncated("FunctionalMode")
	}
	o += 2

	if di.OperationsSupported, o, ok = decodeU16Array(buf, o); !ok {
		return DeviceInfo{}, truncated("OperationsSupported")
	}
	if di.EventsSupported, o, ok = decodeU16Array(buf, o); !ok {
		return DeviceInfo{}, truncated("EventsSupported")
	}
	if di.DevicePropertiesSupported, o, ok = decodeU16Array(buf, o); !ok {
		return DeviceInfo{}, truncated("DevicePropertiesSupported")
	}
	if di.CaptureFormats, o, ok = decodeU16Array(buf, o); !ok {
		return DeviceInfo{}, truncated("CaptureFormats")
	}
	if di.PlaybackFormats, o, ok = decodeU16Array(buf, o); !ok {
		return DeviceInfo{}, truncated("PlaybackFormats")
	}

	if di.Manufacturer, o, ok = decodePTPString(buf, o); !ok {
		return DeviceInfo{}, truncated("Manufacturer")
	}
	if di.Model, o, ok = decodePTPString(buf, o); !ok {
		return DeviceInfo{}, truncated("Model")
	}
	if di.DeviceVersion, o, ok = decodePTPString(buf, o); !ok {
		return DeviceInfo{}, truncated("DeviceVersion")
	}
	if di.SerialNumber, _, ok = decodePTPString(buf, o); !ok {
		return DeviceInfo{}, truncated("SerialNumber")
	}

	return di, nil
}

// SupportsOperation reports whether code appears in OperationsSupported.
func (di *DeviceInfo) SupportsOperation(code uint16) bool {
	for _, c := range di.OperationsSupported {
		if c == code {
			return true
		}
	}
	return false
}

func truncated(field string) error {
	return &Protocol{Message: "truncated dataset field: " + field}
}
