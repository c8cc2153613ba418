package mtphost

// StorageInfo is the dataset returned by GetStorageInfo for a single
// storage ID.
type StorageInfo struct {
	StorageType        uint16
	FilesystemType     uint16
	AccessCapability   uint16
	MaxCapacity        uint64
	FreeSpaceInBytes   uint64
	FreeSpaceInImages  uint32
	StorageDescription string
	VolumeLabel        string
}

// Storage type codes.
const (
	StorageFixedRAM    uint16 = 0x0001
	StorageRemovableRAM uint16 = 0x0003
	StorageFixedROM    uint16 = 0x0002
)

// Access capability codes.
const (
	AccessReadWrite             uint16 = 0x0000
	AccessReadOnlyNoDelete      uint16 = 0x0001
	AccessReadOnlyWithDelete    uint16 = 0x0002
)

// decodeStorageInfo decodes a GetStorageInfo dataset.
func decodeStorageInfo(buf []byte) (si StorageInfo, err error) {
	o := 0
	var ok bool

	if si.StorageType, ok = decodeU16(buf, o); !ok {
		return StorageInfo{}, truncated("StorageType")
	}
	o += 2
	if si.FilesystemType, ok = decodeU16(buf, o); !ok {
		return StorageInfo{}, truncated("FilesystemType")
	}
	o += 2
	if si.AccessCapability, ok = decodeU16(buf, o); !ok {
		return StorageInfo{}, truncated("AccessCapability")
	}
	o += 2
	if si.MaxCapacity, ok = decodeU64(buf, o); !ok {
		return StorageInfo{}, truncated("MaxCapacity")
	}
	o += 8
	if si.FreeSpaceInBytes, ok = decodeU64(buf, o); !ok {
		return StorageInfo{}, truncated("FreeSpaceInBytes")
	}
	o += 8
	if si.FreeSpaceInImages, ok = decodeU32(buf, o); !ok {
		return StorageInfo{}, truncated("FreeSpaceInImages")
	}
	o += 4

	if si.StorageDescription, o, ok = decodePTPString(buf, o); !ok {
		return StorageInfo{}, truncated("StorageDescription")
	}
	if si.VolumeLabel, _, ok = decodePTPString(buf, o); !ok {
		return StorageInfo{}, truncated("VolumeLabel")
	}

	return si, nil
}

// IsWritable reports whether this storage accepts new or modified
// objects.
func (si *StorageInfo) IsWritable() bool {
	return si.AccessCapability == AccessReadWrite
}
