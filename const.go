/* mtphost - MTP/PTP host library
 *
 * Protocol constants
 */

package mtphost

import "time"

// Container types.
const (
	ContainerCommand  uint16 = 1
	ContainerData     uint16 = 2
	ContainerResponse uint16 = 3
	ContainerEvent    uint16 = 4
)

// ContainerHeaderSize is the fixed part of every container: length(4) +
// type(2) + code(2) + transaction id(4).
const ContainerHeaderSize = 12

// MaxParams is the maximum number of u32 parameters a container may carry.
const MaxParams = 5

// Standard PTP operation codes.
const (
	OpGetDeviceInfo     uint16 = 0x1001
	OpOpenSession       uint16 = 0x1002
	OpCloseSession      uint16 = 0x1003
	OpGetStorageIDs     uint16 = 0x1004
	OpGetStorageInfo    uint16 = 0x1005
	OpGetObjectHandles  uint16 = 0x1007
	OpGetObjectInfo     uint16 = 0x1008
	OpGetObject         uint16 = 0x1009
	OpDeleteObject      uint16 = 0x100B
	OpSendObjectInfo    uint16 = 0x100C
	OpSendObject        uint16 = 0x100D
	OpMoveObject        uint16 = 0x1019
	OpGetPartialObject  uint16 = 0x101B
)

// MTP / vendor-extension operation codes.
const (
	OpGetObjectPropDesc   uint16 = 0x9802
	OpGetObjectPropValue  uint16 = 0x9803
	OpSetObjectPropValue  uint16 = 0x9804
	OpGetObjectPropList   uint16 = 0x9805
	OpSendObjectPropList  uint16 = 0x9808
	OpSendPartialObject   uint16 = 0x95C1
	OpGetPartialObject64  uint16 = 0x95C4
)

// Response codes.
const (
	RespOK                  uint16 = 0x2001
	RespSessionNotOpen      uint16 = 0x2003 // also treated as transient "not ready", see errors.go
	RespNotSupported        uint16 = 0x2005
	RespInvalidStorageID    uint16 = 0x2008
	RespInvalidObjectHandle uint16 = 0x2009
	RespStoreFull           uint16 = 0x200C
	RespWriteProtected      uint16 = 0x200D
	RespReadOnly            uint16 = 0x200E
	RespAccessDenied        uint16 = 0x200F
	RespDeviceBusy          uint16 = 0x2019
	RespInvalidParameter    uint16 = 0x201D
	RespSessionAlreadyOpen  uint16 = 0x201E
)

var responseCodeNames = map[uint16]string{
	RespOK:                  "OK",
	RespSessionNotOpen:      "SessionNotOpen",
	RespNotSupported:        "NotSupported",
	RespInvalidStorageID:    "InvalidStorageID",
	RespInvalidObjectHandle: "InvalidObjectHandle",
	RespStoreFull:           "StoreFull",
	RespWriteProtected:      "WriteProtected",
	RespReadOnly:            "ReadOnly",
	RespAccessDenied:        "AccessDenied",
	RespDeviceBusy:          "DeviceBusy",
	RespInvalidParameter:    "InvalidParameter",
	RespSessionAlreadyOpen:  "SessionAlreadyOpen",
}

// ResponseCodeName returns the standard mnemonic for a response code,
// or "Unknown" if not recognized.
func ResponseCodeName(code uint16) string {
	if name, ok := responseCodeNames[code]; ok {
		return name
	}
	return "Unknown"
}

// Object format codes relevant to the core.
const (
	FormatAssociation uint16 = 0x3001
)

// Association (folder) type.
const (
	AssociationGenericFolder uint16 = 0x0001
)

// Object property codes.
const (
	PropStorageID     uint16 = 0xDC01
	PropObjectFormat  uint16 = 0xDC02
	PropObjectSize    uint16 = 0xDC04
	PropObjectFileName uint16 = 0xDC07
	PropDateCreated   uint16 = 0xDC08
	PropDateModified  uint16 = 0xDC09
	PropParentObject  uint16 = 0xDC0B
)

// Data type codes used in property-list datasets.
const (
	TypeInt8    uint16 = 0x0001
	TypeUint8   uint16 = 0x0002
	TypeInt16   uint16 = 0x0003
	TypeUint16  uint16 = 0x0004
	TypeInt32   uint16 = 0x0005
	TypeUint32  uint16 = 0x0006
	TypeInt64   uint16 = 0x0007
	TypeUint64  uint16 = 0x0008
	TypeInt128  uint16 = 0x0009
	TypeUint128 uint16 = 0x000A
	TypeString  uint16 = 0xFFFF

	typeArrayBit uint16 = 0x4000
)

// RootParent is the well-known value meaning "root" as a parent handle.
const RootParent uint32 = 0xFFFFFFFF

// AllStorageIDs is the well-known value meaning "all storages" on read
// paths; it is invalid on write paths.
const AllStorageIDs uint32 = 0xFFFFFFFF

// Default tuning values, used as the lowest-precedence defaults
// layer in policy merging.
var (
	DefaultIOTimeout            = 5 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultInactivityTimeout    = 30 * time.Second
	DefaultOverallDeadline      = 60 * time.Second
	DefaultStabilizeDelay       = 0 * time.Millisecond
	DefaultPostClaimStabilize   = 0 * time.Millisecond
	DefaultMaxChunkBytes uint32 = 1 << 20 // 1 MiB

	// MinChunkBytes/MaxChunkBytesCap bound quirk/override chunk sizes.
	MinChunkBytes    uint32 = 1 << 20
	MaxChunkBytesCap uint32 = 16 << 20
)

// Busy-backoff defaults.
const (
	DefaultBusyRetries  = 3
	DefaultBusyBaseMs   = 200
	DefaultBusyJitter   = 0.2
	busyBackoffMinDelay = 50 * time.Millisecond
	busyBackoffMaxDelay = 10 * time.Second
)

// EventCoalesceWindow suppresses duplicate events within this window.
const EventCoalesceWindow = 50 * time.Millisecond

// DefaultEnumerationBatchSize is the default upper bound per list() batch.
const DefaultEnumerationBatchSize = 500

// DefaultPipelineBuffers/DefaultPipelineBufferSize size the transfer
// engine's buffer pool.
const (
	DefaultPipelineBuffers    = 2
	DefaultPipelineBufferSize = 256 * 1024
)
