package mtphost

import "context"

// enumStrategy names one of the three ways of listing a folder's
// contents, in order of preference: richest first, falling back to
// the slowest but most universally-supported.
type enumStrategy string

const (
	strategyPropList5     enumStrategy = "prop_list_5"
	strategyPropList3     enumStrategy = "prop_list_3"
	strategyHandlesThenInfo enumStrategy = "handles_then_info"
)

// enumExecutor is the subset of session behavior the enumeration
// engine needs: running one PTP operation to completion. session.go
// implements this.
type enumExecutor interface {
	do(ctx context.Context, code uint16, params []uint32, dataOut []byte) (Container, []byte, error)
	supports(op uint16) bool
}

// ObjectEntry is one enumerated object: handle plus whichever fields
// the winning strategy actually populated. Strategies that only
// produce a subset of ObjectInfo's fields (the prop_list variants)
// leave the rest zero; callers needing the full dataset call
// GetObjectInfo for a specific handle.
type ObjectEntry struct {
	Handle   uint32
	Parent   uint32
	StorageID uint32
	Format   uint16
	Size     uint64
	Filename string
}

// enumerator runs one of the three listing strategies against a
// folder, probing on its first List call and latching onto whichever
// strategy succeeds first (cheapest forward-progress policy: don't
// retry a strategy that already failed for this device). The latch
// lasts as long as the enumerator; Session.listChildren builds a new
// one for every listing, so each listing probes again unless the
// session's tuning forces a strategy.
type enumerator struct {
	exec    enumExecutor
	latched enumStrategy // "" until the first successful probe
	batchSize uint32
}

func newEnumerator(exec enumExecutor, forced string, batchSize uint32) *enumerator {
	if batchSize == 0 {
		batchSize = DefaultEnumerationBatchSize
	}
	e := &enumerator{exec: exec, batchSize: batchSize}
	if forced != "" {
		e.latched = enumStrategy(forced)
	}
	return e
}

// List returns every object directly inside parent on storageID. If a
// strategy hasn't yet been latched, it probes in preference order and
// latches onto the first one that succeeds; subsequent calls for this
// enumerator reuse that decision. A first batch that comes back at the
// batch-size cap is treated as possibly truncated and completed via
// listHandlesThenInfo, which never truncates, so a directory larger
// than one batch is never silently cut short.
func (e *enumerator) List(ctx context.Context, storageID, parent uint32) ([]ObjectEntry, error) {
	if e.latched != "" {
		entries, err := e.tryStrategy(ctx, e.latched, storageID, parent)
		if err == nil {
			return e.completeBatches(ctx, e.latched, storageID, parent, entries)
		}
		if _, ok := err.(*NotSupported); !ok {
			return nil, err
		}
		// Fall through to reprobe: a previously-latched strategy
		// stopped being supported (unexpected, but don't wedge).
		e.latched = ""
	}

	order := []enumStrategy{strategyPropList5, strategyPropList3, strategyHandlesThenInfo}
	var lastErr error
	for _, s := range order {
		entries, err := e.tryStrategy(ctx, s, storageID, parent)
		if err == nil {
			e.latched = s
			return e.completeBatches(ctx, s, storageID, parent, entries)
		}
		lastErr = err
	}
	return nil, lastErr
}

// completeBatches fills in any children missing from a PropList
// strategy's first batch when that batch landed exactly at the batch
// size cap, a sign the device truncated its response. Completion goes
// through listHandlesThenInfo, which returns the full handle set in
// one round trip and never truncates, and merges in only handles not
// already present. Completion failures are swallowed: the caller still
// gets the first batch rather than nothing.
func (e *enumerator) completeBatches(ctx context.Context, s enumStrategy, storageID, parent uint32, entries []ObjectEntry) ([]ObjectEntry, error) {
	if s == strategyHandlesThenInfo || uint32(len(entries)) < e.batchSize {
		return entries, nil
	}

	seen := make(map[uint32]bool, len(entries))
	for _, ent := range entries {
		seen[ent.Handle] = true
	}

	rest, err := e.listHandlesThenInfo(ctx, storageID, parent)
	if err != nil {
		return entries, nil
	}
	for _, ent := range rest {
		if !seen[ent.Handle] {
			entries = append(entries, ent)
		}
	}
	return entries, nil
}

func (e *enumerator) tryStrategy(ctx context.Context, s enumStrategy, storageID, parent uint32) ([]ObjectEntry, error) {
	switch s {
	case strategyPropList5:
		return e.listPropList(ctx, storageID, parent, 5)
	case strategyPropList3:
		return e.listPropList(ctx, storageID, parent, 3)
	case strategyHandlesThenInfo:
		return e.listHandlesThenInfo(ctx, storageID, parent)
	default:
		return nil, &NotSupported{Op: string(s)}
	}
}

// listPropList uses GetObjectPropList in one round trip per batch.
// depth selects between the two documented call shapes: the 5-param
// form (storage, parent, format_filter=0, depth=1, propcode_mask=0)
// and the legacy 3-param form (storage, parent, propcode_mask=0); both
// decode whatever properties are present. The 5-param form leaves
// missing properties as zero values; the 3-param form returns
// NotSupported if any object lacks a filename or a format.
func (e *enumerator) listPropList(ctx context.Context, storageID, parent uint32, depth int) ([]ObjectEntry, error) {
	if !e.exec.supports(OpGetObjectPropList) {
		return nil, &NotSupported{Op: "GetObjectPropList"}
	}

	var params []uint32
	if depth == 3 {
		params = []uint32{storageID, parent, 0}
	} else {
		params = []uint32{storageID, parent, 0, 1, 0}
	}
	_, payload, err := e.exec.do(ctx, OpGetObjectPropList, params, nil)
	if err != nil {
		return nil, err
	}

	rows, err := decodeObjectPropList(payload)
	if err != nil {
		return nil, err
	}

	byHandle := map[uint32]*ObjectEntry{}
	var order []uint32
	for _, r := range rows {
		ent, ok := byHandle[r.ObjectHandle]
		if !ok {
			ent = &ObjectEntry{Handle: r.ObjectHandle, Parent: parent, StorageID: storageID}
			byHandle[r.ObjectHandle] = ent
			order = append(order, r.ObjectHandle)
		}
		switch r.PropertyCode {
		case PropObjectFormat:
			ent.Format = uint16(r.Value.Scalar)
		case PropObjectSize:
			ent.Size = r.Value.Scalar
		case PropObjectFileName:
			ent.Filename = r.Value.Str
		case PropParentObject:
			ent.Parent = uint32(r.Value.Scalar)
		case PropStorageID:
			ent.StorageID = uint32(r.Value.Scalar)
		}
	}

	out := make([]ObjectEntry, 0, len(order))
	for _, h := range order {
		out = append(out, *byHandle[h])
	}

	if depth == 3 {
		for i := range out {
			if out[i].Filename == "" || out[i].Format == 0 {
				return nil, &NotSupported{Op: "GetObjectPropList (insufficient properties)"}
			}
		}
	}

	return out, nil
}

// listHandlesThenInfo is the universal fallback: GetObjectHandles for
// the handle list, then one GetObjectInfo per handle.
func (e *enumerator) listHandlesThenInfo(ctx context.Context, storageID, parent uint32) ([]ObjectEntry, error) {
	_, payload, err := e.exec.do(ctx, OpGetObjectHandles, []uint32{storageID, 0, parent}, nil)
	if err != nil {
		return nil, err
	}

	handles, _, ok := decodeU16ArrayAsU32(payload)
	if !ok {
		return nil, truncated("ObjectHandles")
	}

	out := make([]ObjectEntry, 0, len(handles))
	for _, h := range handles {
		_, infoPayload, err := e.exec.do(ctx, OpGetObjectInfo, []uint32{h}, nil)
		if err != nil {
			return nil, err
		}
		oi, err := decodeObjectInfo(infoPayload)
		if err != nil {
			return nil, err
		}
		out = append(out, ObjectEntry{
			Handle:    h,
			Parent:    oi.ParentObject,
			StorageID: oi.StorageID,
			Format:    oi.ObjectFormat,
			Size:      uint64(oi.ObjectCompressedSize),
			Filename:  oi.Filename,
		})
	}
	return out, nil
}

// decodeU16ArrayAsU32 decodes the u32-count-prefixed u32 array used by
// GetObjectHandles's response payload (object handles are u32, unlike
// DeviceInfo's u16 capability arrays).
func decodeU16ArrayAsU32(buf []byte) (vals []uint32, next int, ok bool) {
	count, ok := decodeU32(buf, 0)
	if !ok {
		return nil, 0, false
	}
	o := 4
	vals = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		v, ok := decodeU32(buf, o)
		if !ok {
			return nil, 0, false
		}
		vals = append(vals, v)
		o += 4
	}
	return vals, o, true
}
