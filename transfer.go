package mtphost

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// bufferPool is a bounded pool of fixed-size buffers shared by the
// pipelined read/write paths, so a transfer never allocates more than
// DefaultPipelineBuffers buffers regardless of object size.
type bufferPool struct {
	sem  *semaphore.Weighted
	size int
}

func newBufferPool(n, size int) *bufferPool {
	return &bufferPool{sem: semaphore.NewWeighted(int64(n)), size: size}
}

func (p *bufferPool) acquire(ctx context.Context) ([]byte, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return make([]byte, p.size), nil
}

func (p *bufferPool) release() {
	p.sem.Release(1)
}

// Download reads object handle from the device into localPath, using
// the best available read strategy (64-bit partial, 32-bit partial,
// falling back to whole-object) and a pipelined reader/writer pair so
// USB reads and disk writes overlap. The download lands in a temp file
// beside localPath and is renamed into place only once the full size
// has been received and verified, so a crash mid-transfer never leaves
// a half-written file at the final path.
func (s *Session) Download(ctx context.Context, handle uint32, localPath string, size int64) error {
	tmpPath := localPath + ".mtphost-tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	pool := newBufferPool(DefaultPipelineBuffers, int(s.tuning.MaxChunkBytes))
	chunks := make(chan []byte, DefaultPipelineBuffers)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		return s.readObject(gctx, handle, 0, size, pool, chunks)
	})

	var written int64
	g.Go(func() error {
		for buf := range chunks {
			n, err := f.Write(buf)
			pool.release()
			if err != nil {
				return err
			}
			written += int64(n)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if written != size {
		return &VerificationFailed{Expected: size, Actual: written}
	}

	return os.Rename(tmpPath, localPath)
}

// readObject pulls size bytes of handle's data, starting at
// rangeOffset, into chunks, preferring GetPartialObject64 and falling
// back down the ladder when the device doesn't support it. When the
// ladder bottoms out at whole_object (GetObject, which carries no
// offset/length parameters and always returns the entire object), an
// explicit sub-range request — rangeOffset != 0 — is rejected with
// NotSupported rather than silently re-fetching the whole object on
// every loop iteration.
func (s *Session) readObject(ctx context.Context, handle uint32, rangeOffset, size int64, pool *bufferPool, chunks chan<- []byte) error {
	useOp, use64 := s.chooseReadOp()

	if useOp == OpGetObject {
		if rangeOffset != 0 {
			return &NotSupported{Op: "GetPartialObject (ranged read against whole_object strategy)"}
		}
		return s.readWholeObject(ctx, handle, pool, chunks)
	}

	chunkSize := int64(s.tuning.MaxChunkBytes)
	offset := rangeOffset
	end := rangeOffset + size
	for offset < end {
		n := chunkSize
		if remaining := end - offset; remaining < n {
			n = remaining
		}

		buf, err := pool.acquire(ctx)
		if err != nil {
			return err
		}
		buf = buf[:n]

		var params []uint32
		if use64 {
			params = []uint32{handle, uint32(offset), uint32(offset >> 32), uint32(n)}
		} else {
			params = []uint32{handle, uint32(offset), uint32(n)}
		}

		_, payload, err := s.do(ctx, useOp, params, nil)
		if err != nil {
			pool.release()
			return err
		}
		copy(buf, payload)
		if len(payload) < int(n) {
			buf = buf[:len(payload)]
		}

		select {
		case chunks <- buf:
		case <-ctx.Done():
			pool.release()
			return ctx.Err()
		}

		offset += int64(len(payload))
		if len(payload) == 0 {
			break
		}
	}

	return nil
}

// readWholeObject issues the single GetObject call the whole_object
// strategy allows — it takes only {handle}, no offset or length — and
// slices the returned payload into pool-sized chunks for the pipeline
// consumer, which releases one pool buffer per chunk it receives.
func (s *Session) readWholeObject(ctx context.Context, handle uint32, pool *bufferPool, chunks chan<- []byte) error {
	_, payload, err := s.do(ctx, OpGetObject, []uint32{handle}, nil)
	if err != nil {
		return err
	}

	chunkSize := int64(s.tuning.MaxChunkBytes)
	var offset int64
	for offset < int64(len(payload)) {
		n := chunkSize
		if remaining := int64(len(payload)) - offset; remaining < n {
			n = remaining
		}

		buf, err := pool.acquire(ctx)
		if err != nil {
			return err
		}
		buf = buf[:n]
		copy(buf, payload[offset:offset+n])

		select {
		case chunks <- buf:
		case <-ctx.Done():
			pool.release()
			return ctx.Err()
		}

		offset += n
	}
	return nil
}

// chooseReadOp picks the richest supported partial-read operation,
// falling back to whole_object (GetObject) when neither partial op is
// supported.
func (s *Session) chooseReadOp() (op uint16, use64 bool) {
	if s.supports(OpGetPartialObject64) {
		return OpGetPartialObject64, true
	}
	if s.supports(OpGetPartialObject) {
		return OpGetPartialObject, false
	}
	return OpGetObject, false
}

// WriteTarget describes where a new object should land: storage,
// parent folder, and name/size/format metadata for the ObjectInfo
// prelude.
type WriteTarget struct {
	StorageID uint32
	Parent    uint32
	Filename  string
	Format    uint16
	Size      int64
}

// wellKnownWriteFolders are tried, in order, when a quirk-flagged
// device rejects writes outside a subfolder and the caller's supplied
// parent doesn't resolve to anything writable.
var wellKnownWriteFolders = []string{"Download", "Downloads", "DCIM", "Camera", "Pictures", "Documents"}

// Upload sends localPath to the device under target, using the
// richest supported write prelude (SendObjectPropList, falling back to
// SendObjectInfo+SendObject) and a pipelined reader/writer pair. It
// returns the handle the device assigned.
//
// When the resolved quirk set WriteToSubfolderOnly and the supplied
// parent turns out to be unwritable, Upload walks the write-target
// resolution ladder: the quirk's preferred folder name, then a set of
// well-known folder names, then any first-level folder, then finally
// creating a folder named "SwiftMTP" at the storage root.
func (s *Session) Upload(ctx context.Context, j *Journal, identity string, localPath string, target WriteTarget) (uint32, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	excluded := map[uint32]bool{}
	const maxLadderAttempts = 8
	for attempt := 0; attempt < maxLadderAttempts; attempt++ {
		parent, err := s.resolveWriteParent(ctx, target.StorageID, target.Parent, excluded)
		if err != nil {
			return 0, err
		}
		try := target
		try.Parent = parent

		rec, err := j.Begin(identity, "upload", localPath, try.StorageID, try.Parent, try.Size)
		if err != nil {
			return 0, err
		}

		handle, err := s.sendPrelude(ctx, try)
		if err != nil {
			j.Finish(rec, err)
			if s.tuning.WriteToSubfolderOnly && isUnwritableParent(err) && !excluded[parent] {
				excluded[parent] = true
				if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
					return 0, seekErr
				}
				continue
			}
			return 0, err
		}

		if err := j.SetRemoteHandle(rec, handle); err != nil {
			return 0, err
		}

		if err := s.pipelinedUpload(ctx, f, handle, try.Size, j, rec); err != nil {
			j.Finish(rec, err)
			return 0, err
		}

		j.Finish(rec, nil)
		return handle, nil
	}
	return 0, &PreconditionFailed{Reason: "exhausted the write-target resolution ladder"}
}

// resolveWriteParent picks the next candidate write parent: the
// supplied parent, unless it's already known unwritable, in which case
// it walks the quirk's preferred folder, the well-known folder names,
// any first-level folder, and finally creates "SwiftMTP" at root.
func (s *Session) resolveWriteParent(ctx context.Context, storageID, parent uint32, excluded map[uint32]bool) (uint32, error) {
	if !excluded[parent] {
		return parent, nil
	}
	if !s.tuning.WriteToSubfolderOnly {
		return 0, &PreconditionFailed{Reason: "parent folder is not writable"}
	}

	entries, _ := s.listChildren(ctx, storageID, RootParent)
	byName := map[string]uint32{}
	var firstFolder uint32
	for _, e := range entries {
		if e.Format != FormatAssociation || excluded[e.Handle] {
			continue
		}
		byName[e.Filename] = e.Handle
		if firstFolder == 0 {
			firstFolder = e.Handle
		}
	}

	var candidates []uint32
	addCandidate := func(h uint32) {
		if h == 0 || excluded[h] {
			return
		}
		for _, c := range candidates {
			if c == h {
				return
			}
		}
		candidates = append(candidates, h)
	}
	if s.tuning.PreferredWriteFolder != "" {
		addCandidate(byName[s.tuning.PreferredWriteFolder])
	}
	for _, name := range wellKnownWriteFolders {
		addCandidate(byName[name])
	}
	addCandidate(firstFolder)

	if len(candidates) > 0 {
		return candidates[0], nil
	}

	return s.EnsureFolder(ctx, storageID, RootParent, "SwiftMTP")
}

// isUnwritableParent reports whether err indicates the chosen parent
// folder itself is the problem, as opposed to some other failure the
// write-target ladder shouldn't try to route around.
func isUnwritableParent(err error) bool {
	return errors.Is(err, ErrWriteProtected) || errors.Is(err, ErrReadOnly) ||
		errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrInvalidParent)
}

// Resume continues an interrupted upload from rec.CommittedBytes,
// using SendPartialObject so bytes the device already accepted aren't
// re-sent. Callers normally learn about rec via ResumableTransfers.
func (s *Session) Resume(ctx context.Context, j *Journal, rec *TransferRecord) error {
	if rec.Direction != "upload" {
		return &PreconditionFailed{Reason: "only uploads can be resumed"}
	}
	if !s.supports(OpSendPartialObject) {
		return &NotSupported{Op: "SendPartialObject"}
	}
	if rec.RemoteHandle == 0 {
		return &PreconditionFailed{Reason: "resume requires a remote handle captured by a prior upload attempt"}
	}

	f, err := os.Open(rec.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(rec.CommittedBytes, io.SeekStart); err != nil {
		return err
	}

	if err := s.pipelinedUploadFrom(ctx, f, rec.RemoteHandle, rec.CommittedBytes, rec.TotalBytes, j, rec); err != nil {
		j.Finish(rec, err)
		return err
	}

	j.Finish(rec, nil)
	return nil
}

// ResumableTransfers returns the interrupted transfers recorded for
// this session's identity, for callers deciding whether to call Resume
// instead of starting a fresh Upload.
func (s *Session) ResumableTransfers(j *Journal) ([]*TransferRecord, error) {
	return j.Resumable(s.identity.Key())
}

// sendPrelude announces the incoming object: try SendObjectPropList
// first (it both announces and reserves the handle in one round
// trip), falling back to the classic SendObjectInfo exchange.
func (s *Session) sendPrelude(ctx context.Context, target WriteTarget) (uint32, error) {
	if s.supports(OpSendObjectPropList) {
		rows := []ObjectPropEntry{
			{PropertyCode: PropObjectFileName, DataType: TypeString, Value: PropValue{DataType: TypeString, Str: target.Filename}},
			{PropertyCode: PropObjectSize, DataType: TypeUint64, Value: PropValue{DataType: TypeUint64, Scalar: uint64(target.Size)}},
		}
		payload := BuildObjectPropList(rows)
		resp, _, err := s.do(ctx, OpSendObjectPropList, []uint32{target.StorageID, target.Parent, uint32(target.Format), uint32(target.Size >> 32), uint32(target.Size)}, payload)
		if err == nil && resp.Code == RespOK && len(resp.Params) > 0 {
			return resp.Params[0], nil
		}
		if err != nil {
			if _, ok := err.(*NotSupported); !ok {
				return 0, err
			}
		}
	}

	oi := ObjectInfo{
		StorageID:            target.StorageID,
		ObjectFormat:         target.Format,
		ObjectCompressedSize: uint32(target.Size),
		ParentObject:         target.Parent,
		Filename:             target.Filename,
	}
	if target.Format == FormatAssociation {
		oi.AssociationType = AssociationGenericFolder
	}
	resp, _, err := s.do(ctx, OpSendObjectInfo, []uint32{target.StorageID, target.Parent}, encodeObjectInfo(oi))
	if err != nil {
		return 0, err
	}
	if resp.Code != RespOK {
		return 0, classifyResponse(resp.Code, "SendObjectInfo")
	}
	if len(resp.Params) < 3 {
		return 0, truncated("SendObjectInfo.response")
	}
	return resp.Params[2], nil
}

// pipelinedUpload streams localPath's contents to handle from the
// start, preferring resumable SendPartialObject chunking so a later
// retry can continue from rec.CommittedBytes instead of re-sending the
// whole object.
func (s *Session) pipelinedUpload(ctx context.Context, f *os.File, handle uint32, size int64, j *Journal, rec *TransferRecord) error {
	return s.pipelinedUploadFrom(ctx, f, handle, 0, size, j, rec)
}

// pipelinedUploadFrom streams f's contents, starting at startOffset
// and running through total bytes, to handle via SendPartialObject,
// updating rec.CommittedBytes after each accepted chunk so a future
// Resume can pick up where this attempt left off. f must already be
// seeked to startOffset.
func (s *Session) pipelinedUploadFrom(ctx context.Context, f *os.File, handle uint32, startOffset, total int64, j *Journal, rec *TransferRecord) error {
	if !s.supports(OpSendPartialObject) {
		if startOffset != 0 {
			return &NotSupported{Op: "SendPartialObject"}
		}
		return s.sendWholeObject(ctx, f, total)
	}

	remaining := total - startOffset
	pool := newBufferPool(DefaultPipelineBuffers, int(s.tuning.MaxChunkBytes))
	chunks := make(chan []byte, DefaultPipelineBuffers)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		return s.readFileChunks(gctx, f, remaining, pool, chunks)
	})

	g.Go(func() error {
		offset := startOffset
		for buf := range chunks {
			params := []uint32{handle, uint32(offset), uint32(offset >> 32), uint32(len(buf))}
			resp, _, err := s.do(gctx, OpSendPartialObject, params, buf)
			pool.release()
			if err != nil {
				return err
			}
			if resp.Code != RespOK {
				return classifyResponse(resp.Code, "SendPartialObject")
			}
			offset += int64(len(buf))
			if err := j.Progress(rec, offset); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (s *Session) readFileChunks(ctx context.Context, f *os.File, size int64, pool *bufferPool, chunks chan<- []byte) error {
	chunkSize := int64(s.tuning.MaxChunkBytes)
	var offset int64
	for offset < size {
		n := chunkSize
		if remaining := size - offset; remaining < n {
			n = remaining
		}

		buf, err := pool.acquire(ctx)
		if err != nil {
			return err
		}
		buf = buf[:n]

		read, err := io.ReadFull(f, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			pool.release()
			return err
		}
		buf = buf[:read]

		select {
		case chunks <- buf:
		case <-ctx.Done():
			pool.release()
			return ctx.Err()
		}

		offset += int64(read)
		if read == 0 {
			break
		}
	}
	return nil
}

// sendWholeObject is the non-resumable fallback write path for
// devices without SendPartialObject: one SendObject exchange carrying
// the entire file as its data phase.
func (s *Session) sendWholeObject(ctx context.Context, f *os.File, size int64) error {
	raw := make([]byte, size)
	if _, err := io.ReadFull(f, raw); err != nil && err != io.EOF {
		return err
	}
	resp, _, err := s.do(ctx, OpSendObject, nil, raw)
	if err != nil {
		return err
	}
	if resp.Code != RespOK {
		return classifyResponse(resp.Code, "SendObject")
	}
	return nil
}

// EnsureFolder walks path under parent on storageID, creating any
// missing path segments as generic folders, and returns the handle of
// the final segment.
func (s *Session) EnsureFolder(ctx context.Context, storageID, parent uint32, path string) (uint32, error) {
	segments := splitPath(path)
	current := parent
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		entries, err := s.listChildren(ctx, storageID, current)
		if err != nil {
			return 0, err
		}
		found := uint32(0)
		for _, e := range entries {
			if e.Filename == seg && e.Format == FormatAssociation {
				found = e.Handle
				break
			}
		}
		if found == 0 {
			target := WriteTarget{StorageID: storageID, Parent: current, Filename: seg, Format: FormatAssociation}
			h, err := s.sendPrelude(ctx, target)
			if err != nil {
				return 0, err
			}
			found = h
		}
		current = found
	}
	return current, nil
}

func (s *Session) listChildren(ctx context.Context, storageID, parent uint32) ([]ObjectEntry, error) {
	e := newEnumerator(s, s.tuning.ForceStrategy, 0)
	return e.List(ctx, storageID, parent)
}

// splitPath breaks a "/"-separated virtual path into non-empty
// segments, tolerating leading/trailing/doubled slashes.
func splitPath(path string) []string {
	var out []string
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
