package mtphost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTransferTestSession(t *testing.T, ft *fakeTransport) *Session {
	t.Helper()

	di := DeviceInfo{
		Manufacturer: "Acme",
		Model:        "Widget",
		SerialNumber: "SN999",
		OperationsSupported: []uint16{
			OpGetDeviceInfo, OpOpenSession, OpCloseSession,
			OpGetStorageIDs, OpGetStorageInfo, OpGetObjectInfo,
			OpGetObjectHandles, OpGetObject, OpGetPartialObject64,
			OpDeleteObject, OpSendObjectInfo, OpSendObject,
			OpSendPartialObject, OpGetObjectPropList, OpSendObjectPropList,
		},
	}
	payload := make([]byte, 0, 128)
	payload = append(payload, encodeU16(di.StandardVersion)...)
	payload = append(payload, encodeU32(di.VendorExtensionID)...)
	payload = append(payload, encodeU16(di.VendorExtensionVersion)...)
	payload = append(payload, encodePTPString(di.VendorExtensionDesc)...)
	payload = append(payload, encodeU16(di.FunctionalMode)...)
	payload = append(payload, encodeU16Array(di.OperationsSupported)...)
	payload = append(payload, encodeU16Array(di.EventsSupported)...)
	payload = append(payload, encodeU16Array(di.DevicePropertiesSupported)...)
	payload = append(payload, encodeU16Array(di.CaptureFormats)...)
	payload = append(payload, encodeU16Array(di.PlaybackFormats)...)
	payload = append(payload, encodePTPString(di.Manufacturer)...)
	payload = append(payload, encodePTPString(di.Model)...)
	payload = append(payload, encodePTPString(di.DeviceVersion)...)
	payload = append(payload, encodePTPString(di.SerialNumber)...)

	diContainer := append(encodeDataHeader(OpGetDeviceInfo, 1, len(payload)), payload...)
	ft.queueBulkIn(diContainer)
	ft.queueBulkIn(encodeResponse(RespOK, 1, nil))
	ft.queueBulkIn(encodeResponse(RespOK, 2, nil)) // OpenSession

	skipReset := true
	sess, err := Open(context.Background(), ft, Fingerprint{VendorID: 0x04a9, ProductID: 0x1234}, OpenOptions{
		Tuning: TuningOverride{SkipReset: &skipReset},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return sess
}

func TestDownloadSingleChunk(t *testing.T) {
	ft := newFakeTransport()
	sess := openTransferTestSession(t, ft)
	defer sess.events.stop()

	content := []byte("hello from the device")
	dataContainer := append(encodeDataHeader(OpGetPartialObject64, 3, len(content)), content...)
	ft.queueBulkIn(dataContainer)
	ft.queueBulkIn(encodeResponse(RespOK, 3, []uint32{uint32(len(content))}))

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")

	if err := sess.Download(context.Background(), 7, dst, int64(len(content))); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("downloaded content mismatch: %q", got)
	}
}

func TestUploadViaSendPartialObject(t *testing.T) {
	ft := newFakeTransport()
	sess := openTransferTestSession(t, ft)
	defer sess.events.stop()

	content := []byte("payload bytes to upload")
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// sendPrelude: SendObjectPropList response with assigned handle.
	ft.queueBulkIn(encodeResponse(RespOK, 3, []uint32{99}))
	// pipelinedUpload: one SendPartialObject response.
	ft.queueBulkIn(encodeResponse(RespOK, 4, nil))

	journalDir := t.TempDir()
	j, err := OpenJournal(journalDir)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	target := WriteTarget{StorageID: 1, Parent: RootParent, Filename: "in.bin", Format: 0x3000, Size: int64(len(content))}
	handle, err := sess.Upload(context.Background(), j, "dev1", src, target)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if handle != 99 {
		t.Fatalf("expected handle 99, got %d", handle)
	}

	resumable, _ := j.Resumable("dev1")
	if len(resumable) != 0 {
		t.Fatalf("expected the completed transfer to not be resumable, got %+v", resumable)
	}
}

// openWholeObjectTestSession opens a session whose device supports
// neither GetPartialObject64 nor GetPartialObject, so chooseReadOp
// bottoms out at whole_object (plain GetObject).
func openWholeObjectTestSession(t *testing.T, ft *fakeTransport) *Session {
	t.Helper()

	di := DeviceInfo{
		Manufacturer: "Acme",
		Model:        "Widget",
		SerialNumber: "SN555",
		OperationsSupported: []uint16{
			OpGetDeviceInfo, OpOpenSession, OpCloseSession,
			OpGetStorageIDs, OpGetStorageInfo, OpGetObjectInfo,
			OpGetObjectHandles, OpGetObject, OpDeleteObject,
			OpSendObjectInfo, OpSendObject,
		},
	}
	payload := make([]byte, 0, 128)
	payload = append(payload, encodeU16(di.StandardVersion)...)
	payload = append(payload, encodeU32(di.VendorExtensionID)...)
	payload = append(payload, encodeU16(di.VendorExtensionVersion)...)
	payload = append(payload, encodePTPString(di.VendorExtensionDesc)...)
	payload = append(payload, encodeU16(di.FunctionalMode)...)
	payload = append(payload, encodeU16Array(di.OperationsSupported)...)
	payload = append(payload, encodeU16Array(di.EventsSupported)...)
	payload = append(payload, encodeU16Array(di.DevicePropertiesSupported)...)
	payload = append(payload, encodeU16Array(di.CaptureFormats)...)
	payload = append(payload, encodeU16Array(di.PlaybackFormats)...)
	payload = append(payload, encodePTPString(di.Manufacturer)...)
	payload = append(payload, encodePTPString(di.Model)...)
	payload = append(payload, encodePTPString(di.DeviceVersion)...)
	payload = append(payload, encodePTPString(di.SerialNumber)...)

	diContainer := append(encodeDataHeader(OpGetDeviceInfo, 1, len(payload)), payload...)
	ft.queueBulkIn(diContainer)
	ft.queueBulkIn(encodeResponse(RespOK, 1, nil))
	ft.queueBulkIn(encodeResponse(RespOK, 2, nil)) // OpenSession

	skipReset := true
	sess, err := Open(context.Background(), ft, Fingerprint{VendorID: 0x04a9, ProductID: 0x5555}, OpenOptions{
		Tuning: TuningOverride{SkipReset: &skipReset},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return sess
}

func TestDownloadWholeObjectSingleCall(t *testing.T) {
	ft := newFakeTransport()
	sess := openWholeObjectTestSession(t, ft)
	defer sess.events.stop()

	content := []byte("the entire object, in one call")
	dataContainer := append(encodeDataHeader(OpGetObject, 3, len(content)), content...)
	ft.queueBulkIn(dataContainer)
	ft.queueBulkIn(encodeResponse(RespOK, 3, nil))

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")

	if err := sess.Download(context.Background(), 7, dst, int64(len(content))); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("downloaded content mismatch: %q", got)
	}
}

func TestReadObjectRejectsRangedReadAgainstWholeObject(t *testing.T) {
	ft := newFakeTransport()
	sess := openWholeObjectTestSession(t, ft)
	defer sess.events.stop()

	chunks := make(chan []byte, 1)
	pool := newBufferPool(1, 16)

	err := sess.readObject(context.Background(), 7, 10, 5, pool, chunks)
	if _, ok := err.(*NotSupported); !ok {
		t.Fatalf("expected NotSupported for a ranged read against whole_object, got %v", err)
	}
}

func TestResumeContinuesFromCommittedBytes(t *testing.T) {
	ft := newFakeTransport()
	sess := openTransferTestSession(t, ft)
	defer sess.events.stop()

	content := []byte("0123456789ABCDEFGHIJ")
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	journalDir := t.TempDir()
	j, err := OpenJournal(journalDir)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	rec, err := j.Begin("dev1", "upload", src, 1, RootParent, int64(len(content)))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := j.SetRemoteHandle(rec, 99); err != nil {
		t.Fatalf("SetRemoteHandle: %v", err)
	}
	committed := int64(10)
	if err := j.Progress(rec, committed); err != nil {
		t.Fatalf("Progress: %v", err)
	}

	// pipelinedUploadFrom should only send the remaining bytes, as a
	// single SendPartialObject chunk.
	ft.queueBulkIn(encodeResponse(RespOK, 9, nil))

	if err := sess.Resume(context.Background(), j, rec); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if rec.CommittedBytes != int64(len(content)) {
		t.Fatalf("expected CommittedBytes to reach %d, got %d", len(content), rec.CommittedBytes)
	}
	if rec.State != TransferDone {
		t.Fatalf("expected TransferDone, got %v", rec.State)
	}
}

func TestUploadWriteTargetLadderFallsBackToWellKnownFolder(t *testing.T) {
	ft := newFakeTransport()
	sess := openTestSession(t, ft)
	defer sess.events.stop()

	sess.tuning.WriteToSubfolderOnly = true

	content := []byte("payload for a subfolder-only device")
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	queueDataset := func(op uint16, txn uint32, payload []byte) {
		ft.queueBulkIn(append(encodeDataHeader(op, txn, len(payload)), payload...))
		ft.queueBulkIn(encodeResponse(RespOK, txn, nil))
	}

	// sendPrelude against the explicit (unwritable) parent: SendObjectInfo
	// fails write-protected.
	ft.queueBulkIn(encodeResponse(RespWriteProtected, 3, nil))

	// resolveWriteParent lists root's children via the
	// handles_then_info fallback (this device has no GetObjectPropList).
	handles := encodeU32(2)
	handles = append(handles, encodeU32(10)...)
	handles = append(handles, encodeU32(20)...)
	queueDataset(OpGetObjectHandles, 4, handles)
	fileEntry := ObjectInfo{StorageID: 1, ObjectFormat: 0x3000, ParentObject: RootParent, Filename: "readme.txt"}
	dcimEntry := ObjectInfo{StorageID: 1, ObjectFormat: FormatAssociation, ParentObject: RootParent, Filename: "DCIM"}
	queueDataset(OpGetObjectInfo, 5, encodeObjectInfo(fileEntry))
	queueDataset(OpGetObjectInfo, 6, encodeObjectInfo(dcimEntry))

	// sendPrelude against the resolved DCIM folder succeeds.
	ft.queueBulkIn(encodeResponse(RespOK, 7, []uint32{1, 20, 77}))

	// pipelinedUpload: this device has no SendPartialObject, so it
	// falls back to a single SendObject call.
	ft.queueBulkIn(encodeResponse(RespOK, 8, nil))

	journalDir := t.TempDir()
	j, err := OpenJournal(journalDir)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	target := WriteTarget{StorageID: 1, Parent: 5, Filename: "in.bin", Format: 0x3000, Size: int64(len(content))}
	handle, err := sess.Upload(context.Background(), j, "dev1", src, target)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if handle != 77 {
		t.Fatalf("expected handle 77, got %d", handle)
	}
}

func TestBusyBackoffDelayBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := busyBackoffDelay(attempt)
		if d < busyBackoffMinDelay || d > busyBackoffMaxDelay {
			t.Fatalf("attempt %d: delay %s out of bounds", attempt, d)
		}
	}
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/", nil},
		{"a/b/c", []string{"a", "b", "c"}},
		{"/a//b/", []string{"a", "b"}},
	}
	for _, c := range cases {
		got := splitPath(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("splitPath(%q) = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("splitPath(%q) = %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestBufferPoolBounded(t *testing.T) {
	pool := newBufferPool(1, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	buf1, err := pool.acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(buf1) != 16 {
		t.Fatalf("expected buffer of size 16, got %d", len(buf1))
	}

	// A second acquire should block until release, and then time out
	// against ctx since nothing releases it here.
	if _, err := pool.acquire(ctx); err == nil {
		t.Fatal("expected the second acquire to block until the context times out")
	}

	pool.release()
}
