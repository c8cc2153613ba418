package mtphost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransferState is the lifecycle state of one journal record.
type TransferState string

const (
	TransferActive   TransferState = "active"
	TransferPaused   TransferState = "paused"
	TransferDone     TransferState = "done"
	TransferFailed   TransferState = "failed"
)

// TransferRecord is the durable record of one in-flight or resumable
// transfer, keyed by UUID. CommittedBytes tracks how much of the
// object the device has actually accepted — the transfer engine
// updates it as each chunk's SendPartialObject completes, so a resume
// never re-sends bytes the device already has.
type TransferRecord struct {
	ID             string
	Identity       string // StableIdentity.Key()
	Direction      string // "upload" or "download"
	LocalPath      string
	RemoteHandle   uint32 // 0 until the device has assigned one
	StorageID      uint32
	ParentObject   uint32
	TotalBytes     int64
	CommittedBytes int64
	State          TransferState
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastError      string
}

// Journal is a directory of one JSON file per TransferRecord, guarded
// by an advisory lock so two host processes never interleave writes
// to the same journal directory.
type Journal struct {
	dir  string
	lock *dirLock

	mu sync.Mutex
}

// OpenJournal acquires the directory lock and returns a ready Journal.
func OpenJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock, err := acquireDirLock(filepath.Join(dir, ".lock"))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Journal{dir: dir, lock: lock}, nil
}

// Close releases the directory lock.
func (j *Journal) Close() error {
	return j.lock.release()
}

func (j *Journal) path(id string) string {
	return filepath.Join(j.dir, id+".json")
}

// Begin creates a new active record and persists it before the data
// phase begins, returning the assigned ID.
func (j *Journal) Begin(identity, direction, localPath string, storageID, parent uint32, total int64) (*TransferRecord, error) {
	r := &TransferRecord{
		ID:           uuid.NewString(),
		Identity:     identity,
		Direction:    direction,
		LocalPath:    localPath,
		StorageID:    storageID,
		ParentObject: parent,
		TotalBytes:   total,
		State:        TransferActive,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := j.save(r); err != nil {
		return nil, err
	}
	return r, nil
}

// SetRemoteHandle records the object handle the device assigned,
// captured before the data phase begins so a crash mid-transfer can
// still identify (and potentially clean up) the partial object.
func (j *Journal) SetRemoteHandle(r *TransferRecord, handle uint32) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r.RemoteHandle = handle
	r.UpdatedAt = time.Now()
	return j.save(r)
}

// Progress updates CommittedBytes as chunks land.
func (j *Journal) Progress(r *TransferRecord, committed int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r.CommittedBytes = committed
	r.UpdatedAt = time.Now()
	return j.save(r)
}

// Pause transitions an active record to paused, for a transfer the
// caller intends to resume later (e.g. on ErrDisconnected).
func (j *Journal) Pause(r *TransferRecord) error {
	return j.transition(r, TransferPaused, "")
}

// Finish transitions to done or failed.
func (j *Journal) Finish(r *TransferRecord, failErr error) error {
	if failErr != nil {
		return j.transition(r, TransferFailed, failErr.Error())
	}
	return j.transition(r, TransferDone, "")
}

func (j *Journal) transition(r *TransferRecord, state TransferState, lastErr string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r.State = state
	r.LastError = lastErr
	r.UpdatedAt = time.Now()
	return j.save(r)
}

func (j *Journal) save(r *TransferRecord) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := j.path(r.ID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, j.path(r.ID))
}

// Resumable returns every record for identity whose state is active
// or paused — the set of transfers the caller may offer to resume.
func (j *Journal) Resumable(identity string) ([]*TransferRecord, error) {
	matches, err := filepath.Glob(filepath.Join(j.dir, "*.json"))
	if err != nil {
		return nil, err
	}

	var out []*TransferRecord
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var r TransferRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		if r.Identity != identity {
			continue
		}
		if r.State == TransferActive || r.State == TransferPaused {
			out = append(out, &r)
		}
	}
	return out, nil
}

// Forget removes a record once its result has been consumed by the
// caller (normally after TransferDone/TransferFailed).
func (j *Journal) Forget(id string) error {
	err := os.Remove(j.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
