package mtphost

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// ProfileStore persists a learned per-identity record to a flat-file
// directory: one .ini file per StableIdentity key, so the enumeration
// strategy and chunk size learned last session survive a reconnect
// without re-probing.
type ProfileStore struct {
	dir string
}

// LearnedProfile is what the store remembers about a device.
type LearnedProfile struct {
	Strategy      string // enumeration strategy that worked last time
	MaxChunkBytes uint32
	UpdatedAt     time.Time
}

func NewProfileStore(dir string) *ProfileStore {
	return &ProfileStore{dir: dir}
}

func (ps *ProfileStore) path(key string) string {
	return filepath.Join(ps.dir, key+".ini")
}

// Load returns the persisted profile for key, or (zero, false) if
// none exists or the file is unreadable/corrupt — a missing or broken
// profile simply means the enumeration engine probes fresh.
func (ps *ProfileStore) Load(key string) (LearnedProfile, bool) {
	f, err := ini.Load(ps.path(key))
	if err != nil {
		return LearnedProfile{}, false
	}

	sec := f.Section("profile")
	var p LearnedProfile
	p.Strategy = sec.Key("strategy").String()
	p.MaxChunkBytes = uint32(sec.Key("max_chunk_bytes").MustUint(uint(DefaultMaxChunkBytes)))
	if ts := sec.Key("updated_at").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			p.UpdatedAt = t
		}
	}

	if p.Strategy == "" {
		return LearnedProfile{}, false
	}
	return p, true
}

// Save writes p for key, creating the directory if needed.
func (ps *ProfileStore) Save(key string, p LearnedProfile) error {
	if err := os.MkdirAll(ps.dir, 0o755); err != nil {
		return err
	}

	f := ini.Empty()
	sec, err := f.NewSection("profile")
	if err != nil {
		return err
	}
	sec.Key("strategy").SetValue(p.Strategy)
	sec.Key("max_chunk_bytes").SetValue(strconv.FormatUint(uint64(p.MaxChunkBytes), 10))
	sec.Key("updated_at").SetValue(p.UpdatedAt.Format(time.RFC3339))

	tmp := ps.path(key) + ".tmp"
	if err := f.SaveTo(tmp); err != nil {
		return err
	}
	return os.Rename(tmp, ps.path(key))
}

// ToOverride converts a LearnedProfile into the TuningOverride layer
// ResolvePolicy expects.
func (p *LearnedProfile) ToOverride() *TuningOverride {
	chunk := p.MaxChunkBytes
	strat := p.Strategy
	return &TuningOverride{
		MaxChunkBytes: &chunk,
		ForceStrategy: &strat,
	}
}
