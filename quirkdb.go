package mtphost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// quirkDBEntry is the on-disk JSON shape of one quirk database row.
// VendorID/ProductID are hex strings ("0x04a9") to match how vendors
// publish them; every other field is optional.
type quirkDBEntry struct {
	Name       string `json:"name"`
	VendorID   string `json:"vendor_id"`
	ProductID  string `json:"product_id"`
	BCDDevice  string `json:"bcd_device,omitempty"`
	Interface  *int   `json:"interface,omitempty"`
	DeviceName string `json:"device_name,omitempty"`

	Tuning struct {
		IOTimeoutMs          *int64  `json:"io_timeout_ms,omitempty"`
		HandshakeTimeoutMs   *int64  `json:"handshake_timeout_ms,omitempty"`
		InactivityTimeoutMs  *int64  `json:"inactivity_timeout_ms,omitempty"`
		OverallDeadlineMs    *int64  `json:"overall_deadline_ms,omitempty"`
		StabilizeDelayMs     *int64  `json:"stabilize_delay_ms,omitempty"`
		PostClaimStabilizeMs *int64  `json:"post_claim_stabilize_ms,omitempty"`
		MaxChunkBytes        *uint32 `json:"max_chunk_bytes,omitempty"`
		SkipReset            *bool   `json:"skip_reset,omitempty"`
		ForceStrategy        *string `json:"force_strategy,omitempty"`
		BusyRetries          *int    `json:"busy_retries,omitempty"`
	} `json:"tuning"`
}

// LoadQuirkDB reads every *.json file in dir and returns the combined
// set. Each file is expected to hold a JSON array of quirkDBEntry
// objects; a malformed file is reported with its path in the error so
// a bad drop-in doesn't silently disable the whole set.
func LoadQuirkDB(dir string) (*QuirkSet, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	var entries []QuirkEntry
	for _, path := range matches {
		parsed, err := loadQuirkFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		entries = append(entries, parsed...)
	}

	return NewQuirkSet(entries), nil
}

func loadQuirkFile(path string) ([]QuirkEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rows []quirkDBEntry
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}

	entries := make([]QuirkEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toQuirkEntry()
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", r.Name, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *quirkDBEntry) toQuirkEntry() (QuirkEntry, error) {
	vid, err := parseHex16(r.VendorID)
	if err != nil {
		return QuirkEntry{}, fmt.Errorf("vendor_id: %w", err)
	}
	pid, err := parseHex16(r.ProductID)
	if err != nil {
		return QuirkEntry{}, fmt.Errorf("product_id: %w", err)
	}

	e := QuirkEntry{
		Name:      r.Name,
		VendorID:  vid,
		ProductID: pid,
		Interface: -1,
	}

	if r.BCDDevice != "" {
		bcd, err := parseHex16(r.BCDDevice)
		if err != nil {
			return QuirkEntry{}, fmt.Errorf("bcd_device: %w", err)
		}
		e.BCDDevice = bcd
		e.HasBCD = true
	}
	if r.Interface != nil {
		e.Interface = *r.Interface
	}
	e.DeviceNameGlob = r.DeviceName

	t := r.Tuning
	e.Tuning = TuningOverride{
		IOTimeout:          msPtr(t.IOTimeoutMs),
		HandshakeTimeout:   msPtr(t.HandshakeTimeoutMs),
		InactivityTimeout:  msPtr(t.InactivityTimeoutMs),
		OverallDeadline:    msPtr(t.OverallDeadlineMs),
		StabilizeDelay:     msPtr(t.StabilizeDelayMs),
		PostClaimStabilize: msPtr(t.PostClaimStabilizeMs),
		MaxChunkBytes:      t.MaxChunkBytes,
		SkipReset:          t.SkipReset,
		ForceStrategy:      t.ForceStrategy,
		BusyRetries:        t.BusyRetries,
	}

	return e, nil
}

func msPtr(v *int64) *durationMs {
	if v == nil {
		return nil
	}
	d := durationMs(*v)
	return &d
}

func parseHex16(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
