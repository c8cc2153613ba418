package mtphost

import "time"

// EffectiveTuning is the fully-resolved set of knobs a session actor
// runs with, after merging defaults, a learned profile, a matched
// quirk, and any caller-supplied override, in that ascending order of
// precedence.
type EffectiveTuning struct {
	IOTimeout          time.Duration
	HandshakeTimeout   time.Duration
	InactivityTimeout  time.Duration
	OverallDeadline    time.Duration
	StabilizeDelay     time.Duration
	PostClaimStabilize time.Duration
	MaxChunkBytes      uint32
	SkipReset          bool
	ForceStrategy      string
	BusyRetries        int

	// WriteToSubfolderOnly and PreferredWriteFolder drive the
	// write-target resolution ladder (transfer.go's
	// resolveWriteParent) for devices that reject writes to an
	// arbitrary parent.
	WriteToSubfolderOnly  bool
	PreferredWriteFolder  string

	// SupportsGetObjectPropList and RequiresKernelDetach are
	// informational capability hints, normally superseded by the
	// session's own capability probe once a device responds; they
	// matter chiefly as the synthesized no-match quirk defaults
	// (quirks.go's defaultQuirkEntry).
	SupportsGetObjectPropList bool
	RequiresKernelDetach      bool

	// Provenance records, per field, which layer last set it: one of
	// "default", "learned", "quirk", "override".
	Provenance map[string]string
}

// defaultTuning returns the package-wide defaults as an EffectiveTuning
// with every field's provenance set to "default".
func defaultTuning() EffectiveTuning {
	return EffectiveTuning{
		IOTimeout:          DefaultIOTimeout,
		HandshakeTimeout:   DefaultHandshakeTimeout,
		InactivityTimeout:  DefaultInactivityTimeout,
		OverallDeadline:    DefaultOverallDeadline,
		StabilizeDelay:     DefaultStabilizeDelay,
		PostClaimStabilize: DefaultPostClaimStabilize,
		MaxChunkBytes:      DefaultMaxChunkBytes,
		BusyRetries:        DefaultBusyRetries,
		Provenance: map[string]string{
			"IOTimeout": "default", "HandshakeTimeout": "default",
			"InactivityTimeout": "default", "OverallDeadline": "default",
			"StabilizeDelay": "default", "PostClaimStabilize": "default",
			"MaxChunkBytes": "default", "SkipReset": "default",
			"ForceStrategy": "default", "BusyRetries": "default",
			"WriteToSubfolderOnly": "default", "PreferredWriteFolder": "default",
			"SupportsGetObjectPropList": "default", "RequiresKernelDetach": "default",
		},
	}
}

// ResolvePolicy merges the four layers in precedence order: defaults,
// then a learned profile (may be nil), then a matched quirk's
// TuningOverride (may be nil), then a caller override (may be nil).
// Each non-nil field in a later layer replaces the prior value and
// takes over its provenance entry.
func ResolvePolicy(learned *TuningOverride, quirk *TuningOverride, override *TuningOverride) EffectiveTuning {
	t := defaultTuning()
	t.apply(learned, "learned")
	t.apply(quirk, "quirk")
	t.apply(override, "override")
	return t
}

func (t *EffectiveTuning) apply(o *TuningOverride, layer string) {
	if o == nil {
		return
	}
	if o.IOTimeout != nil {
		t.IOTimeout = time.Duration(*o.IOTimeout) * time.Millisecond
		t.Provenance["IOTimeout"] = layer
	}
	if o.HandshakeTimeout != nil {
		t.HandshakeTimeout = time.Duration(*o.HandshakeTimeout) * time.Millisecond
		t.Provenance["HandshakeTimeout"] = layer
	}
	if o.InactivityTimeout != nil {
		t.InactivityTimeout = time.Duration(*o.InactivityTimeout) * time.Millisecond
		t.Provenance["InactivityTimeout"] = layer
	}
	if o.OverallDeadline != nil {
		t.OverallDeadline = time.Duration(*o.OverallDeadline) * time.Millisecond
		t.Provenance["OverallDeadline"] = layer
	}
	if o.StabilizeDelay != nil {
		t.StabilizeDelay = time.Duration(*o.StabilizeDelay) * time.Millisecond
		t.Provenance["StabilizeDelay"] = layer
	}
	if o.PostClaimStabilize != nil {
		t.PostClaimStabilize = time.Duration(*o.PostClaimStabilize) * time.Millisecond
		t.Provenance["PostClaimStabilize"] = layer
	}
	if o.MaxChunkBytes != nil {
		v := *o.MaxChunkBytes
		if v < MinChunkBytes {
			v = MinChunkBytes
		}
		if v > MaxChunkBytesCap {
			v = MaxChunkBytesCap
		}
		t.MaxChunkBytes = v
		t.Provenance["MaxChunkBytes"] = layer
	}
	if o.SkipReset != nil {
		t.SkipReset = *o.SkipReset
		t.Provenance["SkipReset"] = layer
	}
	if o.ForceStrategy != nil {
		t.ForceStrategy = *o.ForceStrategy
		t.Provenance["ForceStrategy"] = layer
	}
	if o.BusyRetries != nil {
		t.BusyRetries = *o.BusyRetries
		t.Provenance["BusyRetries"] = layer
	}
	if o.WriteToSubfolderOnly != nil {
		t.WriteToSubfolderOnly = *o.WriteToSubfolderOnly
		t.Provenance["WriteToSubfolderOnly"] = layer
	}
	if o.PreferredWriteFolder != nil {
		t.PreferredWriteFolder = *o.PreferredWriteFolder
		t.Provenance["PreferredWriteFolder"] = layer
	}
	if o.SupportsGetObjectPropList != nil {
		t.SupportsGetObjectPropList = *o.SupportsGetObjectPropList
		t.Provenance["SupportsGetObjectPropList"] = layer
	}
	if o.RequiresKernelDetach != nil {
		t.RequiresKernelDetach = *o.RequiresKernelDetach
		t.Provenance["RequiresKernelDetach"] = layer
	}
}

// WriteLog renders the resolved tuning with per-field provenance, one
// line per field, for diagnostics dumps.
func (t *EffectiveTuning) WriteLog(w func(format string, args ...interface{})) {
	w("IOTimeout=%s (%s)", t.IOTimeout, t.Provenance["IOTimeout"])
	w("HandshakeTimeout=%s (%s)", t.HandshakeTimeout, t.Provenance["HandshakeTimeout"])
	w("InactivityTimeout=%s (%s)", t.InactivityTimeout, t.Provenance["InactivityTimeout"])
	w("OverallDeadline=%s (%s)", t.OverallDeadline, t.Provenance["OverallDeadline"])
	w("StabilizeDelay=%s (%s)", t.StabilizeDelay, t.Provenance["StabilizeDelay"])
	w("PostClaimStabilize=%s (%s)", t.PostClaimStabilize, t.Provenance["PostClaimStabilize"])
	w("MaxChunkBytes=%d (%s)", t.MaxChunkBytes, t.Provenance["MaxChunkBytes"])
	w("SkipReset=%v (%s)", t.SkipReset, t.Provenance["SkipReset"])
	w("ForceStrategy=%q (%s)", t.ForceStrategy, t.Provenance["ForceStrategy"])
	w("BusyRetries=%d (%s)", t.BusyRetries, t.Provenance["BusyRetries"])
	w("WriteToSubfolderOnly=%v (%s)", t.WriteToSubfolderOnly, t.Provenance["WriteToSubfolderOnly"])
	w("PreferredWriteFolder=%q (%s)", t.PreferredWriteFolder, t.Provenance["PreferredWriteFolder"])
	w("SupportsGetObjectPropList=%v (%s)", t.SupportsGetObjectPropList, t.Provenance["SupportsGetObjectPropList"])
	w("RequiresKernelDetach=%v (%s)", t.RequiresKernelDetach, t.Provenance["RequiresKernelDetach"])
}
