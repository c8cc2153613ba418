package mtphost

import "testing"

func TestQuirkSetResolveRequiresVidPid(t *testing.T) {
	qs := NewQuirkSet([]QuirkEntry{
		{Name: "generic", VendorID: 0x04a9, ProductID: 0x3176, Interface: -1},
	})

	if _, ok := qs.Resolve(Fingerprint{VendorID: 0x04a9, ProductID: 0x9999}); ok {
		t.Fatal("expected no match for mismatched product id")
	}
	if _, ok := qs.Resolve(Fingerprint{VendorID: 0x04a9, ProductID: 0x3176}); !ok {
		t.Fatal("expected a match")
	}
}

func TestQuirkSetMoreSpecificEntryWins(t *testing.T) {
	maxChunk := uint32(1 << 20)
	specificChunk := uint32(4 << 20)

	qs := NewQuirkSet([]QuirkEntry{
		{Name: "generic", VendorID: 0x04a9, ProductID: 0x3176, Interface: -1,
			Tuning: TuningOverride{MaxChunkBytes: &maxChunk}},
		{Name: "specific", VendorID: 0x04a9, ProductID: 0x3176, Interface: 0,
			Tuning: TuningOverride{MaxChunkBytes: &specificChunk}},
	})

	e, ok := qs.Resolve(Fingerprint{VendorID: 0x04a9, ProductID: 0x3176, Interface: 0})
	if !ok {
		t.Fatal("expected a match")
	}
	if *e.Tuning.MaxChunkBytes != specificChunk {
		t.Fatalf("expected the more specific entry to win, got %d", *e.Tuning.MaxChunkBytes)
	}
}

func TestQuirkSetDeviceNameGlob(t *testing.T) {
	qs := NewQuirkSet([]QuirkEntry{
		{Name: "by-name", VendorID: 0x04a9, ProductID: 0x3176, Interface: -1, DeviceNameGlob: "Canon*"},
	})

	if _, ok := qs.Resolve(Fingerprint{VendorID: 0x04a9, ProductID: 0x3176, DeviceName: "Nikon D500"}); ok {
		t.Fatal("expected no match for a non-matching device name")
	}
	if _, ok := qs.Resolve(Fingerprint{VendorID: 0x04a9, ProductID: 0x3176, DeviceName: "Canon EOS R5"}); !ok {
		t.Fatal("expected a match for a matching device name")
	}
}

func TestQuirkSetResolveNoMatchPTPClassDefaults(t *testing.T) {
	qs := NewQuirkSet([]QuirkEntry{
		{Name: "unrelated", VendorID: 0x2717, ProductID: 0xff10, Interface: -1},
	})

	entry, matched := qs.Resolve(Fingerprint{VendorID: 0xffff, ProductID: 0xffff, Interface: -1, InterfaceClass: usbInterfaceClassStillImage})
	if matched {
		t.Fatal("expected no database entry to match")
	}
	if entry == nil {
		t.Fatal("expected a synthesized default entry")
	}
	if entry.Tuning.SupportsGetObjectPropList == nil || !*entry.Tuning.SupportsGetObjectPropList {
		t.Fatalf("expected ptp camera defaults to support GetObjectPropList, got %+v", entry.Tuning)
	}
	if entry.Tuning.RequiresKernelDetach == nil || *entry.Tuning.RequiresKernelDetach {
		t.Fatalf("expected ptp camera defaults to not require kernel detach, got %+v", entry.Tuning)
	}
}

func TestQuirkSetResolveNoMatchConservativeDefaults(t *testing.T) {
	qs := NewQuirkSet(nil)

	entry, matched := qs.Resolve(Fingerprint{VendorID: 0x1111, ProductID: 0x2222, Interface: -1, InterfaceClass: 0xff})
	if matched {
		t.Fatal("expected no database entry to match")
	}
	if entry.Tuning.SupportsGetObjectPropList == nil || *entry.Tuning.SupportsGetObjectPropList {
		t.Fatalf("expected the conservative default to not support GetObjectPropList, got %+v", entry.Tuning)
	}
	if entry.Tuning.ForceStrategy == nil || *entry.Tuning.ForceStrategy != string(strategyHandlesThenInfo) {
		t.Fatalf("expected the conservative default to force handles_then_info, got %+v", entry.Tuning)
	}
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pat, name string
		want      bool
	}{
		{"*", "anything", true},
		{"Canon*", "Canon EOS R5", true},
		{"canon*", "Canon EOS R5", true},
		{"*R5", "Canon EOS R5", true},
		{"Nikon*", "Canon EOS R5", false},
		{"Canon?EOS*", "Canon EOS R5", true},
	}
	for _, c := range cases {
		if got := GlobMatch(c.pat, c.name); got != c.want {
			t.Errorf("GlobMatch(%q, %q) = %v, want %v", c.pat, c.name, got, c.want)
		}
	}
}

func TestResolvePolicyPrecedence(t *testing.T) {
	learnedChunk := uint32(2 << 20)
	quirkChunk := uint32(4 << 20)
	overrideChunk := uint32(8 << 20)

	t1 := ResolvePolicy(nil, nil, nil)
	if t1.MaxChunkBytes != DefaultMaxChunkBytes {
		t.Fatalf("expected default, got %d", t1.MaxChunkBytes)
	}
	if t1.Provenance["MaxChunkBytes"] != "default" {
		t.Fatalf("expected default provenance, got %q", t1.Provenance["MaxChunkBytes"])
	}

	t2 := ResolvePolicy(&TuningOverride{MaxChunkBytes: &learnedChunk}, nil, nil)
	if t2.MaxChunkBytes != learnedChunk || t2.Provenance["MaxChunkBytes"] != "learned" {
		t.Fatalf("expected learned layer to win: %+v", t2)
	}

	t3 := ResolvePolicy(&TuningOverride{MaxChunkBytes: &learnedChunk}, &TuningOverride{MaxChunkBytes: &quirkChunk}, nil)
	if t3.MaxChunkBytes != quirkChunk || t3.Provenance["MaxChunkBytes"] != "quirk" {
		t.Fatalf("expected quirk layer to win: %+v", t3)
	}

	t4 := ResolvePolicy(&TuningOverride{MaxChunkBytes: &learnedChunk}, &TuningOverride{MaxChunkBytes: &quirkChunk}, &TuningOverride{MaxChunkBytes: &overrideChunk})
	if t4.MaxChunkBytes != overrideChunk || t4.Provenance["MaxChunkBytes"] != "override" {
		t.Fatalf("expected override layer to win: %+v", t4)
	}
}
