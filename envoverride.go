package mtphost

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// envPrefix is the prefix environment variables must carry to be
// considered, keeping one namespace per knob family.
const envPrefix = "MTPHOST_"

// LoadEnvOverride builds a TuningOverride from MTPHOST_* environment
// variables, for the highest-precedence "caller override" layer when
// no explicit in-process override is supplied. Unset variables leave
// the corresponding field nil.
func LoadEnvOverride() *TuningOverride {
	var o TuningOverride

	if v, ok := envMs("MTPHOST_IO_TIMEOUT_MS"); ok {
		o.IOTimeout = v
	}
	if v, ok := envMs("MTPHOST_HANDSHAKE_TIMEOUT_MS"); ok {
		o.HandshakeTimeout = v
	}
	if v, ok := envMs("MTPHOST_INACTIVITY_TIMEOUT_MS"); ok {
		o.InactivityTimeout = v
	}
	if v, ok := envMs("MTPHOST_OVERALL_DEADLINE_MS"); ok {
		o.OverallDeadline = v
	}
	if v, ok := os.LookupEnv("MTPHOST_MAX_CHUNK_BYTES"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			u := uint32(n)
			o.MaxChunkBytes = &u
		}
	}
	if v, ok := os.LookupEnv("MTPHOST_SKIP_RESET"); ok {
		b := strings.EqualFold(v, "true") || v == "1"
		o.SkipReset = &b
	}
	if v, ok := os.LookupEnv("MTPHOST_FORCE_STRATEGY"); ok {
		o.ForceStrategy = &v
	}
	if v, ok := os.LookupEnv("MTPHOST_BUSY_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			o.BusyRetries = &n
		}
	}

	return &o
}

func envMs(name string) (*durationMs, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, false
	}
	d := durationMs(n)
	return &d, true
}

// LoadSettingsFile reads the daemon-wide .ini settings file (log
// level, journal directory, quirk database directory) used at
// startup; it is independent of the per-device tuning override layer
// above.
type Settings struct {
	LogLevel     string
	JournalDir   string
	QuirkDBDir   string
	ProfileDir   string
}

func LoadSettingsFile(path string) (Settings, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Settings{}, err
	}

	sec := f.Section("")
	return Settings{
		LogLevel:   sec.Key("log_level").MustString("info"),
		JournalDir: sec.Key("journal_dir").MustString("/var/lib/mtphost/journal"),
		QuirkDBDir: sec.Key("quirk_db_dir").MustString("/etc/mtphost/quirks.d"),
		ProfileDir: sec.Key("profile_dir").MustString("/var/lib/mtphost/profiles"),
	}, nil
}
