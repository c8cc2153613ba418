// Command mtphost-ls opens the first MTP device matching a vid:pid
// pair and prints its device info and each storage's description and
// free space, as a minimal end-to-end exercise of the library.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"mtphost"
)

func main() {
	var vidPid string
	var settingsPath string
	flag.StringVar(&vidPid, "device", "", "vendor:product in hex, e.g. 04a9:3176")
	flag.StringVar(&settingsPath, "settings", "/etc/mtphost/mtphost.ini", "daemon settings file")
	flag.Parse()

	if vidPid == "" {
		log.Fatal("-device vid:pid is required")
	}
	vid, pid, err := parseVidPid(vidPid)
	if err != nil {
		log.Fatal(err)
	}

	settings, err := mtphost.LoadSettingsFile(settingsPath)
	if err != nil {
		log.Printf("using built-in defaults: %v", err)
	}

	quirks, err := mtphost.LoadQuirkDB(settings.QuirkDBDir)
	if err != nil {
		log.Printf("no quirk database loaded: %v", err)
		quirks = mtphost.NewQuirkSet(nil)
	}

	transport, fp, err := mtphost.OpenGousbTransport(vid, pid, 0)
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer transport.Close()

	quirk, _ := quirks.Resolve(fp)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := mtphost.OpenOptions{Tuning: *mtphost.LoadEnvOverride()}
	if quirk != nil {
		opts.Quirk = quirk
	}

	sess, err := mtphost.Open(ctx, transport, fp, opts)
	if err != nil {
		log.Fatalf("open session: %v (%s)", err, mtphost.Hint(err))
	}
	defer sess.Close(ctx)

	ids, err := sess.StorageIDs(ctx)
	if err != nil {
		log.Fatalf("list storages: %v", err)
	}
	if len(ids) == 0 {
		log.Fatal("device reports no storage")
	}

	info := sess.DeviceInfo()
	fmt.Printf("%s %s, serial %s\n", info.Manufacturer, info.Model, info.SerialNumber)

	for _, id := range ids {
		si, err := sess.StorageInfo(ctx, id)
		if err != nil {
			log.Printf("storage 0x%08x: %v", id, err)
			continue
		}
		fmt.Printf("storage 0x%08x: %s (%d bytes free)\n", id, si.StorageDescription, si.FreeSpaceInBytes)
	}
}

func parseVidPid(s string) (vid, pid uint16, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected vid:pid, got %q", s)
	}
	v, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, err
	}
	p, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, err
	}
	return uint16(v), uint16(p), nil
}
