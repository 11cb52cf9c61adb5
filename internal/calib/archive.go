package calib

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveFileName is the index file expected at the root of a
// calibration data directory.
const ArchiveFileName = "archive.csv"

type archiveEntry struct {
	Layout  string
	Device  string
	Channel int
	SetName string
}

// Archive is the index of calibrated LED sets under a calibration data
// directory. It maps a layout name (a generic LED description such as
// "660nm LEDs") and a device name to the LED set that was calibrated
// against that device.
type Archive struct {
	Root string

	entries []archiveEntry
}

// OpenArchive reads <root>/archive.csv. Expected columns:
// Layout, LPA, Channel, Archive ID.
func OpenArchive(root string) (*Archive, error) {
	path := filepath.Join(root, ArchiveFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("archive %s: empty file", path)
	}
	idx, err := headerIndex(records[0], "Layout", "LPA", "Channel", "Archive ID")
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", path, err)
	}

	a := &Archive{Root: root}
	for i, rec := range records[1:] {
		channel, err := ParseChannel(rec[idx["Channel"]])
		if err != nil {
			return nil, fmt.Errorf("archive %s, row %d: %w", path, i+2, err)
		}
		a.entries = append(a.entries, archiveEntry{
			Layout:  strings.TrimSpace(rec[idx["Layout"]]),
			Device:  strings.TrimSpace(rec[idx["LPA"]]),
			Channel: channel,
			SetName: strings.TrimSpace(rec[idx["Archive ID"]]),
		})
	}
	return a, nil
}

// Resolve returns the LED set name calibrated for the given layout on
// the given device channel. Exactly one archive entry must match.
func (a *Archive) Resolve(layout, device string, channel int) (string, error) {
	var hits []string
	for _, e := range a.entries {
		if e.Layout == layout && e.Device == device && e.Channel == channel {
			hits = append(hits, e.SetName)
		}
	}
	switch len(hits) {
	case 0:
		return "", fmt.Errorf("no archive entry for layout %q, device %q, channel %d", layout, device, channel)
	case 1:
		return hits[0], nil
	}
	return "", fmt.Errorf("%d archive entries for layout %q, device %q, channel %d", len(hits), layout, device, channel)
}

// TablePath returns the conventional location of an LED set's
// calibration table: <root>/<set>/<device>_c<n>/<set>_<device>_c<n>.csv,
// where n is the 1-based channel number.
func (a *Archive) TablePath(set, device string, channel int) string {
	sub := fmt.Sprintf("%s_c%d", device, channel+1)
	file := fmt.Sprintf("%s_%s_c%d.csv", set, device, channel+1)
	return filepath.Join(a.Root, set, sub, file)
}

// LoadSet loads the calibration table for a named LED set on the given
// device channel.
func (a *Archive) LoadSet(set, device string, channel int) (*Table, error) {
	return Load(a.TablePath(set, device, channel))
}
