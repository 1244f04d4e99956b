// Package flashsim stands in for the on-chip flash substrate the update
// core writes to: a fixed-size, write-block-aligned byte-addressable
// area, backed on a development host by a plain file. It implements the
// flash interface the orchestrator and copier consume —
// open/read/erase/write/close over a primary slot — plus area geometry
// bookkeeping for hosts that declare more than one flash area.
package flashsim

import (
	"fmt"
	"sort"
)

// Geometry describes one flash area's placement within a device, the
// way a board's flash map table does. Only the primary slot is ever
// written by the update core (single-slot, no A/B juggling), but a
// host may still declare a full table (e.g. bootloader + primary +
// scratch) for validation purposes.
type Geometry struct {
	Name   string `yaml:"name"`
	ID     int    `yaml:"id"`
	Device int    `yaml:"device"`
	Offset int64  `yaml:"offset"`
	Size   int64  `yaml:"size"`
}

type byDeviceOffset []Geometry

func (s byDeviceOffset) Len() int      { return len(s) }
func (s byDeviceOffset) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byDeviceOffset) Less(i, j int) bool {
	if s[i].Device != s[j].Device {
		return s[i].Device < s[j].Device
	}
	return s[i].Offset < s[j].Offset
}

// SortByDeviceOffset returns areas sorted by (device, offset), the
// natural order for scanning a flash map for overlaps.
func SortByDeviceOffset(areas []Geometry) []Geometry {
	sorted := append([]Geometry{}, areas...)
	sort.Sort(byDeviceOffset(sorted))
	return sorted
}

func distinct(a, b Geometry) bool {
	lo, hi := a, b
	if b.Offset < a.Offset {
		lo, hi = b, a
	}
	return lo.Device != hi.Device || lo.Offset+lo.Size <= hi.Offset
}

// DetectOverlaps reports every pair of areas that share device and
// address-range space, and every pair that share an ID. A correctly
// declared flash map has neither.
func DetectOverlaps(areas []Geometry) (overlaps [][2]Geometry, idConflicts [][2]Geometry) {
	for i := 0; i < len(areas); i++ {
		for j := i + 1; j < len(areas); j++ {
			if !distinct(areas[i], areas[j]) {
				overlaps = append(overlaps, [2]Geometry{areas[i], areas[j]})
			}
			if areas[i].ID == areas[j].ID {
				idConflicts = append(idConflicts, [2]Geometry{areas[i], areas[j]})
			}
		}
	}
	return overlaps, idConflicts
}

// DescribeErrors renders overlaps/idConflicts the way a preflight
// "doctor" command reports a bad flash map to a human.
func DescribeErrors(overlaps [][2]Geometry, idConflicts [][2]Geometry) string {
	out := ""
	for _, pair := range idConflicts {
		out += fmt.Sprintf("conflicting flash area ids: %s and %s both use id %d\n",
			pair[0].Name, pair[1].Name, pair[0].ID)
	}
	for _, pair := range overlaps {
		out += fmt.Sprintf("overlapping flash areas: %s and %s\n", pair[0].Name, pair[1].Name)
	}
	return out
}
