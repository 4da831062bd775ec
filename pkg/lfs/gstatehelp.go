package lfs

import "github.com/flashfs/flashfs/pkg/gstate"

// gstateBytes returns the accumulator's current live state in its
// 12-byte on-disk form, for passing as the absolute MOVESTATE payload
// of the next commit (see DESIGN.md's gstate open-question decision).
func gstateBytes(acc *gstate.Accumulator) [12]byte {
	return gstate.Encode(acc.Current())
}
