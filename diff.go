package relay

import "math"

// PositionEpsilon is the per-component threshold below which position and
// rotation changes are considered noise and not worth a message.
const PositionEpsilon = 0.001

// vecDiffers reports whether any component moved beyond the threshold.
func vecDiffers(a, b Vec3, eps float64) bool {
	return math.Abs(a.X-b.X) > eps ||
		math.Abs(a.Y-b.Y) > eps ||
		math.Abs(a.Z-b.Z) > eps
}

// DiffSnapshots computes the partial update that carries next's changes
// relative to prev. Position and rotation use the epsilon threshold per
// component; discrete fields register on any change. The second return is
// false when nothing crossed a threshold and no message should be sent.
//
// A change of peer identity never diffs; the caller gets the full snapshot.
func DiffSnapshots(prev, next PeerSnapshot, eps float64) (PeerUpdate, bool) {
	if eps < 0 {
		eps = PositionEpsilon
	}
	if prev.ID != next.ID {
		return FullUpdate(next), true
	}

	update := PeerUpdate{ID: next.ID, LastUpdate: next.LastUpdate}
	changed := false

	if next.Name != prev.Name {
		name := next.Name
		update.Name = &name
		changed = true
	}
	if vecDiffers(prev.Position, next.Position, eps) {
		pos := next.Position
		update.Position = &pos
		changed = true
	}
	if vecDiffers(prev.Rotation, next.Rotation, eps) {
		rot := next.Rotation
		update.Rotation = &rot
		changed = true
	}
	if next.Environment != prev.Environment {
		env := next.Environment
		update.Environment = &env
		changed = true
	}
	if next.Character != prev.Character {
		character := next.Character
		update.Character = &character
		changed = true
	}
	if next.BoostActive != prev.BoostActive {
		boost := next.BoostActive
		update.BoostActive = &boost
		changed = true
	}
	if next.State != prev.State {
		state := next.State
		update.State = &state
		changed = true
	}

	return update, changed
}
