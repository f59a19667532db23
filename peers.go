package relay

// Vec3 carries a world-space position or Euler rotation in engine units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PeerSnapshot is one player's last-known public state. The relay keeps it in
// memory only; there is no persistence beyond the process.
type PeerSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Position    Vec3   `json:"position"`
	Rotation    Vec3   `json:"rotation"`
	Environment string `json:"environment,omitempty"`
	Character   string `json:"character,omitempty"`
	BoostActive bool   `json:"boostActive"`
	State       string `json:"state,omitempty"`
	LastUpdate  int64  `json:"lastUpdate"`
}

// PeerUpdate is the partial form of PeerSnapshot that travels on the wire.
// Only changed fields are populated; ID and LastUpdate are always present.
type PeerUpdate struct {
	ID          string  `json:"id"`
	Name        *string `json:"name,omitempty"`
	Position    *Vec3   `json:"position,omitempty"`
	Rotation    *Vec3   `json:"rotation,omitempty"`
	Environment *string `json:"environment,omitempty"`
	Character   *string `json:"character,omitempty"`
	BoostActive *bool   `json:"boostActive,omitempty"`
	State       *string `json:"state,omitempty"`
	LastUpdate  int64   `json:"lastUpdate"`
}

// FullUpdate converts a snapshot into an update carrying every field. Used for
// the first message a publisher emits, when there is no prior cache to diff
// against.
func FullUpdate(s PeerSnapshot) PeerUpdate {
	name := s.Name
	pos := s.Position
	rot := s.Rotation
	env := s.Environment
	character := s.Character
	boost := s.BoostActive
	state := s.State
	return PeerUpdate{
		ID:          s.ID,
		Name:        &name,
		Position:    &pos,
		Rotation:    &rot,
		Environment: &env,
		Character:   &character,
		BoostActive: &boost,
		State:       &state,
		LastUpdate:  s.LastUpdate,
	}
}

// ApplyTo merges the populated fields of the update into the snapshot.
func (u PeerUpdate) ApplyTo(s *PeerSnapshot) {
	if s == nil {
		return
	}
	if s.ID == "" {
		s.ID = u.ID
	}
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Position != nil {
		s.Position = *u.Position
	}
	if u.Rotation != nil {
		s.Rotation = *u.Rotation
	}
	if u.Environment != nil {
		s.Environment = *u.Environment
	}
	if u.Character != nil {
		s.Character = *u.Character
	}
	if u.BoostActive != nil {
		s.BoostActive = *u.BoostActive
	}
	if u.State != nil {
		s.State = *u.State
	}
	if u.LastUpdate > 0 {
		s.LastUpdate = u.LastUpdate
	}
}
