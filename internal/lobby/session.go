package lobby

// Join appends a new player named name to the unassigned pool.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns the new player, or sessionNotFound if the session was
// dissolved, alreadyLaunched if it left the Forming state, or
// playerAlreadyExists if name is present anywhere in the session.
func (s *Session) Join(name string) (*Player, error) {
	if err := s.CanJoin(name); err != nil {
		return nil, err
	}
	p := NewPlayer(name)
	s.Players = append(s.Players, p)
	return p, nil
}

// CanJoin reports the error Join would return for name without changing the
// session.
//
// Precondition: caller holds the session lock.
func (s *Session) CanJoin(name string) error {
	if s.closed {
		return ErrSessionNotFound(s.ID)
	}
	if s.Launched {
		return errAlreadyLaunched(s.ID)
	}
	if _, _, ok := s.FindPlayer(name); ok {
		return errPlayerAlreadyExists(name, s.ID)
	}
	return nil
}

// Launch moves the session to the Launched state.
//
// Precondition: caller holds the session lock.
// Postcondition: Launched is true; a second call fails with alreadyLaunched.
func (s *Session) Launch() error {
	if s.Launched {
		return errAlreadyLaunched(s.ID)
	}
	s.Launched = true
	return nil
}

// Leave removes the named player from the pool or, failing that, from the
// first group holding it, clearing that group's leader if it was the player.
// When no player remains the session is marked dissolved.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns whether a player was removed and whether the session
// is now empty.
func (s *Session) Leave(name string) (removed, empty bool) {
	if i := s.poolIndex(name); i >= 0 {
		s.Players = removeAt(s.Players, i)
		removed = true
	} else {
		for _, g := range s.Groups {
			if i := g.indexOf(name); i >= 0 {
				if g.Leader == g.Players[i] {
					g.Leader = nil
				}
				g.Players = removeAt(g.Players, i)
				removed = true
				break
			}
		}
	}
	if s.Empty() {
		s.closed = true
		return removed, true
	}
	return removed, false
}

// GroupProps are the optional properties of a group update. A nil field is
// left untouched; an empty string clears the property.
type GroupProps struct {
	Name        *string `json:"name,omitempty"`
	VehicleName *string `json:"vehicleName,omitempty"`
	LeaderName  *string `json:"leaderName,omitempty"`
}

// CreateGroup adds an empty group whose index is one above the current
// maximum. A non-empty name must not be used by another group.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns the new group or groupAlreadyExists.
func (s *Session) CreateGroup(name string) (*Group, error) {
	if name != "" {
		if _, taken := s.groupNamed(name); taken {
			return nil, errGroupAlreadyExists(name)
		}
	}
	last := 0
	for _, g := range s.Groups {
		last = max(last, g.Index)
	}
	g := &Group{Index: last + 1, Name: name, Players: []*Player{}}
	s.Groups = append(s.Groups, g)
	return g, nil
}

// UpdateGroup applies props to the group at index. All sub-updates are
// validated before any is applied.
//
// Precondition: caller holds the session lock.
// Postcondition: Either every requested property is applied or none is.
func (s *Session) UpdateGroup(index int, props GroupProps) error {
	g, ok := s.Group(index)
	if !ok {
		return errGroupNotFound(index)
	}

	if props.Name != nil && *props.Name != "" {
		if other, taken := s.groupNamed(*props.Name); taken && other != g {
			return errGroupAlreadyExists(*props.Name)
		}
	}

	vehicle := g.Vehicle
	if props.VehicleName != nil {
		vehicle = nil
		if *props.VehicleName != "" {
			v, err := s.vehicle(*props.VehicleName)
			if err != nil {
				return err
			}
			vehicle = v
		}
	}

	leader := g.Leader
	if props.LeaderName != nil {
		leader = nil
		if *props.LeaderName != "" {
			i := g.indexOf(*props.LeaderName)
			if i < 0 {
				return errPlayerNotFoundInGroup(*props.LeaderName, index)
			}
			leader = g.Players[i]
		}
	}

	if props.Name != nil {
		g.Name = *props.Name
	}
	g.Vehicle = vehicle
	g.Leader = leader
	return nil
}

// RemoveGroup deletes the group at index, returning its players to the end
// of the unassigned pool in their group order.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns the removed group or groupNotFound.
func (s *Session) RemoveGroup(index int) (*Group, error) {
	for i, g := range s.Groups {
		if g.Index != index {
			continue
		}
		s.Players = append(s.Players, g.Players...)
		s.Groups = append(s.Groups[:i:i], s.Groups[i+1:]...)
		return g, nil
	}
	return nil, errGroupNotFound(index)
}

// AddPlayerToGroup moves a player from the unassigned pool to the end of the
// group at index.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns playerNotFound if the player is not in the pool, or
// groupNotFound; state is unchanged on error.
func (s *Session) AddPlayerToGroup(name string, index int) error {
	i := s.poolIndex(name)
	if i < 0 {
		return errPlayerNotFound(name)
	}
	g, ok := s.Group(index)
	if !ok {
		return errGroupNotFound(index)
	}
	p := s.Players[i]
	s.Players = removeAt(s.Players, i)
	g.Players = append(g.Players, p)
	return nil
}

// RemovePlayerFromGroup moves a player from the group at index back to the
// end of the unassigned pool.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns groupNotFound or playerNotFoundInGroup; state is
// unchanged on error.
func (s *Session) RemovePlayerFromGroup(name string, index int) error {
	g, ok := s.Group(index)
	if !ok {
		return errGroupNotFound(index)
	}
	i := g.indexOf(name)
	if i < 0 {
		return errPlayerNotFoundInGroup(name, index)
	}
	p := g.Players[i]
	if g.Leader == p {
		g.Leader = nil
	}
	g.Players = removeAt(g.Players, i)
	s.Players = append(s.Players, p)
	return nil
}

// SwitchPlayer moves a player from the group at oldIndex to the end of the
// group at newIndex.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns groupNotFound for either group or
// playerNotFoundInGroup when the player is not in the old group.
func (s *Session) SwitchPlayer(name string, oldIndex, newIndex int) error {
	oldGroup, ok := s.Group(oldIndex)
	if !ok {
		return errGroupNotFound(oldIndex)
	}
	newGroup, ok := s.Group(newIndex)
	if !ok {
		return errGroupNotFound(newIndex)
	}
	i := oldGroup.indexOf(name)
	if i < 0 {
		return errPlayerNotFoundInGroup(name, oldIndex)
	}
	p := oldGroup.Players[i]
	if oldGroup != newGroup && oldGroup.Leader == p {
		oldGroup.Leader = nil
	}
	oldGroup.Players = removeAt(oldGroup.Players, i)
	newGroup.Players = append(newGroup.Players, p)
	return nil
}

// PlayerProps are the optional properties of a player update.
type PlayerProps struct {
	VehicleName *string `json:"vehicleName,omitempty"`
}

// UpdatePlayerProps applies props to the named player wherever it is.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns playerNotFound or vehicleNotFound; state is
// unchanged on error.
func (s *Session) UpdatePlayerProps(name string, props PlayerProps) error {
	p, _, ok := s.FindPlayer(name)
	if !ok {
		return errPlayerNotFound(name)
	}
	if props.VehicleName != nil {
		if *props.VehicleName == "" {
			p.Vehicle = nil
			return nil
		}
		v, err := s.vehicle(*props.VehicleName)
		if err != nil {
			return err
		}
		p.Vehicle = v
	}
	return nil
}
