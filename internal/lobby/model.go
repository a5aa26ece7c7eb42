// Package lobby implements the rush lobby state machine: sessions, their
// unassigned player pool, groups, and player-owned state.
package lobby

import (
	"encoding/json"
	"sync"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
)

// Player is a participant of exactly one session.
type Player struct {
	Name     string           `json:"name"`
	Vehicle  *catalog.Vehicle `json:"vehicle,omitempty"`
	Rucksack *Box             `json:"rucksack,omitempty"`
	Boxes    []*Box           `json:"boxes"`
}

// NewPlayer creates a player with no vehicle and no containers.
func NewPlayer(name string) *Player {
	return &Player{Name: name, Boxes: []*Box{}}
}

// Group is a squad inside a session, addressed by its per-session Index.
type Group struct {
	Index   int
	Name    string
	Vehicle *catalog.Vehicle
	Leader  *Player
	Players []*Player
}

type groupJSON struct {
	Index      int              `json:"index"`
	Name       string           `json:"name,omitempty"`
	Vehicle    *catalog.Vehicle `json:"vehicle,omitempty"`
	LeaderName string           `json:"leaderName,omitempty"`
	Players    []*Player        `json:"players"`
}

// MarshalJSON renders the leader by name.
func (g *Group) MarshalJSON() ([]byte, error) {
	out := groupJSON{
		Index:   g.Index,
		Name:    g.Name,
		Vehicle: g.Vehicle,
		Players: g.Players,
	}
	if out.Players == nil {
		out.Players = []*Player{}
	}
	if g.Leader != nil {
		out.LeaderName = g.Leader.Name
	}
	return json.Marshal(out)
}

func (g *Group) indexOf(name string) int {
	for i, p := range g.Players {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Session is one rush lobby. Every exported method other than Lock and Unlock
// requires the caller to hold the session lock.
type Session struct {
	mu sync.Mutex

	ID       string
	Leader   *Player
	Players  []*Player
	Groups   []*Group
	Settings *catalog.Settings
	Launched bool
	Single   bool

	reducer Reducer
	closed  bool
}

// NewSession builds a Forming session whose pool holds only the leader.
// The session has no id until registered.
//
// Precondition: settings must be non-nil. A nil reducer selects SumReducer.
// Postcondition: Returns the session and its leader.
func NewSession(leaderName string, settings *catalog.Settings, single bool, reducer Reducer) (*Session, *Player) {
	if reducer == nil {
		reducer = SumReducer{}
	}
	leader := NewPlayer(leaderName)
	return &Session{
		Leader:   leader,
		Players:  []*Player{leader},
		Groups:   []*Group{},
		Settings: settings,
		Single:   single,
		reducer:  reducer,
	}, leader
}

// Lock acquires the session's exclusive lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's exclusive lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Closed reports whether the session has been dissolved.
func (s *Session) Closed() bool { return s.closed }

type sessionJSON struct {
	ID         string            `json:"id"`
	LeaderName string            `json:"leaderName,omitempty"`
	Players    []*Player         `json:"players"`
	Groups     []*Group          `json:"groups"`
	Settings   *catalog.Settings `json:"settings,omitempty"`
	Launched   bool              `json:"launched"`
	Single     bool              `json:"single"`
}

// MarshalJSON renders the full session state.
//
// Precondition: caller holds the session lock.
func (s *Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		ID:       s.ID,
		Players:  s.Players,
		Groups:   s.Groups,
		Settings: s.Settings,
		Launched: s.Launched,
		Single:   s.Single,
	}
	if s.Leader != nil {
		out.LeaderName = s.Leader.Name
	}
	return json.Marshal(out)
}

// PlayerNames returns every player name in the pool followed by each group's
// members in group order.
func (s *Session) PlayerNames() []string {
	names := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		names = append(names, p.Name)
	}
	for _, g := range s.Groups {
		for _, p := range g.Players {
			names = append(names, p.Name)
		}
	}
	return names
}

// Empty reports whether no player remains in the pool or any group.
func (s *Session) Empty() bool {
	if len(s.Players) > 0 {
		return false
	}
	for _, g := range s.Groups {
		if len(g.Players) > 0 {
			return false
		}
	}
	return true
}

func (s *Session) poolIndex(name string) int {
	for i, p := range s.Players {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// FindPlayer searches the pool then every group for name.
//
// Postcondition: Returns the player and its group (nil when in the pool), or ok=false.
func (s *Session) FindPlayer(name string) (p *Player, g *Group, ok bool) {
	if i := s.poolIndex(name); i >= 0 {
		return s.Players[i], nil, true
	}
	for _, g := range s.Groups {
		if i := g.indexOf(name); i >= 0 {
			return g.Players[i], g, true
		}
	}
	return nil, nil, false
}

// Group returns the group with the given index.
func (s *Session) Group(index int) (*Group, bool) {
	for _, g := range s.Groups {
		if g.Index == index {
			return g, true
		}
	}
	return nil, false
}

func (s *Session) groupNamed(name string) (*Group, bool) {
	for _, g := range s.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

func (s *Session) vehicle(name string) (*catalog.Vehicle, error) {
	if s.Settings != nil {
		if v, ok := s.Settings.Vehicle(name); ok {
			return v, nil
		}
	}
	return nil, errVehicleNotFound(name)
}

func removeAt(players []*Player, i int) []*Player {
	return append(players[:i:i], players[i+1:]...)
}
