package homeassistant

import (
	"errors"
	"sort"
	"strings"
)

// Matching errors. They signal why a transcript is not a device command,
// which is a normal outcome, not a failure.
var (
	ErrNoAction = errors.New("no action recognized in transcript")
	ErrNoDevice = errors.New("no device recognized in transcript")
	ErrNoEntity = errors.New("no entity configured for device")
)

// Command is a resolved device command ready to send to Home Assistant.
type Command struct {
	EntityID string
	Service  string
	Device   string
	Room     string
}

// Grammar holds the alias tables the matcher resolves transcripts against.
type Grammar struct {
	ActionAliases      map[string][]string
	DeviceAliases      map[string][]string
	RoomAliases        map[string][]string
	RoomEntities       map[string]map[string]string
	DefaultRoom        string
	DevicesWithoutRoom []string
}

// Matcher resolves transcripts to entity commands by case-insensitive
// substring matching: action first, then device, then room. A transcript
// without a room falls back to the default room, except for devices listed
// as roomless, which are searched across all rooms.
type Matcher struct {
	grammar  Grammar
	roomless map[string]bool

	// Alias tables are consulted in sorted name order so that a transcript
	// matching several aliases always resolves the same way
	actionNames []string
	deviceNames []string
	roomNames   []string
	rooms       []string // sorted for a deterministic roomless scan
}

// NewMatcher creates a matcher for the given grammar.
func NewMatcher(grammar Grammar) *Matcher {
	roomless := make(map[string]bool, len(grammar.DevicesWithoutRoom))
	for _, device := range grammar.DevicesWithoutRoom {
		roomless[device] = true
	}

	rooms := make([]string, 0, len(grammar.RoomEntities))
	for room := range grammar.RoomEntities {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)

	return &Matcher{
		grammar:     grammar,
		roomless:    roomless,
		actionNames: sortedKeys(grammar.ActionAliases),
		deviceNames: sortedKeys(grammar.DeviceAliases),
		roomNames:   sortedKeys(grammar.RoomAliases),
		rooms:       rooms,
	}
}

func sortedKeys(aliases map[string][]string) []string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Match resolves transcript to a command. ErrNoAction, ErrNoDevice and
// ErrNoEntity report the stage at which matching stopped.
func (m *Matcher) Match(transcript string) (Command, error) {
	transcript = strings.ToLower(strings.TrimSpace(transcript))
	if transcript == "" {
		return Command{}, ErrNoAction
	}

	action, ok := findAlias(transcript, m.actionNames, m.grammar.ActionAliases)
	if !ok {
		return Command{}, ErrNoAction
	}

	device, ok := findAlias(transcript, m.deviceNames, m.grammar.DeviceAliases)
	if !ok {
		return Command{}, ErrNoDevice
	}

	room, roomSpecified := findAlias(transcript, m.roomNames, m.grammar.RoomAliases)
	if !roomSpecified {
		room = m.grammar.DefaultRoom
	}

	if !roomSpecified && m.roomless[device] {
		for _, searchRoom := range m.rooms {
			if entityID, ok := m.grammar.RoomEntities[searchRoom][device]; ok {
				return Command{
					EntityID: entityID,
					Service:  action,
					Device:   device,
					Room:     searchRoom,
				}, nil
			}
		}
		return Command{}, ErrNoEntity
	}

	entityID, ok := m.grammar.RoomEntities[room][device]
	if !ok {
		return Command{}, ErrNoEntity
	}

	return Command{
		EntityID: entityID,
		Service:  action,
		Device:   device,
		Room:     room,
	}, nil
}

// findAlias returns the first name, in names order, whose alias list has a
// substring match in transcript.
func findAlias(transcript string, names []string, aliases map[string][]string) (string, bool) {
	for _, name := range names {
		for _, alias := range aliases[name] {
			if strings.Contains(transcript, strings.ToLower(alias)) {
				return name, true
			}
		}
	}
	return "", false
}
