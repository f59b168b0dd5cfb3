package tracker

import "strings"

// Maps in display order.
const (
	MapSpaceport    = "Spaceport"
	MapBlueGate     = "Blue Gate"
	MapBuriedCity   = "Buried City"
	MapDam          = "Dam"
	MapStellaMontis = "Stella Montis"
)

// Event types.
const (
	EventBirdCity             = "Bird City"
	EventColdSnap             = "Cold Snap"
	EventElectromagneticStorm = "Electromagnetic Storm"
	EventHarvester            = "Harvester"
	EventHiddenBunker         = "Hidden Bunker"
	EventLaunchTowerLoot      = "Launch Tower Loot"
	EventLockedGate           = "Locked Gate"
	EventLushBlooms           = "Lush Blooms"
	EventMatriarch            = "Matriarch"
	EventNightRaid            = "Night Raid"
	EventProspectingProbes    = "Prospecting Probes"
)

// SlotsPerRotation is the length of every map's hourly rotation.
const SlotsPerRotation = 4

var (
	Maps = []string{MapSpaceport, MapBlueGate, MapBuriedCity, MapDam, MapStellaMontis}

	EventNames = []string{
		EventBirdCity, EventColdSnap, EventElectromagneticStorm, EventHarvester,
		EventHiddenBunker, EventLaunchTowerLoot, EventLockedGate, EventLushBlooms,
		EventMatriarch, EventNightRaid, EventProspectingProbes,
	}
)

// Table maps a map name to its rotation. Slot i runs during every UTC hour h
// with h % 4 == i. Order lists the maps in output order.
type Table struct {
	Order []string
	Slots map[string][SlotsPerRotation]string
}

// DefaultTable is the live game rotation. Treat it as read-only.
var DefaultTable = Table{
	Order: Maps,
	Slots: map[string][SlotsPerRotation]string{
		MapSpaceport:    {EventHarvester, EventLaunchTowerLoot, EventProspectingProbes, EventLushBlooms},
		MapBlueGate:     {EventMatriarch, EventHiddenBunker, EventLaunchTowerLoot, EventLushBlooms},
		MapBuriedCity:   {EventBirdCity, EventHiddenBunker, EventProspectingProbes, EventMatriarch},
		MapDam:          {EventElectromagneticStorm, EventHarvester, EventLockedGate, EventLaunchTowerLoot},
		MapStellaMontis: {EventNightRaid, EventColdSnap, EventBirdCity, EventLockedGate},
	},
}

// SlotIndex returns the rotation slot for a UTC hour of day.
func SlotIndex(hour int) int {
	hour %= 24
	if hour < 0 {
		hour += 24
	}
	return hour % SlotsPerRotation
}

// EventForHour returns the event running on mapName during the given UTC
// hour. Unknown maps report false.
func (t Table) EventForHour(mapName string, hour int) (string, bool) {
	slots, ok := t.Slots[mapName]
	if !ok {
		return "", false
	}
	name := slots[SlotIndex(hour)]
	return name, name != ""
}

// LookupMap resolves user input to a canonical map name, ignoring case and
// surrounding spaces.
func LookupMap(s string) (string, bool) { return lookup(Maps, s) }

// LookupEvent resolves user input to a canonical event name.
func LookupEvent(s string) (string, bool) { return lookup(EventNames, s) }

func lookup(names []string, s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, n := range names {
		if strings.EqualFold(n, s) {
			return n, true
		}
	}
	return "", false
}
