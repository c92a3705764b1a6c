package models

// Room is one of the fixed chat rooms. It partitions messages and live subscriptions.
type Room string

const (
	RoomWeekday  Room = "weekday"
	RoomWeekend  Room = "weekend"
	RoomAll      Room = "all"
	RoomVisiting Room = "visiting"
)

// Rooms lists every room in display order.
var Rooms = []Room{RoomWeekday, RoomWeekend, RoomAll, RoomVisiting}

// Valid reports whether r is one of the known rooms.
func (r Room) Valid() bool {
	for _, known := range Rooms {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRoom converts user input into a Room.
func ParseRoom(s string) (Room, bool) {
	r := Room(s)
	return r, r.Valid()
}
