package models

import "time"

// ListingData is the transient output of one scrape attempt. It is never
// persisted directly — the importer maps it onto a Room plus Image records.
type ListingData struct {
	Title       string
	Description string
	Price       *float64 // nightly price; nil when none was found
	Capacity    *int     // guest count; nil when none was found
	Amenities   []string // ordered, deduped, capped
	Images      []string // ordered, deduped source URLs, capped
}

// Property is the parent entity a room import attaches to.
type Property struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Room is the persisted result of a listing import. A room exclusively owns
// its Image records; deleting the room cascades to them.
type Room struct {
	ID          int64
	PropertyID  int64
	Name        string
	Description string
	Price       *float64
	Capacity    *int
	Amenities   []string // stored as a JSON string list
	AirbnbURL   string
	Order       int // position among sibling rooms: max existing + 1, or 0
	CreatedAt   time.Time
}

// Image is one stored photo belonging to a room, or to the property itself
// when RoomID is nil. URL is the stable stored location; SourceURL is the
// scraped origin and is the key re-imports dedupe against.
type Image struct {
	ID         int64
	PropertyID int64
	RoomID     *int64
	URL        string
	SourceURL  string
	CreatedAt  time.Time
}
