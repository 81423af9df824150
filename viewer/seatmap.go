package viewer

import "showtime-booking/shared"

// SeatMapData is the locally cached snapshot for one session: geometry,
// pricing and the known booked/locked seat-id sets. It is replaced wholesale
// on refresh and patched by broadcast reconciliation. It is a read-through
// cache of the availability store, never authoritative.
type SeatMapData struct {
	Config      shared.SessionConfig
	BookedSeats map[string]struct{}
	LockedSeats map[string]struct{}

	vipRows  map[int]struct{}
	disabled map[string]struct{}
}

// newSeatMapData builds a seat map from an availability snapshot. Booked
// membership wins over locked so the two sets stay mutually exclusive.
func newSeatMapData(avail *shared.Availability) *SeatMapData {
	m := &SeatMapData{
		Config:      avail.Config,
		BookedSeats: make(map[string]struct{}, len(avail.BookedSeats)),
		LockedSeats: make(map[string]struct{}, len(avail.LockedSeats)),
		vipRows:     make(map[int]struct{}, len(avail.Config.VIPRows)),
		disabled:    make(map[string]struct{}, len(avail.Config.DisabledSeats)),
	}
	for _, id := range avail.BookedSeats {
		m.BookedSeats[id] = struct{}{}
	}
	for _, id := range avail.LockedSeats {
		if _, booked := m.BookedSeats[id]; !booked {
			m.LockedSeats[id] = struct{}{}
		}
	}
	for _, row := range avail.Config.VIPRows {
		m.vipRows[row] = struct{}{}
	}
	for _, id := range avail.Config.DisabledSeats {
		m.disabled[id] = struct{}{}
	}
	return m
}

// markBooked moves seat ids into the booked set, evicting them from the
// locked set to keep the sets mutually exclusive.
func (m *SeatMapData) markBooked(seatIDs []string) {
	for _, id := range seatIDs {
		m.BookedSeats[id] = struct{}{}
		delete(m.LockedSeats, id)
	}
}

// markLocked adds seat ids to the locked set unless already booked.
func (m *SeatMapData) markLocked(seatIDs []string) {
	for _, id := range seatIDs {
		if _, booked := m.BookedSeats[id]; !booked {
			m.LockedSeats[id] = struct{}{}
		}
	}
}

// markUnlocked removes seat ids from the locked set.
func (m *SeatMapData) markUnlocked(seatIDs []string) {
	for _, id := range seatIDs {
		delete(m.LockedSeats, id)
	}
}

// categoryForRow returns the seat category of a zero-based row.
func (m *SeatMapData) categoryForRow(row int) string {
	if _, ok := m.vipRows[row]; ok {
		return shared.CategoryVIP
	}
	return shared.CategoryRegular
}

// seatAt builds the seat record for a zero-based row and number, with its
// status derived from set membership. selected is the local viewer's set.
func (m *SeatMapData) seatAt(row, number int, selected map[string]shared.Seat) shared.Seat {
	id := shared.SeatID(row, number)
	category := m.categoryForRow(row)
	seat := shared.Seat{
		ID:         id,
		Row:        row,
		Number:     number,
		Category:   category,
		PriceCents: m.Config.Pricing[category],
	}

	switch {
	case m.isBooked(id):
		seat.Status = shared.SeatBooked
	case m.isDisabled(id):
		seat.Status = shared.SeatDisabled
	default:
		if _, ok := selected[id]; ok {
			seat.Status = shared.SeatSelected
		} else if m.isLocked(id) {
			seat.Status = shared.SeatLockedByOther
		} else {
			seat.Status = shared.SeatAvailable
		}
	}
	return seat
}

func (m *SeatMapData) isBooked(id string) bool {
	_, ok := m.BookedSeats[id]
	return ok
}

func (m *SeatMapData) isLocked(id string) bool {
	_, ok := m.LockedSeats[id]
	return ok
}

func (m *SeatMapData) isDisabled(id string) bool {
	_, ok := m.disabled[id]
	return ok
}
