package viewer

import (
	"context"
	"time"

	"showtime-booking/shared"
)

// Coordinator wires the connection manager and the selection state machine
// together for one viewer: inbound broadcasts flow into reconciliation, and
// informational selection messages flow back out over the channel.
type Coordinator struct {
	conn *ConnManager
	sel  *Selection
}

// NewCoordinator builds a viewer coordination core. onStateChange may be nil.
func NewCoordinator(connCfg ConnConfig, selCfg SelectionConfig, store SeatStore, onStateChange func(ConnState, error)) *Coordinator {
	c := &Coordinator{}
	c.conn = NewConnManager(connCfg, func(env shared.Envelope) {
		c.sel.HandleEnvelope(env)
	}, onStateChange)
	c.sel = NewSelection(selCfg, store, c.conn)
	return c
}

// Connect opens the real-time channel.
func (c *Coordinator) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Close unwinds the selection (releasing held locks best-effort) and tears
// down the channel.
func (c *Coordinator) Close() {
	c.sel.Close()
	c.conn.Disconnect()
}

// RefreshSeatMap loads the authoritative availability snapshot.
func (c *Coordinator) RefreshSeatMap(ctx context.Context) error {
	return c.sel.RefreshSeatMap(ctx)
}

// SelectSeat adds a seat to the selection, acquiring its lock.
func (c *Coordinator) SelectSeat(ctx context.Context, seat shared.Seat) error {
	return c.sel.SelectSeat(ctx, seat)
}

// DeselectSeat removes a seat from the selection, releasing its lock.
func (c *Coordinator) DeselectSeat(ctx context.Context, seatID string) error {
	return c.sel.DeselectSeat(ctx, seatID)
}

// ClearSelection releases every held seat in one batched unlock.
func (c *Coordinator) ClearSelection(ctx context.Context) error {
	return c.sel.ClearSelection(ctx)
}

// Read-only observables.

func (c *Coordinator) SelectedSeats() []shared.Seat      { return c.sel.SelectedSeats() }
func (c *Coordinator) Seats() []shared.Seat              { return c.sel.Seats() }
func (c *Coordinator) SeatMap() *SeatMapData             { return c.sel.SeatMap() }
func (c *Coordinator) BookingSummary() *BookingSummary   { return c.sel.BookingSummary() }
func (c *Coordinator) Loading() bool                     { return c.sel.Loading() }
func (c *Coordinator) Err() error                        { return c.sel.Err() }
func (c *Coordinator) LockExpiration() (time.Time, bool) { return c.sel.LockExpiration() }
func (c *Coordinator) ConnectionState() ConnState        { return c.conn.State() }
