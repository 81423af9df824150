package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"showtime-booking/shared"
)

// Sender transmits informational envelopes over the real-time channel.
// *ConnManager satisfies it.
type Sender interface {
	Send(shared.Envelope)
}

// SelectionConfig configures the selection state machine for one viewer in
// one session.
type SelectionConfig struct {
	SessionID string
	HolderID  string

	// MaxSeats bounds the working set. Zero means the default of 8.
	MaxSeats int

	// LockTTL is the requested lock duration; the server's returned expiry
	// is authoritative. Zero means shared.DefaultLockTTL.
	LockTTL time.Duration

	// OnLockExpired fires when a locally armed lock timer removes a seat
	// from the selection.
	OnLockExpired func(seatID string)

	// OnSeatsUnavailable fires when authoritative broadcasts evict seats
	// the viewer had selected. There is no synchronous call site to fail,
	// so this is the only signal the UI gets.
	OnSeatsUnavailable func(seatIDs []string)
}

const defaultMaxSeats = 8

// Selection is the per-viewer seat selection state machine. It owns the
// cached seat map, the selected working set and the derived booking summary,
// applies optimistic transitions, and reconciles them against authoritative
// broadcasts. All mutation is serialized by one mutex; network round-trips
// happen between the optimistic phase and the reconcile phase so inbound
// broadcasts are never blocked.
type Selection struct {
	cfg    SelectionConfig
	store  SeatStore
	sender Sender

	mu         sync.Mutex
	seatMap    *SeatMapData
	selected   map[string]shared.Seat
	lockExpiry map[string]time.Time
	timers     map[string]*time.Timer
	summary    *BookingSummary
	loading    bool
	lastErr    error
	closed     bool
}

// NewSelection creates a selection state machine. sender may be nil when no
// real-time channel is attached.
func NewSelection(cfg SelectionConfig, store SeatStore, sender Sender) *Selection {
	if cfg.MaxSeats <= 0 {
		cfg.MaxSeats = defaultMaxSeats
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = shared.DefaultLockTTL
	}
	return &Selection{
		cfg:        cfg,
		store:      store,
		sender:     sender,
		selected:   make(map[string]shared.Seat),
		lockExpiry: make(map[string]time.Time),
		timers:     make(map[string]*time.Timer),
	}
}

// RefreshSeatMap fetches a full snapshot and replaces the seat map
// wholesale. On failure the error is recorded and prior data kept. Safe to
// call repeatedly.
func (s *Selection) RefreshSeatMap(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("selection is closed")
	}
	s.loading = true
	s.mu.Unlock()

	avail, err := s.store.GetAvailability(ctx, s.cfg.SessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		return err
	}
	s.seatMap = newSeatMapData(avail)
	s.lastErr = nil
	return nil
}

// SelectSeat adds a seat to the working set and acquires a lock for it. The
// operation is atomic from the caller's point of view: on any failure the
// optimistic add is rolled back exactly and the error returned.
// Preconditions are checked before any network call.
func (s *Selection) SelectSeat(ctx context.Context, seat shared.Seat) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("selection is closed")
	}
	if status := s.statusLocked(seat.ID, seat.Status); status != shared.SeatAvailable {
		s.mu.Unlock()
		return fmt.Errorf("%w: seat %s is %s", ErrLockConflict, seat.ID, status)
	}
	if len(s.selected) >= s.cfg.MaxSeats {
		s.mu.Unlock()
		return fmt.Errorf("%w: max %d seats", ErrCapacityExceeded, s.cfg.MaxSeats)
	}

	// Optimistic phase.
	s.selected[seat.ID] = seat
	s.recomputeSummaryLocked()
	s.mu.Unlock()

	expiry, err := s.store.LockSeats(ctx, s.cfg.SessionID, s.cfg.HolderID, []string{seat.ID}, s.cfg.LockTTL)

	s.mu.Lock()
	if err != nil {
		// Exact inverse of the tentative change; a broadcast may already
		// have evicted the seat in the meantime.
		delete(s.selected, seat.ID)
		s.recomputeSummaryLocked()
		s.mu.Unlock()
		return err
	}

	if _, still := s.selected[seat.ID]; !still {
		// An authoritative broadcast won the race while the request was in
		// flight. Release the lock we just acquired and report conflict.
		s.mu.Unlock()
		s.releaseAsync([]string{seat.ID})
		return fmt.Errorf("%w: seat %s taken while locking", ErrLockConflict, seat.ID)
	}

	s.lockExpiry[seat.ID] = expiry
	s.armTimerLocked(seat.ID, expiry)
	s.mu.Unlock()

	s.sendSelectionMessage(shared.MessageTypeSeatSelected, []string{seat.ID})
	return nil
}

// DeselectSeat removes a seat from the working set and releases its lock.
// Unlock failures are logged, never re-applied: the visible state favors
// "seat no longer held" over risking a stuck lock. The informational
// message goes out only after the unlock succeeded.
func (s *Selection) DeselectSeat(ctx context.Context, seatID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("selection is closed")
	}
	if _, ok := s.selected[seatID]; !ok {
		s.mu.Unlock()
		return nil
	}
	s.evictLocked(seatID)
	s.recomputeSummaryLocked()
	s.mu.Unlock()

	if err := s.store.UnlockSeats(ctx, s.cfg.SessionID, s.cfg.HolderID, []string{seatID}); err != nil {
		log.Printf("[WARN] Unlock failed for seat %s: %v", seatID, err)
		return nil
	}

	s.sendSelectionMessage(shared.MessageTypeSeatDeselected, []string{seatID})
	return nil
}

// ClearSelection deselects every seat in one batched unlock. A partial
// failure leaves no local state behind; orphaned server locks fall back to
// their TTL.
func (s *Selection) ClearSelection(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("selection is closed")
	}
	if len(s.selected) == 0 {
		s.mu.Unlock()
		return nil
	}
	seatIDs := s.selectedIDsLocked()
	for _, id := range seatIDs {
		s.evictLocked(id)
	}
	s.recomputeSummaryLocked()
	s.mu.Unlock()

	if err := s.store.UnlockSeats(ctx, s.cfg.SessionID, s.cfg.HolderID, seatIDs); err != nil {
		log.Printf("[WARN] Batched unlock failed for %d seats: %v", len(seatIDs), err)
		return nil
	}

	s.sendSelectionMessage(shared.MessageTypeSelectionCleared, seatIDs)
	return nil
}

// HandleEnvelope reconciles one inbound broadcast into local state.
// Broadcasts are authoritative: they always win over local optimism.
// Malformed payloads are dropped and logged.
func (s *Selection) HandleEnvelope(env shared.Envelope) {
	switch env.Type {
	case shared.MessageTypeAvailabilityUpdate:
		var p shared.AvailabilityUpdatePayload
		if !decodePayload(env, &p) {
			return
		}
		s.applyAvailabilityUpdate(p)

	case shared.MessageTypeSeatLocked:
		var p shared.SeatLockedPayload
		if !decodePayload(env, &p) {
			return
		}
		if p.Mine {
			// The local viewer's own lock echoing back; the request path
			// already recorded it.
			return
		}
		s.mu.Lock()
		if s.seatMap != nil {
			s.seatMap.markLocked(p.SeatIDs)
		}
		s.mu.Unlock()

	case shared.MessageTypeSeatUnlocked:
		var p shared.SeatsPayload
		if !decodePayload(env, &p) {
			return
		}
		s.mu.Lock()
		if s.seatMap != nil {
			s.seatMap.markUnlocked(p.SeatIDs)
		}
		s.mu.Unlock()

	case shared.MessageTypeSeatBooked:
		var p shared.SeatsPayload
		if !decodePayload(env, &p) {
			return
		}
		s.applyBooked(p.SeatIDs)
	}
}

// applyAvailabilityUpdate merges a snapshot update. Selected seats that the
// authoritative booked set now covers are evicted, exactly as for a
// seat_booked broadcast.
func (s *Selection) applyAvailabilityUpdate(p shared.AvailabilityUpdatePayload) {
	s.mu.Lock()
	if s.seatMap == nil {
		s.mu.Unlock()
		return
	}
	booked := make(map[string]struct{}, len(p.BookedSeats))
	for _, id := range p.BookedSeats {
		booked[id] = struct{}{}
	}
	locked := make(map[string]struct{}, len(p.LockedSeats))
	for _, id := range p.LockedSeats {
		if _, ok := booked[id]; !ok {
			locked[id] = struct{}{}
		}
	}
	s.seatMap.BookedSeats = booked
	s.seatMap.LockedSeats = locked

	evicted := s.evictBookedLocked()
	s.mu.Unlock()

	s.notifyUnavailable(evicted)
}

func (s *Selection) applyBooked(seatIDs []string) {
	s.mu.Lock()
	if s.seatMap != nil {
		s.seatMap.markBooked(seatIDs)
	}
	var evicted []string
	for _, id := range seatIDs {
		if _, ok := s.selected[id]; ok {
			s.evictLocked(id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		s.recomputeSummaryLocked()
	}
	s.mu.Unlock()

	s.notifyUnavailable(evicted)
}

// Close unwinds the selection on session teardown: every held lock is
// released best-effort so capacity frees promptly instead of waiting out
// the TTL.
func (s *Selection) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	seatIDs := s.selectedIDsLocked()
	for _, id := range seatIDs {
		s.evictLocked(id)
	}
	s.summary = nil
	s.mu.Unlock()

	if len(seatIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UnlockSeats(ctx, s.cfg.SessionID, s.cfg.HolderID, seatIDs); err != nil {
		log.Printf("[WARN] Teardown unlock failed for %d seats: %v", len(seatIDs), err)
	}
}

// SelectedSeats returns the working set ordered by seat id.
func (s *Selection) SelectedSeats() []shared.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	seats := make([]shared.Seat, 0, len(s.selected))
	for _, seat := range s.selected {
		seats = append(seats, seat)
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].ID < seats[j].ID })
	return seats
}

// SeatMap returns the cached snapshot, or nil before the first refresh.
func (s *Selection) SeatMap() *SeatMapData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seatMap
}

// Seats returns the full derived seat list for the session, statuses
// projected from current set membership. Nil before the first refresh.
func (s *Selection) Seats() []shared.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seatMap == nil {
		return nil
	}
	seats := make([]shared.Seat, 0, s.seatMap.Config.Rows*s.seatMap.Config.SeatsPerRow)
	for row := 0; row < s.seatMap.Config.Rows; row++ {
		for number := 0; number < s.seatMap.Config.SeatsPerRow; number++ {
			seats = append(seats, s.seatMap.seatAt(row, number, s.selected))
		}
	}
	return seats
}

// BookingSummary returns the derived summary, nil when nothing is selected.
func (s *Selection) BookingSummary() *BookingSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return nil
	}
	summary := *s.summary
	return &summary
}

// Loading reports whether a refresh is in flight.
func (s *Selection) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last refresh error, cleared by a successful refresh.
func (s *Selection) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LockExpiration returns the earliest expiry among the locks the viewer
// holds. ok is false when no locks are held.
func (s *Selection) LockExpiration() (expiry time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.lockExpiry {
		if !ok || t.Before(expiry) {
			expiry = t
			ok = true
		}
	}
	return expiry, ok
}

// statusLocked derives the status of a seat id, falling back to the
// caller-provided status before the first refresh.
func (s *Selection) statusLocked(seatID, fallback string) string {
	if _, ok := s.selected[seatID]; ok {
		return shared.SeatSelected
	}
	if s.seatMap == nil {
		if fallback == "" {
			return shared.SeatAvailable
		}
		return fallback
	}
	switch {
	case s.seatMap.isBooked(seatID):
		return shared.SeatBooked
	case s.seatMap.isDisabled(seatID):
		return shared.SeatDisabled
	case s.seatMap.isLocked(seatID):
		return shared.SeatLockedByOther
	}
	return shared.SeatAvailable
}

// evictLocked removes one seat from the working set and disarms its timer.
// Caller holds the mutex and recomputes the summary.
func (s *Selection) evictLocked(seatID string) {
	delete(s.selected, seatID)
	delete(s.lockExpiry, seatID)
	if timer, ok := s.timers[seatID]; ok {
		timer.Stop()
		delete(s.timers, seatID)
	}
}

// evictBookedLocked removes every selected seat the booked set now covers.
func (s *Selection) evictBookedLocked() []string {
	var evicted []string
	for id := range s.selected {
		if s.seatMap.isBooked(id) {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		s.evictLocked(id)
	}
	if len(evicted) > 0 {
		s.recomputeSummaryLocked()
	}
	sort.Strings(evicted)
	return evicted
}

// armTimerLocked arms the advisory local expiry timer for an owned lock.
// The server remains the authority; this only keeps the local invariant
// that selected seats are backed by live locks.
func (s *Selection) armTimerLocked(seatID string, expiry time.Time) {
	if timer, ok := s.timers[seatID]; ok {
		timer.Stop()
	}
	s.timers[seatID] = time.AfterFunc(time.Until(expiry), func() {
		s.expireLock(seatID)
	})
}

func (s *Selection) expireLock(seatID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.selected[seatID]; !ok {
		s.mu.Unlock()
		return
	}
	s.evictLocked(seatID)
	s.recomputeSummaryLocked()
	cb := s.cfg.OnLockExpired
	s.mu.Unlock()

	log.Printf("[INFO] Lock expired locally for seat %s", seatID)
	if cb != nil {
		cb(seatID)
	}
}

func (s *Selection) recomputeSummaryLocked() {
	if len(s.selected) == 0 {
		s.summary = nil
		return
	}
	seats := make([]shared.Seat, 0, len(s.selected))
	for _, seat := range s.selected {
		seats = append(seats, seat)
	}
	var policy FeePolicy
	if s.seatMap != nil {
		policy = FeePolicy{
			FeeBasisPoints: s.seatMap.Config.FeeBasisPoints,
			TaxBasisPoints: s.seatMap.Config.TaxBasisPoints,
		}
	}
	s.summary = ComputeSummary(seats, policy)
}

func (s *Selection) selectedIDsLocked() []string {
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// releaseAsync best-effort unlocks seats outside any caller path.
func (s *Selection) releaseAsync(seatIDs []string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.UnlockSeats(ctx, s.cfg.SessionID, s.cfg.HolderID, seatIDs); err != nil {
			log.Printf("[WARN] Conflict cleanup unlock failed: %v", err)
		}
	}()
}

func (s *Selection) notifyUnavailable(seatIDs []string) {
	if len(seatIDs) == 0 {
		return
	}
	if cb := s.cfg.OnSeatsUnavailable; cb != nil {
		cb(seatIDs)
	}
}

func (s *Selection) sendSelectionMessage(msgType string, seatIDs []string) {
	if s.sender == nil {
		return
	}
	env, err := shared.NewEnvelope(msgType, shared.SelectionPayload{
		SessionID: s.cfg.SessionID,
		SeatIDs:   seatIDs,
	})
	if err != nil {
		log.Printf("[WARN] Failed to build %s message: %v", msgType, err)
		return
	}
	s.sender.Send(env)
}

// decodePayload unmarshals an envelope payload, logging and dropping
// malformed data.
func decodePayload(env shared.Envelope, out interface{}) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		log.Printf("[WARN] Dropping malformed %s payload: %v", env.Type, err)
		return false
	}
	return true
}
