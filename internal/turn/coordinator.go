package turn

import (
	"context"
	"fmt"
	"sync"
)

// Coordinator serializes play. It owns the current turn holder and one grant
// channel per seat; it holds no game data. Advance grants exactly one seat,
// so no two seats ever act concurrently inside the board engine.
type Coordinator struct {
	mu      sync.Mutex
	current int
	grants  []chan struct{}
}

func New(seats int) *Coordinator {
	if seats <= 0 {
		panic(fmt.Sprintf("turn coordinator needs at least one seat, got %d", seats))
	}

	coordinator := &Coordinator{
		grants: make([]chan struct{}, seats),
	}

	for i := range coordinator.grants {
		coordinator.grants[i] = make(chan struct{}, 1)
	}

	return coordinator
}

// WaitForTurn - blocks the calling flow until the seat is granted the turn or
// the context is canceled. Exactly one waiter proceeds per Advance call.
func (that *Coordinator) WaitForTurn(ctx context.Context, seat int) error {
	that.mustBeValidSeat(seat)

	select {
	case <-that.grants[seat]:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance - hands the turn to the given seat and wakes its waiter. The grant
// channel is buffered so a seat that has not reached WaitForTurn yet still
// observes its turn.
func (that *Coordinator) Advance(seat int) {
	that.mustBeValidSeat(seat)

	that.mu.Lock()
	that.current = seat
	grant := that.grants[seat]
	that.mu.Unlock()

	select {
	case grant <- struct{}{}:
	default:
	}
}

// Current - the seat currently holding the turn.
func (that *Coordinator) Current() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.current
}

func (that *Coordinator) Seats() int {
	return len(that.grants)
}

func (that *Coordinator) mustBeValidSeat(seat int) {
	if seat < 0 || seat >= len(that.grants) {
		panic(fmt.Sprintf("seat %d out of range [0, %d)", seat, len(that.grants)))
	}
}
