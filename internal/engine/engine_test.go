package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-engine/internal/repository"
)

func TestCreateOrderAdmitsUntilDateIsFull(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	in := CreateOrderInput{
		Kind:          repository.KindOrder,
		CustomerName:  "Marta Ruiz",
		CustomerEmail: "marta@example.com",
		PickupDate:    date,
	}

	var created []*repository.Order
	for i := 0; i < 3; i++ {
		order, err := f.eng.CreateOrder(ctx, in)
		require.NoError(t, err, "booking %d", i+1)
		created = append(created, order)
	}

	_, err := f.eng.CreateOrder(ctx, in)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Len(t, f.orders.orders, 3, "a refused booking leaves no order row behind")
	assert.Equal(t, 3, f.count(date))

	// Cancelling one booking frees its slot for the next customer.
	_, err = f.eng.Cancel(ctx, created[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(date))

	order, err := f.eng.CreateOrder(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, order.Status)
	assert.Equal(t, 3, f.count(date))
}

func TestCreateOrderInitialStatusFollowsKind(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	order, err := f.eng.CreateOrder(ctx, CreateOrderInput{
		Kind:          repository.KindOrder,
		CustomerName:  "Marta Ruiz",
		CustomerEmail: "marta@example.com",
		PickupDate:    date,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, order.Status)

	booking, err := f.eng.CreateOrder(ctx, CreateOrderInput{
		Kind:          repository.KindBooking,
		CustomerName:  "Tom Albers",
		CustomerEmail: "tom@example.com",
		PickupDate:    date,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPendingBooking, booking.Status)
}

func TestCreateOrderNormalizesPickupDate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()

	order, err := f.eng.CreateOrder(ctx, CreateOrderInput{
		Kind:          repository.KindOrder,
		CustomerName:  "Marta Ruiz",
		CustomerEmail: "marta@example.com",
		PickupDate:    time.Date(2026, 3, 20, 17, 45, 12, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), order.PickupDate)
}

func TestCreateOrderUnknownKindFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	_, err := f.eng.CreateOrder(context.Background(), CreateOrderInput{
		Kind:          repository.Kind("subscription"),
		CustomerName:  "Marta Ruiz",
		CustomerEmail: "marta@example.com",
		PickupDate:    time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
	assert.Empty(t, f.orders.orders)
}

func TestRejectDuringProcessingIsRefused(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusFolding, date)

	_, err := f.eng.Reject(ctx, order.ID, "customer changed their mind")
	require.ErrorIs(t, err, ErrInvalidState)

	stored := f.orders.stored(order.ID)
	assert.Equal(t, repository.StatusFolding, stored.Status, "refused rejection leaves the order untouched")
	assert.Equal(t, 1, f.count(date), "refused rejection leaves the slot occupied")

	// Explicit transition to rejected fails the same way, as a graph error.
	_, err = f.eng.Transition(ctx, order.ID, repository.StatusRejected, "customer changed their mind")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectPendingReleasesSlotAndStoresReason(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusPending, date)

	got, err := f.eng.Reject(ctx, order.ID, "fabric needs specialist cleaning")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusRejected, got.Status)
	require.NotNil(t, got.RejectReason)
	assert.Equal(t, "fabric needs specialist cleaning", *got.RejectReason)
	assert.Zero(t, f.count(date), "rejection releases the capacity slot")
}

func TestTransitionToCompletedReleasesSlotAndClearsTimer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusWashing, date)

	_, err := f.eng.StartTimer(ctx, order.ID, repository.StatusWashing)
	require.NoError(t, err)

	got, err := f.eng.Transition(ctx, order.ID, repository.StatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCompleted, got.Status)
	assert.Nil(t, got.TimerEnd, "leaving a timed stage clears the timer in the same mutation")
	assert.Zero(t, f.count(date))
}

func TestAdvanceArmsTimerForNextTimedStage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusPending, date)

	got, err := f.eng.Advance(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusWashing, got.Status)
	require.NotNil(t, got.TimerEnd)
	assert.Equal(t, f.now.Add(stageDuration), *got.TimerEnd)
	require.NotNil(t, got.TimerStage)
	assert.Equal(t, repository.StatusWashing, *got.TimerStage)
}

func TestAdvanceTerminalOrderIsQuietNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusCompleted, date)

	capture := &captureHook{name: "capture"}
	f.eng.RegisterHook(capture)

	got, err := f.eng.Advance(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCompleted, got.Status)
	assert.Empty(t, capture.events, "a no-op advance announces nothing")
	assert.Equal(t, order.UpdatedAt, f.orders.stored(order.ID).UpdatedAt)
}

func TestExpiredTimerDrivesAutoAdvance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusWashing, date)

	_, err := f.eng.StartTimer(ctx, order.ID, repository.StatusWashing)
	require.NoError(t, err)

	expired, err := f.eng.OrdersWithExpiredTimers(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired, "running timer is not expired yet")

	f.advanceClock(stageDuration + time.Minute)

	expired, err = f.eng.OrdersWithExpiredTimers(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, order.ID, expired[0].ID)

	got, err := f.eng.Advance(ctx, expired[0].ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDrying, got.Status)
	require.NotNil(t, got.TimerEnd)
	assert.Equal(t, f.now.Add(stageDuration), *got.TimerEnd, "next stage gets a fresh timer from the current clock")
}

func TestTimerStatusReflectsClock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusDrying, date)

	_, err := f.eng.StartTimer(ctx, order.ID, repository.StatusDrying)
	require.NoError(t, err)

	snap, err := f.eng.TimerStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Equal(t, stageDuration, snap.Remaining)

	f.advanceClock(2 * stageDuration)

	snap, err = f.eng.TimerStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, snap.Expired)
	assert.Zero(t, snap.Remaining)
}

func TestStartTimerRefusedOnPendingOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusPending, date)
	_, err := f.eng.ToggleAutoAdvance(ctx, order.ID, true)
	require.NoError(t, err)

	_, err = f.eng.StartTimer(ctx, order.ID, repository.StatusWashing)
	require.ErrorIs(t, err, ErrInvalidState)

	stored := f.orders.stored(order.ID)
	assert.Equal(t, repository.StatusPending, stored.Status)
	assert.Nil(t, stored.TimerEnd, "refused timer must not be persisted")

	// A pending order must never enter the expired-timer sweep, or the
	// poller would advance it past approval on its own.
	f.advanceClock(2 * stageDuration)
	expired, err := f.eng.OrdersWithExpiredTimers(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestStopTimerAndToggleAutoAdvance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusWashing, date)

	_, err := f.eng.StartTimer(ctx, order.ID, repository.StatusWashing)
	require.NoError(t, err)

	got, err := f.eng.StopTimer(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TimerEnd)

	got, err = f.eng.ToggleAutoAdvance(ctx, order.ID, true)
	require.NoError(t, err)
	assert.True(t, got.AutoAdvance)
	assert.True(t, f.orders.stored(order.ID).AutoAdvance)
}

func TestRescheduleMovesSlotBetweenDates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	from := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusPending, from)

	got, err := f.eng.Reschedule(ctx, order.ID, to, "14:00")
	require.NoError(t, err)
	assert.Equal(t, to, got.PickupDate)
	assert.Equal(t, "14:00", got.PickupTime)
	assert.Zero(t, f.count(from))
	assert.Equal(t, 1, f.count(to))
}

func TestRescheduleToFullDateFailsAtomically(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	ctx := context.Background()
	from := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusPending, from)
	f.seedOrder(t, repository.KindOrder, repository.StatusPending, to)

	_, err := f.eng.Reschedule(ctx, order.ID, to, "")
	require.ErrorIs(t, err, ErrCapacityExceeded)

	stored := f.orders.stored(order.ID)
	assert.Equal(t, from, stored.PickupDate, "failed reschedule keeps the original date")
	assert.Equal(t, 1, f.count(from), "source slot stays occupied")
	assert.Equal(t, 1, f.count(to))
}

func TestRescheduleRefusesInactiveOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	order := f.seedOrder(t, repository.KindOrder, repository.StatusCompleted, date)

	_, err := f.eng.Reschedule(ctx, order.ID, date.AddDate(0, 0, 2), "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestHookFailureNeverFailsTheMutation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()

	failing := &captureHook{name: "smtp", err: errors.New("connection refused")}
	downstream := &captureHook{name: "outbox"}
	f.eng.RegisterHook(failing)
	f.eng.RegisterHook(downstream)

	order, err := f.eng.CreateOrder(ctx, CreateOrderInput{
		Kind:          repository.KindOrder,
		CustomerName:  "Marta Ruiz",
		CustomerEmail: "marta@example.com",
		PickupDate:    time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err, "hook failure is invisible to the caller")

	require.Len(t, downstream.events, 1, "later hooks still run after an earlier one fails")
	ev := downstream.events[0]
	assert.Equal(t, EventCreated, ev.Kind)
	assert.Equal(t, order.ID, ev.OrderID)
	assert.Equal(t, repository.StatusPending, ev.NewStatus)
	assert.Equal(t, "2026-03-20", ev.PickupDate)
}

func TestGetUnknownOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	_, err := f.eng.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcileCapacityRebuildsCounterFromOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	f.seedOrder(t, repository.KindOrder, repository.StatusPending, date)
	f.seedOrder(t, repository.KindOrder, repository.StatusWashing, date)
	f.seedOrder(t, repository.KindOrder, repository.StatusCompleted, date)

	// Simulate a counter that drifted ahead of the active set.
	f.counters.counts[repository.DateKey(date)] = 5

	require.NoError(t, f.eng.ReconcileCapacity(ctx, date))
	assert.Equal(t, 2, f.count(date))
}

func TestCapacityNormalizesRequestedDates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	ctx := context.Background()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	f.seedOrder(t, repository.KindOrder, repository.StatusPending, date)

	counts, err := f.eng.Capacity(ctx, []time.Time{date.Add(16 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2026-03-20": 1}, counts)
}
