package subscription

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/HyunwooPark/ZineHub/app/models"
	"github.com/HyunwooPark/ZineHub/internal/pkg/portone"
)

type fakeGateway struct {
	payment       *portone.Payment
	getPaymentErr error

	schedule          *portone.Schedule
	createScheduleErr error

	schedules []portone.Schedule
	listErr   error

	cancelSchedulesErr error
	cancelPaymentErr   error

	getPaymentCalls     int
	createScheduleCalls int
	createdScheduleID   string
	createdRunAt        time.Time
	listedBillingKey    string
	listedFrom          time.Time
	listedUntil         time.Time
	cancelledSchedules  []string
	cancelPaymentCalls  int
	cancelledPaymentID  string
	cancelledReason     string
}

func (g *fakeGateway) GetPayment(ctx context.Context, paymentID string) (*portone.Payment, error) {
	g.getPaymentCalls++
	if g.getPaymentErr != nil {
		return nil, g.getPaymentErr
	}
	return g.payment, nil
}

func (g *fakeGateway) CreateSchedule(ctx context.Context, scheduleID string, payment *portone.Payment, runAt time.Time) (*portone.Schedule, error) {
	g.createScheduleCalls++
	g.createdScheduleID = scheduleID
	g.createdRunAt = runAt
	if g.createScheduleErr != nil {
		return nil, g.createScheduleErr
	}
	if g.schedule != nil {
		return g.schedule, nil
	}
	return &portone.Schedule{ID: scheduleID, PaymentID: scheduleID, TimeToPay: runAt}, nil
}

func (g *fakeGateway) GetSchedules(ctx context.Context, billingKey string, from, until time.Time) ([]portone.Schedule, error) {
	g.listedBillingKey = billingKey
	g.listedFrom = from
	g.listedUntil = until
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.schedules, nil
}

func (g *fakeGateway) CancelSchedules(ctx context.Context, scheduleIDs []string) error {
	g.cancelledSchedules = append(g.cancelledSchedules, scheduleIDs...)
	return g.cancelSchedulesErr
}

func (g *fakeGateway) CancelPayment(ctx context.Context, paymentID, reason string) error {
	g.cancelPaymentCalls++
	g.cancelledPaymentID = paymentID
	g.cancelledReason = reason
	return g.cancelPaymentErr
}

type fakeLedger struct {
	insertErr error
	latest    *models.PaymentEvent
	latestErr error
	exists    bool
	existsErr error
	existsFn  func(transactionKey string) (bool, error)

	inserted []*models.PaymentEvent
}

func (l *fakeLedger) Insert(event *models.PaymentEvent) error {
	if l.insertErr != nil {
		return l.insertErr
	}
	l.inserted = append(l.inserted, event)
	return nil
}

func (l *fakeLedger) LatestByTransactionKey(transactionKey string) (*models.PaymentEvent, error) {
	if l.latestErr != nil {
		return nil, l.latestErr
	}
	return l.latest, nil
}

func (l *fakeLedger) ExistsByTransactionKey(transactionKey string) (bool, error) {
	if l.existsFn != nil {
		return l.existsFn(transactionKey)
	}
	return l.exists, l.existsErr
}

func newTestReconciler(gateway *fakeGateway, ledger *fakeLedger) *Reconciler {
	r := NewReconciler(gateway, ledger, NewCycleCalculator(rand.NewSource(1)))
	r.Now = func() time.Time { return time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC) }
	r.NewScheduleID = func() string { return "sched-test-1" }
	return r
}

func paidPayment() *portone.Payment {
	return &portone.Payment{
		ID:         "payment_1700000000000_abc123",
		Status:     "PAID",
		BillingKey: "bk-001",
		OrderName:  "ZineHub monthly",
		Currency:   "KRW",
		Customer:   portone.Customer{ID: "cust-42"},
		Amount:     portone.Amount{Total: 9900},
	}
}

func TestHandlePaid_Success(t *testing.T) {
	gateway := &fakeGateway{payment: paidPayment()}
	ledger := &fakeLedger{}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandlePaid(context.Background(), "payment_1700000000000_abc123")
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.False(t, res.Duplicate)
	assert.Empty(t, res.Warning)

	for _, step := range []string{StepLookupPayment, StepPersistLedgerEvent, StepRegisterSchedule} {
		outcome, ok := res.Checklist.Outcome(step)
		require.True(t, ok, step)
		assert.Equal(t, StepDone, outcome, step)
	}

	require.Len(t, ledger.inserted, 1)
	event := ledger.inserted[0]
	assert.Equal(t, "payment_1700000000000_abc123", event.TransactionKey)
	assert.Equal(t, "cust-42", event.CustomerID)
	assert.Equal(t, int64(9900), event.Amount)
	assert.Equal(t, models.PaymentStatusPaid, event.Status)
	assert.Equal(t, "sched-test-1", event.NextScheduleID)
	assert.Equal(t, r.Now().UTC(), event.StartAt)
	assert.Equal(t, r.Now().UTC().Add(30*24*time.Hour), event.EndAt)

	// The schedule registered at the gateway carries the same correlation id
	// and instant the ledger row stores.
	assert.Equal(t, 1, gateway.createScheduleCalls)
	assert.Equal(t, "sched-test-1", gateway.createdScheduleID)
	assert.Equal(t, event.NextScheduleAt, gateway.createdRunAt)
	require.NotNil(t, res.Schedule)
}

func TestHandlePaid_GatewayFailureWritesNothing(t *testing.T) {
	gateway := &fakeGateway{getPaymentErr: &portone.APIError{StatusCode: 404, Message: "payment not found"}}
	ledger := &fakeLedger{}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandlePaid(context.Background(), "payment_missing")
	require.Error(t, err)

	var apiErr *portone.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.StatusCode)

	outcome, ok := res.Checklist.Outcome(StepLookupPayment)
	require.True(t, ok)
	assert.Equal(t, StepFailed, outcome)
	assert.Empty(t, ledger.inserted)
	assert.Zero(t, gateway.createScheduleCalls)
}

func TestHandlePaid_LedgerFailureIsFatal(t *testing.T) {
	gateway := &fakeGateway{payment: paidPayment()}
	ledger := &fakeLedger{insertErr: errors.New("connection refused")}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandlePaid(context.Background(), "payment_1700000000000_abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist payment event")

	outcome, ok := res.Checklist.Outcome(StepPersistLedgerEvent)
	require.True(t, ok)
	assert.Equal(t, StepFailed, outcome)
	assert.Zero(t, gateway.createScheduleCalls)
}

func TestHandlePaid_ScheduleFailureDegradesToWarning(t *testing.T) {
	gateway := &fakeGateway{payment: paidPayment(), createScheduleErr: errors.New("rate limited")}
	ledger := &fakeLedger{}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandlePaid(context.Background(), "payment_1700000000000_abc123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warning)
	assert.Nil(t, res.Schedule)

	// The charge stays durable even though the next cycle is not registered.
	require.Len(t, ledger.inserted, 1)
	outcome, ok := res.Checklist.Outcome(StepRegisterSchedule)
	require.True(t, ok)
	assert.Equal(t, StepFailed, outcome)
}

func TestHandlePaid_DedupeSkipsDuplicateDelivery(t *testing.T) {
	gateway := &fakeGateway{payment: paidPayment()}
	ledger := &fakeLedger{exists: true}
	r := newTestReconciler(gateway, ledger)
	r.Dedupe = true

	res, err := r.HandlePaid(context.Background(), "payment_1700000000000_abc123")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, ledger.inserted)
	assert.Zero(t, gateway.getPaymentCalls)

	for _, step := range []string{StepLookupPayment, StepPersistLedgerEvent, StepRegisterSchedule} {
		outcome, ok := res.Checklist.Outcome(step)
		require.True(t, ok, step)
		assert.Equal(t, StepSkipped, outcome, step)
	}
}

func TestHandlePaid_DedupeChecksGatewaySideID(t *testing.T) {
	// The gateway answers with its own id for the charge; the ledger stores
	// that id, so a redelivery under the webhook's alias must still be caught.
	payment := paidPayment()
	payment.ID = "payment_canonical"
	gateway := &fakeGateway{payment: payment}

	ledger := &fakeLedger{existsFn: func(transactionKey string) (bool, error) {
		return transactionKey == "payment_canonical", nil
	}}
	r := newTestReconciler(gateway, ledger)
	r.Dedupe = true

	res, err := r.HandlePaid(context.Background(), "payment_alias")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, ledger.inserted)
	assert.Zero(t, gateway.createScheduleCalls)

	outcome, ok := res.Checklist.Outcome(StepLookupPayment)
	require.True(t, ok)
	assert.Equal(t, StepDone, outcome)

	for _, step := range []string{StepPersistLedgerEvent, StepRegisterSchedule} {
		outcome, ok := res.Checklist.Outcome(step)
		require.True(t, ok, step)
		assert.Equal(t, StepSkipped, outcome, step)
	}
}

func TestHandlePaid_DedupeDisabledAllowsReplay(t *testing.T) {
	gateway := &fakeGateway{payment: paidPayment()}
	ledger := &fakeLedger{exists: true}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandlePaid(context.Background(), "payment_1700000000000_abc123")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Len(t, ledger.inserted, 1)
}

func cancelledOriginal() *models.PaymentEvent {
	start := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)
	return &models.PaymentEvent{
		ID:             7,
		TransactionKey: "payment_1700000000000_abc123",
		CustomerID:     "cust-42",
		Amount:         9900,
		Status:         models.PaymentStatusPaid,
		StartAt:        start,
		EndAt:          start.Add(30 * 24 * time.Hour),
		EndGraceAt:     time.Date(2026, 2, 10, 14, 59, 59, 999_000_000, time.UTC),
		NextScheduleAt: time.Date(2026, 2, 10, 1, 30, 0, 0, time.UTC),
		NextScheduleID: "sched-test-1",
	}
}

func TestHandleCancelled_Success(t *testing.T) {
	original := cancelledOriginal()
	gateway := &fakeGateway{
		payment: paidPayment(),
		schedules: []portone.Schedule{
			{ID: "gw-sched-9", PaymentID: "sched-other"},
			{ID: "gw-sched-10", PaymentID: "sched-test-1"},
		},
	}
	ledger := &fakeLedger{latest: original}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandleCancelled(context.Background(), original.TransactionKey)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCancelled)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "gw-sched-10", res.CancelledScheduleID)
	assert.Equal(t, []string{"gw-sched-10"}, gateway.cancelledSchedules)

	require.Len(t, ledger.inserted, 1)
	reversal := ledger.inserted[0]
	assert.Equal(t, int64(-9900), reversal.Amount)
	assert.Equal(t, models.PaymentStatusCancel, reversal.Status)
	assert.Equal(t, original.TransactionKey, reversal.TransactionKey)
	assert.Equal(t, original.EndGraceAt, reversal.EndGraceAt)

	assert.Equal(t, 1, gateway.cancelPaymentCalls)
	assert.Equal(t, original.TransactionKey, gateway.cancelledPaymentID)
	assert.Equal(t, "subscription cancelled", gateway.cancelledReason)

	// Schedule lookup brackets the stored next-charge instant.
	assert.Equal(t, "bk-001", gateway.listedBillingKey)
	assert.Equal(t, original.NextScheduleAt.Add(-24*time.Hour), gateway.listedFrom)
	assert.Equal(t, original.NextScheduleAt.Add(24*time.Hour), gateway.listedUntil)

	for _, step := range []string{
		StepLookupLedgerEvent, StepPersistReversal, StepCancelPayment,
		StepLookupPaymentDetail, StepListSchedules, StepMatchSchedule, StepCancelSchedule,
	} {
		outcome, ok := res.Checklist.Outcome(step)
		require.True(t, ok, step)
		assert.Equal(t, StepDone, outcome, step)
	}
}

func TestHandleCancelled_UnknownTransactionKey(t *testing.T) {
	ledger := &fakeLedger{latestErr: gorm.ErrRecordNotFound}
	gateway := &fakeGateway{}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandleCancelled(context.Background(), "payment_unknown")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, ledger.inserted)

	outcome, ok := res.Checklist.Outcome(StepLookupLedgerEvent)
	require.True(t, ok)
	assert.Equal(t, StepFailed, outcome)
}

func TestHandleCancelled_AlreadyCancelled(t *testing.T) {
	original := cancelledOriginal()
	original.Status = models.PaymentStatusCancel
	original.Amount = -9900
	ledger := &fakeLedger{latest: original}
	gateway := &fakeGateway{}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandleCancelled(context.Background(), original.TransactionKey)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCancelled)
	assert.Empty(t, ledger.inserted)
	assert.Zero(t, gateway.cancelPaymentCalls)
	require.Len(t, res.Warnings, 1)

	outcome, ok := res.Checklist.Outcome(StepPersistReversal)
	require.True(t, ok)
	assert.Equal(t, StepSkipped, outcome)
}

func TestHandleCancelled_ReversalInsertFailureIsFatal(t *testing.T) {
	ledger := &fakeLedger{latest: cancelledOriginal(), insertErr: errors.New("deadlock")}
	gateway := &fakeGateway{}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandleCancelled(context.Background(), "payment_1700000000000_abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist reversal event")
	assert.Zero(t, gateway.cancelPaymentCalls)

	outcome, ok := res.Checklist.Outcome(StepPersistReversal)
	require.True(t, ok)
	assert.Equal(t, StepFailed, outcome)
}

func TestHandleCancelled_ChargeCancelFailureContinuesCleanup(t *testing.T) {
	original := cancelledOriginal()
	gateway := &fakeGateway{
		payment:          paidPayment(),
		cancelPaymentErr: errors.New("already cancelled upstream"),
		schedules:        []portone.Schedule{{ID: "gw-sched-10", PaymentID: "sched-test-1"}},
	}
	ledger := &fakeLedger{latest: original}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandleCancelled(context.Background(), original.TransactionKey)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "gw-sched-10", res.CancelledScheduleID)

	outcome, ok := res.Checklist.Outcome(StepCancelPayment)
	require.True(t, ok)
	assert.Equal(t, StepFailed, outcome)

	outcome, ok = res.Checklist.Outcome(StepCancelSchedule)
	require.True(t, ok)
	assert.Equal(t, StepDone, outcome)
}

func TestHandleCancelled_PaymentLookupFailureSkipsScheduleCleanup(t *testing.T) {
	original := cancelledOriginal()
	gateway := &fakeGateway{getPaymentErr: errors.New("gateway timeout")}
	ledger := &fakeLedger{latest: original}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandleCancelled(context.Background(), original.TransactionKey)
	require.NoError(t, err)
	require.Len(t, ledger.inserted, 1)
	require.NotEmpty(t, res.Warnings)
	assert.Empty(t, gateway.cancelledSchedules)

	for _, step := range []string{StepListSchedules, StepMatchSchedule, StepCancelSchedule} {
		outcome, ok := res.Checklist.Outcome(step)
		require.True(t, ok, step)
		assert.Equal(t, StepSkipped, outcome, step)
	}
}

func TestHandleCancelled_NoMatchingSchedule(t *testing.T) {
	original := cancelledOriginal()
	gateway := &fakeGateway{
		payment:   paidPayment(),
		schedules: []portone.Schedule{{ID: "gw-sched-9", PaymentID: "sched-other"}},
	}
	ledger := &fakeLedger{latest: original}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandleCancelled(context.Background(), original.TransactionKey)
	require.NoError(t, err)
	assert.Empty(t, res.CancelledScheduleID)
	assert.Empty(t, gateway.cancelledSchedules)
	require.Len(t, res.Warnings, 1)

	outcome, ok := res.Checklist.Outcome(StepMatchSchedule)
	require.True(t, ok)
	assert.Equal(t, StepFailed, outcome)

	outcome, ok = res.Checklist.Outcome(StepCancelSchedule)
	require.True(t, ok)
	assert.Equal(t, StepSkipped, outcome)
}

func TestHandleCancelled_ScheduleDeletionFailure(t *testing.T) {
	original := cancelledOriginal()
	gateway := &fakeGateway{
		payment:            paidPayment(),
		schedules:          []portone.Schedule{{ID: "gw-sched-10", PaymentID: "sched-test-1"}},
		cancelSchedulesErr: errors.New("conflict"),
	}
	ledger := &fakeLedger{latest: original}
	r := newTestReconciler(gateway, ledger)

	res, err := r.HandleCancelled(context.Background(), original.TransactionKey)
	require.NoError(t, err)
	assert.Empty(t, res.CancelledScheduleID)
	require.Len(t, res.Warnings, 1)

	outcome, ok := res.Checklist.Outcome(StepCancelSchedule)
	require.True(t, ok)
	assert.Equal(t, StepFailed, outcome)
}
