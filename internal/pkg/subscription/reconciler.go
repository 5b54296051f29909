package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HyunwooPark/ZineHub/app/models"
	"github.com/HyunwooPark/ZineHub/internal/pkg/portone"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Paid pipeline steps, in execution order.
const (
	StepLookupPayment      = "lookup_payment"
	StepPersistLedgerEvent = "persist_ledger_event"
	StepRegisterSchedule   = "register_next_schedule"
)

// Cancelled pipeline steps, in execution order.
const (
	StepLookupLedgerEvent   = "lookup_ledger_event"
	StepPersistReversal     = "persist_reversal_event"
	StepCancelPayment       = "cancel_payment"
	StepLookupPaymentDetail = "lookup_payment"
	StepListSchedules       = "list_schedules"
	StepMatchSchedule       = "match_schedule"
	StepCancelSchedule      = "cancel_schedule"
)

// Window around the stored next_schedule_at used when locating the pending
// schedule during cancellation.
const scheduleLookupWindow = 24 * time.Hour

const cancelReason = "subscription cancelled"

// ErrNotFound is returned by the Cancelled path when no ledger row exists
// for the webhook's transaction key. Nothing has been written when it fires.
var ErrNotFound = errors.New("no payment event for transaction key")

// Gateway is the slice of the payment provider the reconciler drives.
type Gateway interface {
	GetPayment(ctx context.Context, paymentID string) (*portone.Payment, error)
	CreateSchedule(ctx context.Context, scheduleID string, payment *portone.Payment, runAt time.Time) (*portone.Schedule, error)
	GetSchedules(ctx context.Context, billingKey string, from, until time.Time) ([]portone.Schedule, error)
	CancelSchedules(ctx context.Context, scheduleIDs []string) error
	CancelPayment(ctx context.Context, paymentID, reason string) error
}

// Ledger is the slice of the payment ledger the reconciler writes.
type Ledger interface {
	Insert(event *models.PaymentEvent) error
	LatestByTransactionKey(transactionKey string) (*models.PaymentEvent, error)
	ExistsByTransactionKey(transactionKey string) (bool, error)
}

// Reconciler drives the Paid/Cancelled webhook state machine. Each webhook
// delivery runs an independent pipeline; there is no shared mutable state
// and no compensating rollback: a failed step reports partial progress via
// the checklist instead of silently retrying.
type Reconciler struct {
	Gateway Gateway
	Ledger  Ledger
	Cycles  *CycleCalculator

	// Dedupe enables the pre-insert existence check on the Paid path.
	// The upstream webhook source does not guarantee at-most-once delivery.
	Dedupe bool

	Now           func() time.Time
	NewScheduleID func() string
}

// NewReconciler wires a reconciler with production defaults.
func NewReconciler(gateway Gateway, ledger Ledger, cycles *CycleCalculator) *Reconciler {
	return &Reconciler{
		Gateway:       gateway,
		Ledger:        ledger,
		Cycles:        cycles,
		Now:           time.Now,
		NewScheduleID: uuid.NewString,
	}
}

// PaidResult is the outcome of the Paid pipeline. The checklist is always
// populated, including on failure. A non-empty Warning with a nil error
// means the charge is durable locally but the next schedule was not
// registered.
type PaidResult struct {
	Checklist *Checklist
	Duplicate bool
	Payment   *portone.Payment
	Event     *models.PaymentEvent
	Schedule  *portone.Schedule
	Warning   string
}

// HandlePaid runs the Paid pipeline: query payment details, compute the
// cycle, append the ledger row, register the next recurring charge.
//
// Gateway failure before the ledger write fails the request with nothing
// persisted. A ledger write failure is fatal: the charge happened upstream
// but is unrecorded locally, a consistency gap reconciled out-of-band.
// Schedule registration failure after the write degrades to a warning.
func (r *Reconciler) HandlePaid(ctx context.Context, paymentID string) (*PaidResult, error) {
	res := &PaidResult{Checklist: NewChecklist()}

	if r.Dedupe {
		exists, err := r.Ledger.ExistsByTransactionKey(paymentID)
		if err != nil {
			res.Checklist.Failed(StepLookupPayment)
			return res, fmt.Errorf("dedupe check: %w", err)
		}
		if exists {
			res.Checklist.Skipped(StepLookupPayment)
			res.Checklist.Skipped(StepPersistLedgerEvent)
			res.Checklist.Skipped(StepRegisterSchedule)
			res.Duplicate = true
			return res, nil
		}
	}

	payment, err := r.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		res.Checklist.Failed(StepLookupPayment)
		return res, err
	}
	res.Checklist.Done(StepLookupPayment)
	res.Payment = payment

	transactionKey := payment.ID
	if transactionKey == "" {
		transactionKey = paymentID
	}

	// The ledger stores the gateway's id, so when it differs from the
	// webhook's payment_id the pre-pipeline check above missed it.
	if r.Dedupe && transactionKey != paymentID {
		exists, err := r.Ledger.ExistsByTransactionKey(transactionKey)
		if err != nil {
			res.Checklist.Failed(StepPersistLedgerEvent)
			return res, fmt.Errorf("dedupe check: %w", err)
		}
		if exists {
			res.Checklist.Skipped(StepPersistLedgerEvent)
			res.Checklist.Skipped(StepRegisterSchedule)
			res.Duplicate = true
			return res, nil
		}
	}

	cycle := r.Cycles.Compute(r.Now())
	scheduleID := r.NewScheduleID()

	event := &models.PaymentEvent{
		TransactionKey: transactionKey,
		CustomerID:     payment.Customer.ID,
		Amount:         payment.Amount.Total,
		Status:         models.PaymentStatusPaid,
		StartAt:        cycle.StartAt,
		EndAt:          cycle.EndAt,
		EndGraceAt:     cycle.EndGraceAt,
		NextScheduleAt: cycle.NextScheduleAt,
		NextScheduleID: scheduleID,
	}
	if err := r.Ledger.Insert(event); err != nil {
		res.Checklist.Failed(StepPersistLedgerEvent)
		return res, fmt.Errorf("persist payment event: %w", err)
	}
	res.Checklist.Done(StepPersistLedgerEvent)
	res.Event = event

	schedule, err := r.Gateway.CreateSchedule(ctx, scheduleID, payment, cycle.NextScheduleAt)
	if err != nil {
		// The paid event is already durable; the recurring charge simply
		// will not fire next cycle unless reconciled out-of-band.
		res.Checklist.Failed(StepRegisterSchedule)
		res.Warning = "next subscription charge could not be scheduled: " + err.Error()
		return res, nil
	}
	res.Checklist.Done(StepRegisterSchedule)
	res.Schedule = schedule

	return res, nil
}

// CancelledResult is the outcome of the Cancelled pipeline. Warnings carry
// every degraded step; the reversal row is durable whenever Reversal is set.
type CancelledResult struct {
	Checklist           *Checklist
	AlreadyCancelled    bool
	Original            *models.PaymentEvent
	Reversal            *models.PaymentEvent
	CancelledScheduleID string
	Warnings            []string
}

func (res *CancelledResult) warn(msg string) {
	res.Warnings = append(res.Warnings, msg)
}

// HandleCancelled runs the Cancelled pipeline: locate the latest ledger row
// for the transaction key, append the reversal, then run gateway
// bookkeeping (charge cancellation, pending-schedule removal).
//
// Once the reversal row is durable every later failure degrades to a
// warning: user-facing cancellation must not appear to fail because of
// downstream schedule cleanup. The charge-cancel call and the schedule
// cleanup are independent; a failure of the former does not skip the
// latter.
func (r *Reconciler) HandleCancelled(ctx context.Context, paymentID string) (*CancelledResult, error) {
	res := &CancelledResult{Checklist: NewChecklist()}

	original, err := r.Ledger.LatestByTransactionKey(paymentID)
	if err != nil {
		res.Checklist.Failed(StepLookupLedgerEvent)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return res, ErrNotFound
		}
		return res, fmt.Errorf("lookup payment event: %w", err)
	}
	res.Checklist.Done(StepLookupLedgerEvent)
	res.Original = original

	if original.Status == models.PaymentStatusCancel {
		// Latest row already reverses this charge. Inserting another
		// reversal would negate a negative amount and corrupt the ledger.
		res.Checklist.Skipped(StepPersistReversal)
		res.skipScheduleCleanup(true)
		res.AlreadyCancelled = true
		res.warn("transaction is already cancelled; nothing to reverse")
		return res, nil
	}

	reversal := original.Reversal()
	if err := r.Ledger.Insert(reversal); err != nil {
		res.Checklist.Failed(StepPersistReversal)
		return res, fmt.Errorf("persist reversal event: %w", err)
	}
	res.Checklist.Done(StepPersistReversal)
	res.Reversal = reversal

	if err := r.Gateway.CancelPayment(ctx, original.TransactionKey, cancelReason); err != nil {
		res.Checklist.Failed(StepCancelPayment)
		res.warn("gateway charge cancellation failed: " + err.Error())
	} else {
		res.Checklist.Done(StepCancelPayment)
	}

	payment, err := r.Gateway.GetPayment(ctx, original.TransactionKey)
	if err != nil {
		res.Checklist.Failed(StepLookupPaymentDetail)
		res.warn("payment details lookup failed, pending schedule left in place: " + err.Error())
		res.skipAfter(StepListSchedules)
		return res, nil
	}
	res.Checklist.Done(StepLookupPaymentDetail)

	from := original.NextScheduleAt.Add(-scheduleLookupWindow)
	until := original.NextScheduleAt.Add(scheduleLookupWindow)
	schedules, err := r.Gateway.GetSchedules(ctx, payment.BillingKey, from, until)
	if err != nil {
		res.Checklist.Failed(StepListSchedules)
		res.warn("schedule listing failed, pending schedule left in place: " + err.Error())
		res.skipAfter(StepMatchSchedule)
		return res, nil
	}
	res.Checklist.Done(StepListSchedules)

	var matched *portone.Schedule
	for i := range schedules {
		if schedules[i].PaymentID == original.NextScheduleID {
			matched = &schedules[i]
			break
		}
	}
	if matched == nil {
		// Informational terminus: the schedule likely already fired or was
		// never created (see the Paid-path warning branch).
		res.Checklist.Failed(StepMatchSchedule)
		res.Checklist.Skipped(StepCancelSchedule)
		res.warn("no pending schedule matched the stored correlation id; it may have already fired")
		return res, nil
	}
	res.Checklist.Done(StepMatchSchedule)

	if err := r.Gateway.CancelSchedules(ctx, []string{matched.ID}); err != nil {
		res.Checklist.Failed(StepCancelSchedule)
		res.warn("schedule deletion failed: " + err.Error())
		return res, nil
	}
	res.Checklist.Done(StepCancelSchedule)
	res.CancelledScheduleID = matched.ID

	return res, nil
}

// skipAfter marks the remaining cleanup steps from the given one as skipped.
func (res *CancelledResult) skipAfter(step string) {
	order := []string{StepListSchedules, StepMatchSchedule, StepCancelSchedule}
	skipping := false
	for _, s := range order {
		if s == step {
			skipping = true
		}
		if skipping {
			res.Checklist.Skipped(s)
		}
	}
}

func (res *CancelledResult) skipScheduleCleanup(includeCharge bool) {
	if includeCharge {
		res.Checklist.Skipped(StepCancelPayment)
		res.Checklist.Skipped(StepLookupPaymentDetail)
	}
	res.skipAfter(StepListSchedules)
}
