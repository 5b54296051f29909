package subscription

import (
	"math/rand"
	"sync"
	"time"
)

// Subscription periods run 30 days from the charge instant. Grace and
// next-charge boundaries are day-of-month arithmetic in the store's local
// timezone (KST), stored as UTC instants.
const periodDays = 30

var kst = time.FixedZone("Asia/Seoul", 9*60*60)

// Cycle is one subscription period computed from a charge timestamp.
type Cycle struct {
	StartAt        time.Time
	EndAt          time.Time
	EndGraceAt     time.Time
	NextScheduleAt time.Time
}

// CycleCalculator derives period boundaries from a charge timestamp.
//
// StartAt/EndAt/EndGraceAt are deterministic. NextScheduleAt carries a
// uniform random minute inside the 10:00-11:00 KST window of the day after
// EndAt so recurring charges spread out instead of firing in one burst;
// calling Compute twice with the same input yields different minutes.
// Inject a seeded source to make tests deterministic.
//
// One calculator is shared by every request goroutine and rand.Rand is not
// safe for concurrent use, so the draw is serialized.
type CycleCalculator struct {
	mu   sync.Mutex
	intn func(n int) int
}

// NewCycleCalculator creates a calculator using src for jitter. A nil src
// falls back to a time-seeded source.
func NewCycleCalculator(src rand.Source) *CycleCalculator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	rng := rand.New(src)
	return &CycleCalculator{intn: rng.Intn}
}

// Compute derives the cycle for a charge made at t. It always succeeds for
// a valid instant.
func (c *CycleCalculator) Compute(t time.Time) Cycle {
	startAt := t.UTC()
	endAt := startAt.Add(periodDays * 24 * time.Hour)

	// The day after endAt, on the KST calendar.
	dayAfterEnd := endAt.In(kst).AddDate(0, 0, 1)

	// Access lapses at local midnight: 23:59:59.999 KST == 14:59:59.999 UTC.
	endGraceAt := time.Date(
		dayAfterEnd.Year(), dayAfterEnd.Month(), dayAfterEnd.Day(),
		23, 59, 59, 999_000_000, kst,
	).UTC()

	// Next charge lands between 10:00 and 11:00 KST that same local day.
	nextScheduleAt := time.Date(
		dayAfterEnd.Year(), dayAfterEnd.Month(), dayAfterEnd.Day(),
		10, c.jitterMinute(), 0, 0, kst,
	).UTC()

	return Cycle{
		StartAt:        startAt,
		EndAt:          endAt,
		EndGraceAt:     endGraceAt,
		NextScheduleAt: nextScheduleAt,
	}
}

func (c *CycleCalculator) jitterMinute() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intn(60)
}
