package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hourlog/internal/model"
	"hourlog/internal/store"
)

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(day string, hhmm string) {
	t, err := time.ParseInLocation("2006-01-02 15:04", day+" "+hhmm, time.UTC)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, evt Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

type countingObserver struct {
	mu    sync.Mutex
	calls map[string]int
}

func (o *countingObserver) ObserveOperation(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[op+":"+Reason(err)]++
}

// createTestService builds a service over an in-memory store.
func createTestService(t *testing.T, opts ...Option) (*Service, *testClock, *store.RecordStore) {
	t.Helper()
	rs := store.New(store.NewMemory())
	require.NoError(t, rs.Init(context.Background()))

	clock := &testClock{}
	clock.Set("2026-10-17", "08:00")

	logger, _ := test.NewNullLogger()
	base := []Option{WithClock(clock.Now), WithLocation(time.UTC), WithLogger(logger)}
	svc := NewService(NewRepository(rs), append(base, opts...)...)
	return svc, clock, rs
}

func registerTestSubject(t *testing.T, svc *Service, account string) model.Subject {
	t.Helper()
	subj, err := svc.RegisterSubject(context.Background(), SubjectInput{
		Name:          "Subject " + account,
		Program:       "Biologia",
		Term:          "3",
		AccountNumber: account,
		Occupation:    "Estudiante",
		Contact:       account + "@example.com",
	})
	require.NoError(t, err)
	return subj
}

func TestClockInClockOutScenario(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	clock.Set("2026-10-17", "09:00")
	opened, err := svc.ClockIn(ctx, s.ID, "arrived")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-17", opened.Date)
	assert.Equal(t, "09:00", opened.ClockIn)
	assert.True(t, opened.Open())
	assert.Empty(t, opened.DurationHours)
	assert.Equal(t, model.OriginAutomatic, opened.Origin)

	clock.Set("2026-10-17", "17:15")
	closed, err := svc.ClockOut(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, opened.ID, closed.ID)
	assert.Equal(t, "17:15", closed.ClockOut)
	assert.Equal(t, "8.25", closed.DurationHours)
	assert.Equal(t, "arrived", closed.Notes, "empty notes keep the stored ones")

	records, err := svc.Repository().ListRecords(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, closed, records[0])

	clock.Set("2026-10-17", "18:00")
	_, err = svc.ClockIn(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrDuplicateDailyEntry)
}

func TestClockInRejectsSecondOpenSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	_, err := svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)
	_, err = svc.ClockIn(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrDuplicateDailyEntry)

	records, err := svc.Repository().ListRecords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestClockOutErrors(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	_, err := svc.ClockOut(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrNoOpenEntry)

	_, err = svc.ClockOut(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	_, err = svc.ClockOut(ctx, "  ", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)
	clock.Set("2026-10-17", "12:30")
	rec, err := svc.ClockOut(ctx, s.ID, "left early")
	require.NoError(t, err)
	assert.Equal(t, "4.50", rec.DurationHours)
	assert.Equal(t, "left early", rec.Notes)

	clock.Set("2026-10-17", "13:00")
	_, err = svc.ClockOut(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestClockInSubjectChecks(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := createTestService(t)

	_, err := svc.ClockIn(ctx, "nobody", "")
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	_, err = svc.ClockIn(ctx, "", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "subject_id", verr.Field)

	s := registerTestSubject(t, svc, "1001")
	_, err = svc.SetActive(ctx, s.ID, false)
	require.NoError(t, err)
	_, err = svc.ClockIn(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrSubjectInactive)
}

func TestOvernightSessionWithTodayLookup(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	clock.Set("2026-10-17", "23:50")
	_, err := svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)

	clock.Set("2026-10-18", "00:20")
	_, err = svc.ClockOut(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrNoOpenEntry)
}

func TestOvernightSessionWithOpenLookup(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := createTestService(t, WithClockOutLookup(LookupOpen))
	s := registerTestSubject(t, svc, "1001")

	clock.Set("2026-10-17", "23:50")
	opened, err := svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)

	clock.Set("2026-10-18", "00:20")
	closed, err := svc.ClockOut(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, opened.ID, closed.ID)
	assert.Equal(t, "2026-10-17", closed.Date)
	assert.Equal(t, "0.50", closed.DurationHours)

	_, err = svc.ClockOut(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrNoOpenEntry, "nothing open and nothing dated today")

	_, err = svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)
	clock.Set("2026-10-18", "01:00")
	_, err = svc.ClockOut(ctx, s.ID, "")
	require.NoError(t, err)
	_, err = svc.ClockOut(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestOpenLookupIgnoresStaleSessions(t *testing.T) {
	ctx := context.Background()
	svc, clock, rs := createTestService(t, WithClockOutLookup(LookupOpen))
	s := registerTestSubject(t, svc, "1001")

	clock.Set("2026-10-15", "09:00")
	stale, err := svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)

	clock.Set("2026-10-17", "10:00")
	_, err = svc.ClockOut(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrNoOpenEntry)

	rows, err := rs.Load(ctx, store.Records)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	kept := model.RecordFromRow(rows[0])
	assert.Equal(t, stale.ID, kept.ID)
	assert.True(t, kept.Open(), "stale session stays open")
}

func TestClockOutAllowedAfterDeactivation(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	_, err := svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, s.ID, false)
	require.NoError(t, err)

	clock.Set("2026-10-17", "12:00")
	closed, err := svc.ClockOut(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "4.00", closed.DurationHours)
}

func TestClockOutPropagatesCorruptClockIn(t *testing.T) {
	ctx := context.Background()
	svc, _, rs := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	require.NoError(t, rs.Update(ctx, func(tx *store.Tx) error {
		rec := model.Record{ID: "bad00001", SubjectID: s.ID, Date: "2026-10-17", ClockIn: "9am", Origin: model.OriginAutomatic}
		tx.Replace(store.Records, []store.Row{rec.Row()})
		return nil
	}))

	_, err := svc.ClockOut(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTimeFormat)

	records, err := svc.Repository().ListRecords(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Open(), "failed clock-out must not write")
}

func TestManualRecords(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	first, err := svc.AddManualRecord(ctx, ManualEntry{SubjectID: s.ID, Date: "2026-09-01", ClockIn: "08:00", ClockOut: "12:30"})
	require.NoError(t, err)
	assert.Equal(t, "4.50", first.DurationHours)
	assert.Equal(t, model.OriginManual, first.Origin)

	second, err := svc.AddManualRecord(ctx, ManualEntry{SubjectID: s.ID, Date: "2026-09-01", ClockIn: "14:00", ClockOut: "15:00", DurationHours: "3"})
	require.NoError(t, err)
	assert.Equal(t, "3.00", second.DurationHours, "supplied duration wins")
	assert.NotEqual(t, first.ID, second.ID)

	third, err := svc.AddManualRecord(ctx, ManualEntry{SubjectID: s.ID, Date: "2026-09-01", ClockIn: "23:50", ClockOut: "00:20", DurationHours: "n/a"})
	require.NoError(t, err)
	assert.Equal(t, "0.50", third.DurationHours, "unparsable duration is recomputed")

	negative, err := svc.AddManualRecord(ctx, ManualEntry{SubjectID: s.ID, Date: "2026-09-02", ClockIn: "10:00", ClockOut: "11:00", DurationHours: "-2"})
	require.NoError(t, err)
	assert.Equal(t, "1.00", negative.DurationHours)

	records, err := svc.Repository().ListRecords(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestManualRecordValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	tests := []struct {
		name  string
		entry ManualEntry
		want  error
	}{
		{"missing subject", ManualEntry{Date: "2026-09-01", ClockIn: "08:00", ClockOut: "09:00"}, ErrIncompleteManualEntry},
		{"missing date", ManualEntry{SubjectID: s.ID, ClockIn: "08:00", ClockOut: "09:00"}, ErrIncompleteManualEntry},
		{"missing clock in", ManualEntry{SubjectID: s.ID, Date: "2026-09-01", ClockOut: "09:00"}, ErrIncompleteManualEntry},
		{"missing clock out", ManualEntry{SubjectID: s.ID, Date: "2026-09-01", ClockIn: "08:00", DurationHours: "1"}, ErrIncompleteManualEntry},
		{"bad date", ManualEntry{SubjectID: s.ID, Date: "01/09/2026", ClockIn: "08:00", ClockOut: "09:00"}, ErrValidation},
		{"bad time", ManualEntry{SubjectID: s.ID, Date: "2026-09-01", ClockIn: "8h", ClockOut: "09:00"}, ErrInvalidTimeFormat},
		{"unknown subject", ManualEntry{SubjectID: "ghost", Date: "2026-09-01", ClockIn: "08:00", ClockOut: "09:00"}, ErrSubjectNotFound},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddManualRecord(ctx, tc.entry)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	records, err := svc.Repository().ListRecords(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManualRecordBlocksLaterClockIn(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	_, err := svc.AddManualRecord(ctx, ManualEntry{SubjectID: s.ID, Date: "2026-10-17", ClockIn: "06:00", ClockOut: "07:00"})
	require.NoError(t, err)
	_, err = svc.ClockIn(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrDuplicateDailyEntry)
}

func TestSubjectLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := createTestService(t)

	a := registerTestSubject(t, svc, "1001")
	assert.True(t, a.Active)
	assert.Len(t, a.ID, 8)
	b := registerTestSubject(t, svc, "1002")

	_, err := svc.RegisterSubject(ctx, SubjectInput{Name: "Dup", Program: "X", Term: "1", AccountNumber: "1001", Occupation: "Y", Contact: "Z"})
	assert.ErrorIs(t, err, ErrDuplicateAccountNumber)

	_, err = svc.RegisterSubject(ctx, SubjectInput{Name: "No contact", Program: "X", Term: "1", AccountNumber: "2000", Occupation: "Y", Contact: "   "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "contact", verr.Field)

	in := SubjectInput{Name: "Ana Ruiz", Program: "Quimica", Term: "5", AccountNumber: "1002", Occupation: "Becaria", Contact: "ana@x"}
	_, err = svc.EditSubject(ctx, a.ID, in, nil)
	assert.ErrorIs(t, err, ErrDuplicateAccountNumber, "account numbers stay unique on edit")

	in.AccountNumber = "1001"
	inactive := false
	edited, err := svc.EditSubject(ctx, a.ID, in, &inactive)
	require.NoError(t, err)
	assert.Equal(t, "Quimica", edited.Program)
	assert.False(t, edited.Active)
	assert.Equal(t, a.ID, edited.ID)

	_, err = svc.EditSubject(ctx, "ghost", in, nil)
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	got, err := svc.GetSubject(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, edited, got)

	_, err = svc.GetSubject(ctx, "ghost")
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	_, err = svc.SetActive(ctx, "ghost", true)
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	all, err := svc.ListSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[1].ID)
}

func TestDeactivationKeepsHistory(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := createTestService(t)
	s := registerTestSubject(t, svc, "1001")

	_, err := svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)
	clock.Set("2026-10-17", "10:00")
	closed, err := svc.ClockOut(ctx, s.ID, "")
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, s.ID, false)
	require.NoError(t, err)

	records, err := svc.Repository().ListRecords(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Record{closed}, records)

	reactivated, err := svc.SetActive(ctx, s.ID, true)
	require.NoError(t, err)
	assert.True(t, reactivated.Active)
}

func TestConcurrentClockInsAreAllPersisted(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := createTestService(t)

	const n = 24
	subjects := make([]model.Subject, n)
	for i := range subjects {
		subjects[i] = registerTestSubject(t, svc, fmt.Sprintf("%04d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, s := range subjects {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.ClockIn(ctx, id, "")
			errs <- err
		}(s.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := svc.Repository().ListRecords(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, n)
	seen := map[string]bool{}
	for _, r := range records {
		assert.False(t, seen[r.ID], "duplicate record id %s", r.ID)
		seen[r.ID] = true
	}
}

type brokenBackend struct{ *store.Memory }

func (brokenBackend) LoadAll(context.Context, store.Table) ([]store.Row, error) {
	return nil, errors.New("permission denied")
}

func TestStorageFailureSurfaces(t *testing.T) {
	logger, hook := test.NewNullLogger()
	svc := NewService(NewRepository(store.New(brokenBackend{store.NewMemory()})), WithLogger(logger))

	_, err := svc.ClockIn(context.Background(), "anyone", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageIO)
	assert.False(t, IsBusinessError(err))
	assert.Equal(t, "storage_io", Reason(err))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestNotifierAndObserver(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	o := &countingObserver{}
	svc, clock, _ := createTestService(t, WithNotifier(n), WithObserver(o))
	s := registerTestSubject(t, svc, "1001")

	opened, err := svc.ClockIn(ctx, s.ID, "")
	require.NoError(t, err)
	_, err = svc.ClockIn(ctx, s.ID, "")
	require.Error(t, err)
	clock.Set("2026-10-17", "09:00")
	_, err = svc.ClockOut(ctx, s.ID, "")
	require.NoError(t, err)

	require.Len(t, n.events, 3, "rejected operations are not announced")
	assert.Equal(t, EventSubjectChanged, n.events[0].Kind)
	assert.Equal(t, EventClockIn, n.events[1].Kind)
	assert.Equal(t, opened.ID, n.events[1].RecordID)
	assert.Equal(t, EventClockOut, n.events[2].Kind)
	assert.Equal(t, s.ID, n.events[2].SubjectID)

	assert.Equal(t, 1, o.calls["clock_in:ok"])
	assert.Equal(t, 1, o.calls["clock_in:duplicate_daily_entry"])
	assert.Equal(t, 1, o.calls["clock_out:ok"])
	assert.Equal(t, 1, o.calls["register_subject:ok"])
}

func TestReasonLabels(t *testing.T) {
	assert.Equal(t, "ok", Reason(nil))
	assert.Equal(t, "validation", Reason(required("name")))
	assert.Equal(t, "invalid_time_format", Reason(fmt.Errorf("clock in: %w", ErrInvalidTimeFormat)))
	assert.True(t, IsBusinessError(ErrAlreadyClosed))
	assert.False(t, IsBusinessError(errors.New("boom")))
}
