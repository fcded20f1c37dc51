// Package attendance is the ledger engine: it opens and closes attendance
// sessions, accepts manual backfill and maintains the subject roster. Every
// mutation is a single read-modify-write of the affected collection under
// the record store lock.
package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"hourlog/internal/idgen"
	"hourlog/internal/model"
	"hourlog/internal/timecalc"
)

// ClockOutLookup selects which record a clock-out closes.
type ClockOutLookup string

const (
	// LookupToday only considers the record dated today. A session opened
	// before midnight therefore cannot be closed after midnight.
	LookupToday ClockOutLookup = "today"
	// LookupOpen closes the subject's most recent open automatic record
	// whatever its date, falling back to today's record for error reporting.
	LookupOpen ClockOutLookup = "open"
)

// EventKind names a ledger change.
type EventKind string

const (
	EventClockIn        EventKind = "clock_in"
	EventClockOut       EventKind = "clock_out"
	EventManualRecord   EventKind = "manual_record"
	EventSubjectChanged EventKind = "subject_changed"
)

// Event describes a committed mutation.
type Event struct {
	Kind      EventKind `json:"kind"`
	SubjectID string    `json:"subject_id"`
	RecordID  string    `json:"record_id,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier is told about committed mutations. Failures are logged only; the
// ledger write has already happened.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// OperationObserver receives the outcome of every service operation.
type OperationObserver interface {
	ObserveOperation(op string, err error)
}

// Service coordinates the ledger state machine.
type Service struct {
	repo     *Repository
	ids      *idgen.Generator
	now      func() time.Time
	loc      *time.Location
	lookup   ClockOutLookup
	log      logrus.FieldLogger
	notifier Notifier
	observer OperationObserver
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLocation sets the timezone used to derive dates and times of day.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithClockOutLookup selects the clock-out policy.
func WithClockOutLookup(l ClockOutLookup) Option { return func(s *Service) { s.lookup = l } }

// WithIDGenerator overrides the id generator.
func WithIDGenerator(g *idgen.Generator) Option { return func(s *Service) { s.ids = g } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

// WithNotifier registers a listener for committed mutations.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithObserver registers an operation outcome observer.
func WithObserver(o OperationObserver) Option { return func(s *Service) { s.observer = o } }

// NewService creates a service backed by a repository.
func NewService(repo *Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		ids:    idgen.New(),
		now:    time.Now,
		loc:    time.Local,
		lookup: LookupToday,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lookup != LookupOpen {
		s.lookup = LookupToday
	}
	return s
}

// Repository returns the repository the service writes through.
func (s *Service) Repository() *Repository { return s.repo }

func (s *Service) clock() (date, hhmm string, at time.Time) {
	at = s.now().In(s.loc)
	return timecalc.FormatDate(at), timecalc.FormatClock(at), at
}

// ClockIn opens today's session for the subject.
func (s *Service) ClockIn(ctx context.Context, subjectID, notes string) (rec model.Record, err error) {
	defer func() { s.finish(ctx, "clock_in", err, EventClockIn, subjectID, rec.ID) }()

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return model.Record{}, required("subject_id")
	}
	date, hhmm, _ := s.clock()

	err = s.repo.Update(ctx, func(b *Batch) error {
		if _, err := s.activeSubject(b, subjectID); err != nil {
			return err
		}
		records, err := b.Records()
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.SubjectID == subjectID && r.Date == date {
				return ErrDuplicateDailyEntry
			}
		}
		id, err := s.ids.Next(recordIDTaken(records))
		if err != nil {
			return err
		}
		rec = model.Record{
			ID:        id,
			SubjectID: subjectID,
			Date:      date,
			ClockIn:   hhmm,
			Notes:     strings.TrimSpace(notes),
			Origin:    model.OriginAutomatic,
		}
		b.SetRecords(append(records, rec))
		return nil
	})
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// ClockOut closes the subject's session and fills in its duration. Notes
// replace the stored ones only when non-empty.
func (s *Service) ClockOut(ctx context.Context, subjectID, notes string) (rec model.Record, err error) {
	defer func() { s.finish(ctx, "clock_out", err, EventClockOut, subjectID, rec.ID) }()

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return model.Record{}, required("subject_id")
	}
	date, hhmm, at := s.clock()
	yesterday := timecalc.FormatDate(at.AddDate(0, 0, -1))
	notes = strings.TrimSpace(notes)

	err = s.repo.Update(ctx, func(b *Batch) error {
		subjects, err := b.Subjects()
		if err != nil {
			return err
		}
		if indexSubject(subjects, subjectID) < 0 {
			return ErrSubjectNotFound
		}
		records, err := b.Records()
		if err != nil {
			return err
		}
		i := s.closable(records, subjectID, date, yesterday)
		if i < 0 {
			return ErrNoOpenEntry
		}
		if !records[i].Open() {
			return ErrAlreadyClosed
		}
		hours, err := timecalc.ComputeDuration(records[i].ClockIn, hhmm)
		if err != nil {
			return err
		}
		records[i].ClockOut = hhmm
		records[i].DurationHours = timecalc.FormatHours(hours)
		if notes != "" {
			records[i].Notes = notes
		}
		rec = records[i]
		b.SetRecords(records)
		return nil
	})
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// closable picks the record a clock-out applies to, or -1. The open lookup
// only reaches back to yesterday, the span a single midnight wrap covers.
func (s *Service) closable(records []model.Record, subjectID, date, yesterday string) int {
	if s.lookup == LookupOpen {
		best := -1
		for i, r := range records {
			if r.SubjectID != subjectID || r.Origin != model.OriginAutomatic || !r.Open() {
				continue
			}
			if r.Date != date && r.Date != yesterday {
				continue
			}
			if best < 0 || r.Date > records[best].Date ||
				(r.Date == records[best].Date && r.ClockIn >= records[best].ClockIn) {
				best = i
			}
		}
		if best >= 0 {
			return best
		}
	}

	first := -1
	for i, r := range records {
		if r.SubjectID != subjectID || r.Date != date {
			continue
		}
		if r.Origin == model.OriginAutomatic && r.Open() {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

// ManualEntry is a backfilled session. DurationHours may be empty, in which
// case it is derived from the clock times.
type ManualEntry struct {
	SubjectID     string `json:"subject_id"`
	Date          string `json:"date"`
	ClockIn       string `json:"clock_in"`
	ClockOut      string `json:"clock_out"`
	DurationHours string `json:"duration_hours"`
	Notes         string `json:"notes"`
}

// AddManualRecord appends a manual record. No daily uniqueness applies.
func (s *Service) AddManualRecord(ctx context.Context, e ManualEntry) (rec model.Record, err error) {
	defer func() { s.finish(ctx, "manual_record", err, EventManualRecord, e.SubjectID, rec.ID) }()

	e.SubjectID = strings.TrimSpace(e.SubjectID)
	e.Date = strings.TrimSpace(e.Date)
	e.ClockIn = strings.TrimSpace(e.ClockIn)
	e.ClockOut = strings.TrimSpace(e.ClockOut)
	if e.SubjectID == "" || e.Date == "" || e.ClockIn == "" || e.ClockOut == "" {
		return model.Record{}, ErrIncompleteManualEntry
	}
	if !timecalc.ValidDate(e.Date) {
		return model.Record{}, &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	computed, err := timecalc.ComputeDuration(e.ClockIn, e.ClockOut)
	if err != nil {
		return model.Record{}, err
	}
	hours := computed
	if v, ok, perr := timecalc.ParseHours(e.DurationHours); perr == nil && ok && v >= 0 {
		hours = v
	} else if perr != nil {
		s.log.WithFields(logrus.Fields{
			"subject_id": e.SubjectID,
			"supplied":   e.DurationHours,
		}).Debug("manual duration not numeric, using computed value")
	}

	err = s.repo.Update(ctx, func(b *Batch) error {
		subjects, err := b.Subjects()
		if err != nil {
			return err
		}
		if indexSubject(subjects, e.SubjectID) < 0 {
			return ErrSubjectNotFound
		}
		records, err := b.Records()
		if err != nil {
			return err
		}
		id, err := s.ids.Next(recordIDTaken(records))
		if err != nil {
			return err
		}
		rec = model.Record{
			ID:            id,
			SubjectID:     e.SubjectID,
			Date:          e.Date,
			ClockIn:       e.ClockIn,
			ClockOut:      e.ClockOut,
			DurationHours: timecalc.FormatHours(hours),
			Notes:         strings.TrimSpace(e.Notes),
			Origin:        model.OriginManual,
		}
		b.SetRecords(append(records, rec))
		return nil
	})
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

func (s *Service) activeSubject(b *Batch, id string) (model.Subject, error) {
	subjects, err := b.Subjects()
	if err != nil {
		return model.Subject{}, err
	}
	i := indexSubject(subjects, id)
	if i < 0 {
		return model.Subject{}, ErrSubjectNotFound
	}
	if !subjects[i].Active {
		return model.Subject{}, ErrSubjectInactive
	}
	return subjects[i], nil
}

func (s *Service) finish(ctx context.Context, op string, err error, kind EventKind, subjectID, recordID string) {
	if s.observer != nil {
		s.observer.ObserveOperation(op, err)
	}
	entry := s.log.WithFields(logrus.Fields{"op": op, "subject_id": subjectID})
	if err != nil {
		if IsBusinessError(err) {
			entry.WithField("reason", Reason(err)).Info("ledger operation rejected")
		} else {
			entry.WithError(err).Error("ledger operation failed")
		}
		return
	}
	if recordID != "" {
		entry = entry.WithField("record_id", recordID)
	}
	entry.Debug("ledger operation committed")
	if s.notifier == nil {
		return
	}
	evt := Event{Kind: kind, SubjectID: subjectID, RecordID: recordID, At: s.now()}
	if nerr := s.notifier.Notify(ctx, evt); nerr != nil {
		entry.WithError(nerr).Warn("ledger event not delivered")
	}
}

func recordIDTaken(records []model.Record) func(string) bool {
	return func(id string) bool {
		for _, r := range records {
			if r.ID == id {
				return true
			}
		}
		return false
	}
}

func subjectIDTaken(subjects []model.Subject) func(string) bool {
	return func(id string) bool {
		return indexSubject(subjects, id) >= 0
	}
}
