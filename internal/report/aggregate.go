// Package report derives read-only views from the ledger: per-subject
// totals, daily presence, group rollups and the downloadable exports.
package report

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"hourlog/internal/attendance"
	"hourlog/internal/model"
	"hourlog/internal/timecalc"
)

// SumHours adds up the subject's parseable durations. Values are summed as
// integer millionths and rounded to 2 decimals once at the end, so the result
// does not depend on record order. Malformed values are skipped and their
// record ids returned.
func SumHours(records []model.Record, subjectID string) (total float64, skipped []string) {
	var micros int64
	for _, r := range records {
		if r.SubjectID != subjectID {
			continue
		}
		h, ok, err := r.Hours()
		if err != nil {
			skipped = append(skipped, r.ID)
			continue
		}
		if !ok {
			continue
		}
		micros += int64(math.Round(h * 1e6))
	}
	return math.Round(float64(micros)/1e4) / 100, skipped
}

// Engine computes aggregate views. It never writes.
type Engine struct {
	repo  *attendance.Repository
	log   logrus.FieldLogger
	now   func() time.Time
	loc   *time.Location
	cache *HoursCache
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(l logrus.FieldLogger) EngineOption { return func(e *Engine) { e.log = l } }

// WithEngineClock sets the time source and the timezone used for "today".
func WithEngineClock(now func() time.Time, loc *time.Location) EngineOption {
	return func(e *Engine) { e.now, e.loc = now, loc }
}

// WithCache lets CachedTotalHours read through a HoursCache.
func WithCache(c *HoursCache) EngineOption { return func(e *Engine) { e.cache = c } }

// NewEngine creates an aggregation engine over repo.
func NewEngine(repo *attendance.Repository, opts ...EngineOption) *Engine {
	e := &Engine{repo: repo, log: logrus.StandardLogger(), now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) sum(records []model.Record, subjectID string) float64 {
	total, skipped := SumHours(records, subjectID)
	if len(skipped) > 0 {
		e.log.WithFields(logrus.Fields{
			"subject_id": subjectID,
			"record_ids": skipped,
		}).Debug("skipped malformed durations")
	}
	return total
}

// TotalHours returns the subject's accumulated hours.
func (e *Engine) TotalHours(ctx context.Context, subjectID string) (float64, error) {
	records, err := e.repo.ListRecords(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	return e.sum(records, subjectID), nil
}

// CachedTotalHours serves from the cache when one is configured, filling it
// on a miss. Cache failures fall back to the ledger.
func (e *Engine) CachedTotalHours(ctx context.Context, subjectID string) (float64, error) {
	if e.cache == nil {
		return e.TotalHours(ctx, subjectID)
	}
	if h, ok, err := e.cache.Get(ctx, subjectID); err == nil && ok {
		return h, nil
	} else if err != nil {
		e.log.WithError(err).Warn("hours cache read failed")
	}
	h, err := e.TotalHours(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	if err := e.cache.Set(ctx, subjectID, h); err != nil {
		e.log.WithError(err).Warn("hours cache write failed")
	}
	return h, nil
}

// Refresh recomputes the subject's total into the cache.
func (e *Engine) Refresh(ctx context.Context, subjectID string) error {
	if e.cache == nil {
		return nil
	}
	h, err := e.TotalHours(ctx, subjectID)
	if err != nil {
		return err
	}
	return e.cache.Set(ctx, subjectID, h)
}

// Presence summarizes one calendar day.
type Presence struct {
	Date           string         `json:"date"`
	ActiveSubjects int            `json:"active_subjects"`
	OpenSessions   int            `json:"open_sessions"`
	HoursLogged    float64        `json:"hours_logged"`
	Records        []model.Record `json:"records"`
}

// DailyPresence counts active subjects and the sessions still open on date.
// An empty date means today.
func (e *Engine) DailyPresence(ctx context.Context, date string) (Presence, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = timecalc.FormatDate(e.now().In(e.loc))
	}
	if !timecalc.ValidDate(date) {
		return Presence{}, &attendance.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	subjects, err := e.repo.ListSubjects(ctx)
	if err != nil {
		return Presence{}, err
	}
	records, err := e.repo.ListRecords(ctx, "")
	if err != nil {
		return Presence{}, err
	}

	p := Presence{Date: date, Records: []model.Record{}}
	for _, s := range subjects {
		if s.Active {
			p.ActiveSubjects++
		}
	}
	var cents int64
	for _, r := range records {
		if r.Date != date {
			continue
		}
		p.Records = append(p.Records, r)
		if r.Open() {
			p.OpenSessions++
			continue
		}
		if h, ok, err := r.Hours(); err == nil && ok {
			cents += int64(math.Round(h * 100))
		}
	}
	p.HoursLogged = float64(cents) / 100
	return p, nil
}

// SubjectHours pairs a subject with its total.
type SubjectHours struct {
	Subject    model.Subject `json:"subject"`
	TotalHours float64       `json:"total_hours"`
}

// GroupTotal is one group's rollup.
type GroupTotal struct {
	TotalHours   float64 `json:"total_hours"`
	SubjectCount int     `json:"subject_count"`
}

// GroupReport ranks active subjects by hours and rolls them up per group.
type GroupReport struct {
	Ranked      []SubjectHours        `json:"ranked"`
	Groups      map[string]GroupTotal `json:"groups"`
	TotalHours  float64               `json:"total_hours"`
	Average     float64               `json:"average"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GroupKeyFunc assigns a subject to a group.
type GroupKeyFunc func(model.Subject) string

// ByProgram groups by program.
func ByProgram(s model.Subject) string { return s.Program }

// ByTerm groups by term.
func ByTerm(s model.Subject) string { return s.Term }

// ActiveTotals returns every active subject with its total, in stored order.
func (e *Engine) ActiveTotals(ctx context.Context) ([]SubjectHours, error) {
	subjects, err := e.repo.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	records, err := e.repo.ListRecords(ctx, "")
	if err != nil {
		return nil, err
	}
	out := []SubjectHours{}
	for _, s := range subjects {
		if !s.Active {
			continue
		}
		out = append(out, SubjectHours{Subject: s, TotalHours: e.sum(records, s.ID)})
	}
	return out, nil
}

// ReportByGroup builds the ranked report grouped by keyFn.
func (e *Engine) ReportByGroup(ctx context.Context, keyFn GroupKeyFunc) (GroupReport, error) {
	if keyFn == nil {
		keyFn = ByProgram
	}
	totals, err := e.ActiveTotals(ctx)
	if err != nil {
		return GroupReport{}, err
	}
	return buildGroupReport(totals, keyFn, e.now()), nil
}

func buildGroupReport(totals []SubjectHours, keyFn GroupKeyFunc, at time.Time) GroupReport {
	ranked := append([]SubjectHours(nil), totals...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.TotalHours != b.TotalHours {
			return a.TotalHours > b.TotalHours
		}
		if a.Subject.Name != b.Subject.Name {
			return a.Subject.Name < b.Subject.Name
		}
		return a.Subject.ID < b.Subject.ID
	})

	rep := GroupReport{Ranked: ranked, Groups: map[string]GroupTotal{}, GeneratedAt: at}
	var cents int64
	groupCents := map[string]int64{}
	for _, sh := range ranked {
		c := int64(math.Round(sh.TotalHours * 100))
		cents += c
		key := keyFn(sh.Subject)
		groupCents[key] += c
		g := rep.Groups[key]
		g.SubjectCount++
		rep.Groups[key] = g
	}
	for key, c := range groupCents {
		g := rep.Groups[key]
		g.TotalHours = float64(c) / 100
		rep.Groups[key] = g
	}
	rep.TotalHours = float64(cents) / 100
	if len(ranked) > 0 {
		rep.Average = timecalc.Round2(rep.TotalHours / float64(len(ranked)))
	}
	return rep
}

// History is a subject with its full record trail.
type History struct {
	Subject    model.Subject  `json:"subject"`
	Records    []model.Record `json:"records"`
	TotalHours float64        `json:"total_hours"`
}

// SubjectHistory returns the subject, its records and its total.
func (e *Engine) SubjectHistory(ctx context.Context, subjectID string) (History, error) {
	subj, err := e.repo.GetSubject(ctx, subjectID)
	if err != nil {
		return History{}, err
	}
	if subj == nil {
		return History{}, attendance.ErrSubjectNotFound
	}
	records, err := e.repo.ListRecords(ctx, subjectID)
	if err != nil {
		return History{}, err
	}
	return History{Subject: *subj, Records: records, TotalHours: e.sum(records, subjectID)}, nil
}
