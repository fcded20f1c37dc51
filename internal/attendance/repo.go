package attendance

import (
	"context"

	"hourlog/internal/model"
	"hourlog/internal/store"
)

// Repository reads and writes ledger entities through a RecordStore.
type Repository struct {
	store *store.RecordStore
}

// NewRepository creates a repo.
func NewRepository(s *store.RecordStore) *Repository {
	return &Repository{store: s}
}

// Store returns the underlying record store.
func (r *Repository) Store() *store.RecordStore { return r.store }

// ListSubjects returns all subjects in stored order.
func (r *Repository) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := r.store.Load(ctx, store.Subjects)
	if err != nil {
		return nil, err
	}
	return model.Subjects(rows), nil
}

// GetSubject returns the subject with id, or nil when there is none.
func (r *Repository) GetSubject(ctx context.Context, id string) (*model.Subject, error) {
	subjects, err := r.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexSubject(subjects, id); i >= 0 {
		return &subjects[i], nil
	}
	return nil, nil
}

// ListRecords returns records in stored order, filtered by subject when
// subjectID is not empty.
func (r *Repository) ListRecords(ctx context.Context, subjectID string) ([]model.Record, error) {
	rows, err := r.store.Load(ctx, store.Records)
	if err != nil {
		return nil, err
	}
	records := model.Records(rows)
	if subjectID == "" {
		return records, nil
	}
	out := records[:0]
	for _, rec := range records {
		if rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Update runs fn under the store lock. Collections fn replaced through the
// batch are written back when it returns nil.
func (r *Repository) Update(ctx context.Context, fn func(b *Batch) error) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		b := &Batch{tx: tx}
		if err := fn(b); err != nil {
			return err
		}
		b.flush()
		return nil
	})
}

// Batch is the typed working set of one Update.
type Batch struct {
	tx *store.Tx

	subjects      []model.Subject
	subjectsReady bool
	subjectsDirty bool

	records      []model.Record
	recordsReady bool
	recordsDirty bool
}

// Subjects loads the subject collection once per batch.
func (b *Batch) Subjects() ([]model.Subject, error) {
	if !b.subjectsReady {
		rows, err := b.tx.Rows(store.Subjects)
		if err != nil {
			return nil, err
		}
		b.subjects = model.Subjects(rows)
		b.subjectsReady = true
	}
	return b.subjects, nil
}

// Records loads the record collection once per batch.
func (b *Batch) Records() ([]model.Record, error) {
	if !b.recordsReady {
		rows, err := b.tx.Rows(store.Records)
		if err != nil {
			return nil, err
		}
		b.records = model.Records(rows)
		b.recordsReady = true
	}
	return b.records, nil
}

// SetSubjects marks the subject collection for write-back.
func (b *Batch) SetSubjects(subjects []model.Subject) {
	b.subjects, b.subjectsReady, b.subjectsDirty = subjects, true, true
}

// SetRecords marks the record collection for write-back.
func (b *Batch) SetRecords(records []model.Record) {
	b.records, b.recordsReady, b.recordsDirty = records, true, true
}

func (b *Batch) flush() {
	if b.subjectsDirty {
		rows := make([]store.Row, len(b.subjects))
		for i, s := range b.subjects {
			rows[i] = s.Row()
		}
		b.tx.Replace(store.Subjects, rows)
	}
	if b.recordsDirty {
		rows := make([]store.Row, len(b.records))
		for i, rec := range b.records {
			rows[i] = rec.Row()
		}
		b.tx.Replace(store.Records, rows)
	}
}

func indexSubject(subjects []model.Subject, id string) int {
	for i, s := range subjects {
		if s.ID == id {
			return i
		}
	}
	return -1
}
