// Package store persists the ledger tables. Every backend exposes the same
// two primitives, load a whole table and atomically replace a whole table;
// RecordStore layers the locking discipline on top so that read-modify-write
// cycles never lose updates.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrIO marks persistence failures. Callers treat it as fatal for the request.
var ErrIO = errors.New("storage unavailable")

// IOError wraps a backend failure with the operation and table involved.
type IOError struct {
	Op    string
	Table string
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrIO) match any IOError.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// Row is one table row keyed by column name.
type Row map[string]string

// Clone returns a copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table names a persisted collection and its ordered columns.
type Table struct {
	Name    string
	File    string
	Columns []string
}

var (
	Subjects = Table{
		Name:    "subjects",
		File:    "alumnos.csv",
		Columns: []string{"id_alumno", "nombre", "carrera", "semestre", "num_cuenta", "ocupacion", "contacto", "activo"},
	}
	Records = Table{
		Name:    "records",
		File:    "registros.csv",
		Columns: []string{"id_registro", "id_alumno", "fecha", "hora_entrada", "hora_salida", "horas_totales", "observaciones", "tipo_registro"},
	}
	Users = Table{
		Name:    "users",
		File:    "usuarios.csv",
		Columns: []string{"username", "password", "nombre"},
	}
)

// Tables lists every table in save order.
var Tables = []Table{Subjects, Records, Users}

// Backend is the persistence contract consumed by the ledger.
type Backend interface {
	// Ensure creates the table if it does not exist yet.
	Ensure(ctx context.Context, t Table) error
	// LoadAll returns the table rows in stored order.
	LoadAll(ctx context.Context, t Table) ([]Row, error)
	// SaveAll atomically replaces the table contents.
	SaveAll(ctx context.Context, t Table, rows []Row) error
	Close() error
}

// Locker serializes read-modify-write cycles across processes.
type Locker interface {
	Lock(ctx context.Context) (unlock func(context.Context) error, err error)
}

// Observer receives timings for every backend call.
type Observer interface {
	ObserveStorage(op, table string, took time.Duration, err error)
}

// RecordStore guards a Backend with a process-wide lock and an optional
// distributed Locker.
type RecordStore struct {
	backend  Backend
	locker   Locker
	observer Observer
	mu       sync.RWMutex
}

// Option configures a RecordStore.
type Option func(*RecordStore)

// WithLocker adds a cross-process lock held for the whole of Update.
func WithLocker(l Locker) Option {
	return func(s *RecordStore) { s.locker = l }
}

// WithObserver reports backend call timings.
func WithObserver(o Observer) Option {
	return func(s *RecordStore) { s.observer = o }
}

// New wraps a backend.
func New(b Backend, opts ...Option) *RecordStore {
	s := &RecordStore{backend: b}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates every table.
func (s *RecordStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range Tables {
		if err := s.call(ctx, "ensure", t, func() error { return s.backend.Ensure(ctx, t) }); err != nil {
			return err
		}
	}
	return nil
}

// Load returns a snapshot of the table. Rows are copies and may be modified.
func (s *RecordStore) Load(ctx context.Context, t Table) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx, t)
}

// Update runs fn with exclusive access to the tables. Tables that fn replaced
// are written back after fn returns nil; if fn fails nothing is written.
func (s *RecordStore) Update(ctx context.Context, fn func(tx *Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		unlock, lerr := s.locker.Lock(ctx)
		if lerr != nil {
			return &IOError{Op: "lock", Table: "*", Err: lerr}
		}
		defer func() {
			if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil && err == nil {
				err = &IOError{Op: "unlock", Table: "*", Err: uerr}
			}
		}()
	}

	tx := &Tx{ctx: ctx, store: s, snapshots: make(map[string][]Row), dirty: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	for _, t := range Tables {
		if !tx.dirty[t.Name] {
			continue
		}
		rows := tx.snapshots[t.Name]
		if err := s.call(ctx, "save", t, func() error { return s.backend.SaveAll(ctx, t, rows) }); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the backend.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

func (s *RecordStore) load(ctx context.Context, t Table) ([]Row, error) {
	var rows []Row
	err := s.call(ctx, "load", t, func() error {
		var lerr error
		rows, lerr = s.backend.LoadAll(ctx, t)
		return lerr
	})
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *RecordStore) call(ctx context.Context, op string, t Table, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &IOError{Op: op, Table: t.Name, Err: err}
	}
	start := time.Now()
	err := fn()
	if s.observer != nil {
		s.observer.ObserveStorage(op, t.Name, time.Since(start), err)
	}
	if err != nil {
		return &IOError{Op: op, Table: t.Name, Err: err}
	}
	return nil
}

// Tx is the working set of one Update call.
type Tx struct {
	ctx       context.Context
	store     *RecordStore
	snapshots map[string][]Row
	dirty     map[string]bool
}

// Rows returns the working copy of the table, loading it on first use.
func (tx *Tx) Rows(t Table) ([]Row, error) {
	if rows, ok := tx.snapshots[t.Name]; ok {
		return rows, nil
	}
	rows, err := tx.store.load(tx.ctx, t)
	if err != nil {
		return nil, err
	}
	tx.snapshots[t.Name] = rows
	return rows, nil
}

// Replace sets the table contents to be written when Update returns.
func (tx *Tx) Replace(t Table, rows []Row) {
	tx.snapshots[t.Name] = rows
	tx.dirty[t.Name] = true
}
