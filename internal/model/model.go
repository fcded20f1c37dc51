// Package model holds the ledger entities and their table encodings.
package model

import (
	"hourlog/internal/store"
	"hourlog/internal/timecalc"
)

// Origin tells how a record entered the ledger.
type Origin string

const (
	OriginAutomatic Origin = "automatic"
	OriginManual    Origin = "manual"
)

// Stored spellings of Origin.
const (
	storedAutomatic = "automatico"
	storedManual    = "manual"
)

// Stored returns the spelling used in the records table.
func (o Origin) Stored() string {
	if o == OriginManual {
		return storedManual
	}
	return storedAutomatic
}

func parseOrigin(s string) Origin {
	if s == storedManual {
		return OriginManual
	}
	return OriginAutomatic
}

// Subject is a tracked person accruing hours.
type Subject struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Program       string `json:"program"`
	Term          string `json:"term"`
	AccountNumber string `json:"account_number"`
	Occupation    string `json:"occupation"`
	Contact       string `json:"contact"`
	Active        bool   `json:"active"`
}

// SubjectFromRow decodes a subjects table row.
func SubjectFromRow(r store.Row) Subject {
	return Subject{
		ID:            r["id_alumno"],
		Name:          r["nombre"],
		Program:       r["carrera"],
		Term:          r["semestre"],
		AccountNumber: r["num_cuenta"],
		Occupation:    r["ocupacion"],
		Contact:       r["contacto"],
		Active:        r["activo"] == "1",
	}
}

// Row encodes s for the subjects table.
func (s Subject) Row() store.Row {
	active := "0"
	if s.Active {
		active = "1"
	}
	return store.Row{
		"id_alumno":  s.ID,
		"nombre":     s.Name,
		"carrera":    s.Program,
		"semestre":   s.Term,
		"num_cuenta": s.AccountNumber,
		"ocupacion":  s.Occupation,
		"contacto":   s.Contact,
		"activo":     active,
	}
}

// Record is one attendance session. DurationHours stays a string so that
// malformed legacy values survive a load/save cycle untouched.
type Record struct {
	ID            string `json:"id"`
	SubjectID     string `json:"subject_id"`
	Date          string `json:"date"`
	ClockIn       string `json:"clock_in"`
	ClockOut      string `json:"clock_out"`
	DurationHours string `json:"duration_hours"`
	Notes         string `json:"notes"`
	Origin        Origin `json:"origin"`
}

// Open reports whether the session has no clock-out yet.
func (r Record) Open() bool { return r.ClockOut == "" }

// Hours parses DurationHours; ok is false when the field is empty.
func (r Record) Hours() (hours float64, ok bool, err error) {
	return timecalc.ParseHours(r.DurationHours)
}

// RecordFromRow decodes a records table row.
func RecordFromRow(r store.Row) Record {
	return Record{
		ID:            r["id_registro"],
		SubjectID:     r["id_alumno"],
		Date:          r["fecha"],
		ClockIn:       r["hora_entrada"],
		ClockOut:      r["hora_salida"],
		DurationHours: r["horas_totales"],
		Notes:         r["observaciones"],
		Origin:        parseOrigin(r["tipo_registro"]),
	}
}

// Row encodes r for the records table.
func (r Record) Row() store.Row {
	return store.Row{
		"id_registro":   r.ID,
		"id_alumno":     r.SubjectID,
		"fecha":         r.Date,
		"hora_entrada":  r.ClockIn,
		"hora_salida":   r.ClockOut,
		"horas_totales": r.DurationHours,
		"observaciones": r.Notes,
		"tipo_registro": r.Origin.Stored(),
	}
}

// Operator is a back-office user allowed to drive the ledger.
type Operator struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Name         string `json:"name"`
}

// OperatorFromRow decodes a users table row.
func OperatorFromRow(r store.Row) Operator {
	return Operator{Username: r["username"], PasswordHash: r["password"], Name: r["nombre"]}
}

// Row encodes o for the users table.
func (o Operator) Row() store.Row {
	return store.Row{"username": o.Username, "password": o.PasswordHash, "nombre": o.Name}
}

// Subjects decodes every row.
func Subjects(rows []store.Row) []Subject {
	out := make([]Subject, len(rows))
	for i, r := range rows {
		out[i] = SubjectFromRow(r)
	}
	return out
}

// Records decodes every row.
func Records(rows []store.Row) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = RecordFromRow(r)
	}
	return out
}
