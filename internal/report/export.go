package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"hourlog/internal/model"
	"hourlog/internal/timecalc"
)

var (
	recordsHeader = []string{"Fecha", "Alumno", "Carrera", "No. Cuenta", "Entrada", "Salida", "Horas", "Observaciones", "Tipo"}
	summaryHeader = []string{"Alumno", "Carrera", "Semestre", "No. Cuenta", "Ocupación", "Contacto", "Horas Totales", "Estado"}
)

const summarySheet = "Resumen"

// WriteRecordsCSV writes every record joined with its subject. Records whose
// subject is unknown keep empty subject columns.
func WriteRecordsCSV(w io.Writer, subjects []model.Subject, records []model.Record) error {
	byID := make(map[string]model.Subject, len(subjects))
	for _, s := range subjects {
		byID[s.ID] = s
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(recordsHeader); err != nil {
		return err
	}
	for _, r := range records {
		s := byID[r.SubjectID]
		if err := cw.Write([]string{
			r.Date, s.Name, s.Program, s.AccountNumber,
			r.ClockIn, r.ClockOut, r.DurationHours, r.Notes, r.Origin.Stored(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func summaryRow(sh SubjectHours) []string {
	s := sh.Subject
	return []string{s.Name, s.Program, s.Term, s.AccountNumber, s.Occupation, s.Contact, timecalc.FormatHours(sh.TotalHours), "Activo"}
}

// WriteSummaryCSV writes one line per active subject with its total.
func WriteSummaryCSV(w io.Writer, totals []SubjectHours) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for _, sh := range totals {
		if err := cw.Write(summaryRow(sh)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryXLSX writes the summary as a single-sheet workbook. Hours are
// numeric cells so the sheet can be summed.
func WriteSummaryXLSX(w io.Writer, totals []SubjectHours) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(summarySheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	header := make([]interface{}, len(summaryHeader))
	for i, h := range summaryHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return err
	}
	for i, sh := range totals {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		s := sh.Subject
		row := []interface{}{s.Name, s.Program, s.Term, s.AccountNumber, s.Occupation, s.Contact, sh.TotalHours, "Activo"}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ExportRecordsCSV streams the joined records export.
func (e *Engine) ExportRecordsCSV(ctx context.Context, w io.Writer) error {
	subjects, err := e.repo.ListSubjects(ctx)
	if err != nil {
		return err
	}
	records, err := e.repo.ListRecords(ctx, "")
	if err != nil {
		return err
	}
	return WriteRecordsCSV(w, subjects, records)
}

// ExportSummaryCSV streams the active-subject summary as CSV.
func (e *Engine) ExportSummaryCSV(ctx context.Context, w io.Writer) error {
	totals, err := e.ActiveTotals(ctx)
	if err != nil {
		return err
	}
	return WriteSummaryCSV(w, totals)
}

// ExportSummaryXLSX streams the active-subject summary as a workbook.
func (e *Engine) ExportSummaryXLSX(ctx context.Context, w io.Writer) error {
	totals, err := e.ActiveTotals(ctx)
	if err != nil {
		return err
	}
	return WriteSummaryXLSX(w, totals)
}
