package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/emsops/emsops/internal/platform/telemetry"
)

// ExportLimit caps the number of reports written to one spreadsheet.
const ExportLimit = 5000

const exportSheet = "Transport Reports"

var exportHeader = []interface{}{
	"Report ID", "Service Date", "Status", "Completion %", "Responsible Staff",
	"Ambulance", "Driver", "Shift", "Patient", "Patient Document", "Completed At", "Updated At",
}

// Export renders the reports matching f as an xlsx workbook.
func (s *Service) Export(ctx context.Context, f Filter) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "transport.Export")
	defer span.End()

	rows, err := s.repos.Reports.ExportRows(ctx, f, ExportLimit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	out, err := renderWorkbook(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("render transport report export: %w", err)
	}
	s.logger.Info().Int("rows", len(rows)).Msg("transport reports exported")
	return out, nil
}

func renderWorkbook(rows []ExportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "A", "A", 38); err != nil {
		return nil, err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			r.ID.String(),
			dateCell(r.ServiceDate),
			string(r.Status),
			r.CompletionPercentage,
			r.ResponsibleStaffID.String(),
			uuidCell(r.AmbulanceID),
			uuidCell(r.DriverID),
			uuidCell(r.ShiftID),
			stringCell(r.PatientName),
			stringCell(r.PatientDocument),
			timeCell(r.CompletedAt),
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stringCell(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func uuidCell(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
