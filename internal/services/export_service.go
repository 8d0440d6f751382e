package services

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"parts-tracker/internal/entities"
	"parts-tracker/pkg/types"
	"parts-tracker/pkg/utils"
)

type ExportServiceInterface interface {
	ExportXLSX(ctx context.Context, filter types.PartFilter, w io.Writer) (int, error)
}

type ExportService struct {
	parts  PartServiceInterface
	logger *zap.Logger
}

func NewExportService(parts PartServiceInterface, logger *zap.Logger) *ExportService {
	return &ExportService{parts: parts, logger: logger}
}

const exportSheet = "Parts"

var exportHeaders = []interface{}{
	"ID", "Part ID", "Type", "Name", "Subsystem", "Material", "Thickness", "Amount", "Completed Amount",
	"Category", "Status", "Assigned", "Claimed", "Completed", "File", "Model", "Notes", "Onshape URL",
}

func exportRow(p entities.Part) []interface{} {
	const dateFmt = "2006-01-02 15:04"
	var claimed, completed, completedAmount string
	if p.ClaimedDate != nil {
		claimed = p.ClaimedDate.Format(dateFmt)
	}
	if p.CompletedAt != nil {
		completed = p.CompletedAt.Format(dateFmt)
	}
	if p.CompletedAmount != nil {
		completedAmount = fmt.Sprint(*p.CompletedAmount)
	}
	return []interface{}{
		p.ID, p.PartID, string(p.Type), p.Name, p.Subsystem, p.Material, utils.SafeDeref(p.MaterialThickness),
		p.Amount, completedAmount, string(p.Category), string(p.Status), utils.SafeDeref(p.Assigned),
		claimed, completed, utils.SafeDeref(p.File), string(p.ConversionStatus), p.Notes, utils.SafeDeref(p.OnshapeURL),
	}
}

// ExportXLSX writes every part matching filter, ignoring its paging, and
// returns the number of rows written.
func (s *ExportService) ExportXLSX(ctx context.Context, filter types.PartFilter, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return 0, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, style); err != nil {
		return 0, err
	}

	filter.Limit, filter.Offset = types.MaxLimit, 0
	rows := 0
	for {
		parts, page, err := s.parts.ListParts(ctx, filter)
		if err != nil {
			return 0, err
		}
		for _, p := range parts {
			cell, _ := excelize.CoordinatesToCellName(1, rows+2)
			row := exportRow(p)
			if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
				return 0, err
			}
			rows++
		}
		filter.Offset += len(parts)
		if len(parts) == 0 || uint64(filter.Offset) >= page.TotalCount {
			break
		}
	}

	_ = f.SetColWidth(exportSheet, "B", "F", 18)
	_ = f.SetColWidth(exportSheet, "Q", "R", 40)

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write xlsx: %w", err)
	}
	s.logger.Info("parts exported", zap.Int("rows", rows))
	return rows, nil
}
