package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"postovik/internal/config"
	"postovik/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Reporter writes an Excel report for every finished batch so the outcome
// of a run survives outside the spreadsheet's status column.
type Reporter struct {
	config config.ExportConfig
	logger *zerolog.Logger
}

func NewReporter(cfg config.ExportConfig, logger *zerolog.Logger) *Reporter {
	return &Reporter{config: cfg, logger: logger}
}

// Write saves one batch summary as an .xlsx file and returns its path.
func (r *Reporter) Write(summary *models.BatchSummary) (string, error) {
	if !r.config.Enabled {
		return "", nil
	}

	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(r.config.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Batch"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	now := time.Now()
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Batch report: %s", now.Format("02.01.2006 15:04")))
	_ = f.MergeCell(sheetName, "A1", "D1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"Row", "Status", "Artifact", "Detail"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	row := 3
	for _, outcome := range summary.Outcomes {
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), outcome.RowIndex)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), outcome.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), outcome.ArtifactID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), outcome.Detail)

		if styleID, err := r.statusStyle(f, outcome.Status); err == nil {
			cell := fmt.Sprintf("B%d", row)
			_ = f.SetCellStyle(sheetName, cell, cell, styleID)
		}
		row++
	}

	row++
	_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("Processed: %d, skipped: %d", summary.Processed, summary.Skipped))
	row++
	_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), summary.Message)

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "B", 20)
	_ = f.SetColWidth(sheetName, "C", "C", 40)
	_ = f.SetColWidth(sheetName, "D", "D", 50)

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("batch_%s.xlsx", now.Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(r.config.Path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	r.logger.Info().Str("file_path", filePath).Msg("Batch report created")
	return filePath, nil
}

func (r *Reporter) statusStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.RowStatusSent:
		color = "#C6EFCE"
	case models.RowStatusRenderFailed:
		color = "#FFC7CE"
	case models.RowStatusSkipped, models.RowStatusNoContent:
		color = "#FFEB9C"
	default:
		color = "#FFFFFF"
	}

	return f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})
}
