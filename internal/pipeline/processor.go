package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"postovik/internal/domain"
	"postovik/internal/metrics"
	"postovik/internal/models"

	"github.com/rs/zerolog"
)

// ProcessInput configures one row-processor batch. MaxRows bounds how many
// qualifying rows get rendered; the folder-watch trigger sets it to 1.
type ProcessInput struct {
	SpreadsheetID     string
	SheetName         string
	TemplateID        string
	OutputFolderID    string
	Recipient         string
	Subject           string
	ColumnMappings    map[string]string
	ProcessFlagColumn string
	ProcessFlagValue  string
	StatusColumn      string
	ImageURL          string
	MaxRows           int
}

// Processor walks spreadsheet rows, renders one artifact per qualifying
// row and delivers everything rendered in a single email at the end.
// Row statuses are written back to the sheet as the batch advances, so a
// reader polling the sheet sees progress row by row.
type Processor struct {
	reader   domain.SheetReader
	writer   domain.SheetWriter
	renderer domain.TemplateRenderer
	sender   domain.EmailSender
	reporter *Reporter
	logger   *zerolog.Logger
}

func NewProcessor(reader domain.SheetReader, writer domain.SheetWriter, renderer domain.TemplateRenderer, sender domain.EmailSender, logger *zerolog.Logger) *Processor {
	return &Processor{
		reader:   reader,
		writer:   writer,
		renderer: renderer,
		sender:   sender,
		logger:   logger,
	}
}

// AttachReporter enables the per-batch xlsx report.
func (p *Processor) AttachReporter(r *Reporter) {
	p.reporter = r
}

func (p *Processor) Process(ctx context.Context, in ProcessInput) (*models.BatchSummary, error) {
	rows, err := p.reader.ReadSheet(ctx, in.SpreadsheetID, in.SheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(rows) <= 1 {
		return &models.BatchSummary{Success: false, Message: "No data found in the spreadsheet."}, nil
	}

	headers := rows[0]

	mappingIdx := p.resolveMappings(headers, in.ColumnMappings)
	if len(mappingIdx) == 0 {
		return &models.BatchSummary{Success: false, Message: "No valid column mappings found."}, nil
	}

	flagIdx := -1
	if in.ProcessFlagColumn != "" {
		flagIdx = findColumnIndex(headers, in.ProcessFlagColumn)
		if flagIdx == -1 {
			p.logger.Warn().Str("column", in.ProcessFlagColumn).Msg("process flag column not found, processing all rows")
		}
	}

	statusIdx := -1
	if in.StatusColumn != "" {
		statusIdx = findColumnIndex(headers, in.StatusColumn)
		if statusIdx == -1 {
			// Колонки нет, дописываем её в конец шапки
			statusIdx = len(headers)
			p.writeStatus(ctx, in, 1, statusIdx, in.StatusColumn)
		}
	}

	summary := &models.BatchSummary{}
	attempted := 0

	for i, row := range rows[1:] {
		sheetRow := i + 2 // data starts on sheet row 2

		if in.MaxRows > 0 && attempted >= in.MaxRows {
			break
		}

		outcome := models.RowOutcome{RowIndex: sheetRow, MatchedFlag: true}

		if flagIdx != -1 {
			flagValue := cellAt(row, flagIdx)
			if !flagMatches(flagValue, in.ProcessFlagValue) {
				outcome.MatchedFlag = false
				outcome.Status = models.RowStatusSkipped
				summary.Skipped++
				summary.Outcomes = append(summary.Outcomes, outcome)
				p.writeStatus(ctx, in, sheetRow, statusIdx, models.RowStatusSkipped)
				continue
			}
		}

		substitutions := map[string]string{}
		for placeholder, colIdx := range mappingIdx {
			if value := strings.TrimSpace(cellAt(row, colIdx)); value != "" {
				substitutions[placeholder] = cellAt(row, colIdx)
			}
		}
		if len(substitutions) == 0 {
			outcome.Status = models.RowStatusNoContent
			summary.Skipped++
			summary.Outcomes = append(summary.Outcomes, outcome)
			p.writeStatus(ctx, in, sheetRow, statusIdx, models.RowStatusNoContent)
			continue
		}

		p.writeStatus(ctx, in, sheetRow, statusIdx, models.RowStatusProcessing)
		attempted++

		artifactID, err := p.renderer.Render(ctx, in.TemplateID, substitutions, in.ImageURL, in.OutputFolderID)
		if err != nil {
			if isFatal(err) {
				return nil, err
			}
			p.logger.Error().Err(err).Int("row", sheetRow).Msg("row render failed")
			outcome.Status = models.RowStatusRenderFailed
			outcome.Detail = err.Error()
			summary.Skipped++
			summary.Outcomes = append(summary.Outcomes, outcome)
			p.writeStatus(ctx, in, sheetRow, statusIdx, models.RowStatusRenderFailed)
			continue
		}

		outcome.Status = models.RowStatusSent
		outcome.ArtifactID = artifactID
		summary.Processed++
		summary.ArtifactIDs = append(summary.ArtifactIDs, artifactID)
		summary.Outcomes = append(summary.Outcomes, outcome)
		p.writeStatus(ctx, in, sheetRow, statusIdx, models.RowStatusSent)
	}

	metrics.AddRowsProcessed("processed", summary.Processed)
	metrics.AddRowsProcessed("skipped", summary.Skipped)

	summary, err = p.deliver(ctx, in, summary)
	if err != nil {
		return nil, err
	}

	// A failed report never fails the batch, the artifacts and the email
	// are already out.
	if p.reporter != nil {
		if _, repErr := p.reporter.Write(summary); repErr != nil {
			p.logger.Error().Err(repErr).Msg("batch report failed")
		}
	}
	return summary, nil
}

// deliver sends one email carrying every rendered artifact. A failed send
// keeps the batch successful: the artifacts exist, and the message says
// they were generated but not delivered.
func (p *Processor) deliver(ctx context.Context, in ProcessInput, summary *models.BatchSummary) (*models.BatchSummary, error) {
	if len(summary.ArtifactIDs) == 0 {
		summary.Success = false
		summary.Message = fmt.Sprintf("No posts were generated. Skipped %d rows. Check your mappings and flag conditions.", summary.Skipped)
		return summary, nil
	}

	subject := in.Subject
	if subject == "" {
		subject = "Your generated posts"
	}

	deliveryID, err := p.sender.Send(ctx, models.OutgoingEmail{
		To:          in.Recipient,
		Subject:     subject,
		Body:        fmt.Sprintf("Generated %d posts.", len(summary.ArtifactIDs)),
		Attachments: summary.ArtifactIDs,
	})
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		p.logger.Error().Err(err).Str("to", in.Recipient).Msg("batch delivery failed")
		summary.Success = true
		summary.Delivered = false
		summary.Message = fmt.Sprintf("Generated %d posts but FAILED to send email to %s. Skipped %d rows.",
			len(summary.ArtifactIDs), in.Recipient, summary.Skipped)
		return summary, nil
	}

	summary.Success = true
	summary.Delivered = true
	summary.DeliveryID = deliveryID
	summary.Message = fmt.Sprintf("Generated %d posts and sent to %s. Skipped %d rows.",
		len(summary.ArtifactIDs), in.Recipient, summary.Skipped)
	return summary, nil
}

func (p *Processor) resolveMappings(headers []string, mappings map[string]string) map[string]int {
	resolved := make(map[string]int)
	for placeholder, columnName := range mappings {
		idx := findColumnIndex(headers, columnName)
		if idx == -1 {
			p.logger.Warn().Str("column", columnName).Str("placeholder", placeholder).Msg("mapped column not found")
			continue
		}
		resolved[placeholder] = idx
	}
	return resolved
}

// writeStatus is best-effort: a failed sheet write is logged and the batch
// continues, it never aborts row processing.
func (p *Processor) writeStatus(ctx context.Context, in ProcessInput, row, statusIdx int, value string) {
	if statusIdx == -1 {
		return
	}
	if err := p.writer.WriteCell(ctx, in.SpreadsheetID, in.SheetName, row, statusIdx+1, value); err != nil {
		p.logger.Error().Err(err).Int("row", row).Str("value", value).Msg("failed to write row status")
	}
}

// findColumnIndex matches a column name against headers case-insensitively
// by substring; the lowest index containing the name wins.
func findColumnIndex(headers []string, columnName string) int {
	needle := strings.ToLower(columnName)
	for i, header := range headers {
		if strings.Contains(strings.ToLower(header), needle) {
			return i
		}
	}
	return -1
}

// flagMatches compares trimmed, case-folded flag values so " Yes " matches
// "yes".
func flagMatches(cellValue, flagValue string) bool {
	return strings.EqualFold(strings.TrimSpace(cellValue), strings.TrimSpace(flagValue))
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// isFatal reports errors that must abort the batch instead of skipping the
// row: an expired credential will fail every remaining row the same way.
func isFatal(err error) bool {
	return errors.Is(err, models.ErrAuthExpired)
}
