package google

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService reads campaign rows and writes per-row statuses back.
type SheetsService struct {
	service *sheets.Service
	retry   RetryPolicy
	logger  *zerolog.Logger
}

func NewSheetsService(ctx context.Context, creds *Credentials, logger *zerolog.Logger) (*SheetsService, error) {
	client, err := creds.Client(ctx, "", sheets.SpreadsheetsScope)
	if err != nil {
		return nil, err
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{
		service: srv,
		retry:   DefaultRetryPolicy,
		logger:  logger,
	}, nil
}

// ReadSheet returns every row of the named sheet, header row included.
// Cell values come back as strings regardless of the cell type.
func (s *SheetsService) ReadSheet(ctx context.Context, spreadsheetID, sheetName string) ([][]string, error) {
	var resp *sheets.ValueRange
	err := withRetry(ctx, s.logger, s.retry, "sheets.read", func() error {
		var err error
		resp, err = s.service.Spreadsheets.Values.Get(spreadsheetID, sheetName).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, fmt.Sprintf("%v", cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCell writes one value. Row and column are 1-based, matching how
// sheet coordinates read in the UI.
func (s *SheetsService) WriteCell(ctx context.Context, spreadsheetID, sheetName string, row, col int, value string) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("cell coordinates are 1-based, got row=%d col=%d", row, col)
	}

	rangeData := fmt.Sprintf("%s!%s%d", sheetName, columnLetter(col), row)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}

	err := withRetry(ctx, s.logger, s.retry, "sheets.write_cell", func() error {
		_, err := s.service.Spreadsheets.Values.Update(spreadsheetID, rangeData, valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write cell %s: %w", rangeData, err)
	}
	return nil
}

// columnLetter converts a 1-based column index to A1 letters (1 -> A,
// 27 -> AA).
func columnLetter(col int) string {
	var letters []byte
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return string(letters)
}
