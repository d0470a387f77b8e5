// Package google exports archived months to a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"dailybudget/internal/core"
	"dailybudget/internal/log"
	ports "dailybudget/internal/sheets"
)

var _ ports.HistoryWriter = (*Client)(nil)

type Config struct {
	SpreadsheetID string
	SheetName     string
	// One of these must be set; inline JSON wins.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger
}

// New creates a client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		return nil, errors.New("missing sheet name")
	}

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger := slog.Default().With(log.FieldComponent, log.ComponentSheets)
	logger.InfoContext(ctx, "Google Sheets history export ready",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", cfg.SheetName)

	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: cfg.SheetName, logger: logger}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// HasMonth reads the period column.
func (c *Client) HasMonth(ctx context.Context, p core.Period) (bool, error) {
	rng := fmt.Sprintf("%s!A:A", quoteSheet(c.sheetName))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rng, err)
	}
	return containsPeriod(resp.Values, p), nil
}

// AppendMonth appends one row per category below the existing data. The
// header is written first when the sheet is empty.
func (c *Client) AppendMonth(ctx context.Context, h core.MonthHistory) error {
	rows := historyRows(h)

	rng := fmt.Sprintf("%s!A1:I1", quoteSheet(c.sheetName))
	head, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(head.Values) == 0 {
		rows = append([][]interface{}{Header}, rows...)
	}

	vr := &gsheet.ValueRange{Values: rows}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A:I", quoteSheet(c.sheetName)), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append history rows: %w", err)
	}

	c.logger.InfoContext(ctx, "Exported archived month to sheet",
		log.FieldPeriod, h.ID.String(),
		log.FieldCount, len(rows),
		"sheet", c.sheetName)
	return nil
}
