package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vouch/internal/domain"
	"vouch/internal/repository"
)

const createReportsTable = `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	requested_amount TEXT NOT NULL,
	sufficient INTEGER NOT NULL,
	request_ids TEXT NOT NULL DEFAULT '[]',
	bank_names TEXT NOT NULL DEFAULT '[]',
	item_ref TEXT NOT NULL DEFAULT '',
	account_id TEXT NOT NULL DEFAULT '',
	requester_name TEXT NOT NULL DEFAULT '',
	account_label TEXT NOT NULL DEFAULT '',
	purpose TEXT NOT NULL DEFAULT '',
	artifact_location TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
`

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) repository.ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createReportsTable); err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	return nil
}

func (r *ReportRepository) Create(ctx context.Context, report *domain.Report) error {
	report.CreatedAt = time.Now().UTC()

	requestIDs, err := json.Marshal(emptyIfNil(report.RequestIDs))
	if err != nil {
		return fmt.Errorf("marshal request ids: %w", err)
	}
	bankNames, err := json.Marshal(emptyIfNil(report.BankNames))
	if err != nil {
		return fmt.Errorf("marshal bank names: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
INSERT INTO reports (id, user_id, requested_amount, sufficient, request_ids, bank_names,
	item_ref, account_id, requester_name, account_label, purpose, artifact_location, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.UserID,
		report.RequestedAmount.String(),
		report.Sufficient,
		string(requestIDs),
		string(bankNames),
		report.ItemRef,
		report.AccountID,
		report.RequesterName,
		report.AccountLabel,
		report.Purpose,
		report.ArtifactLocation,
		report.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	row := r.db.QueryRowContext(ctx, selectReport+` WHERE id = ?`, id)
	return scanReport(row)
}

func (r *ReportRepository) List(ctx context.Context, page, pageSize int) ([]domain.Report, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		selectReport+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports, err := collectReports(rows)
	return reports, total, err
}

func (r *ReportRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Report, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		selectReport+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports, err := collectReports(rows)
	return reports, total, err
}

const selectReport = `
SELECT id, user_id, requested_amount, sufficient, request_ids, bank_names, item_ref,
	account_id, requester_name, account_label, purpose, artifact_location, created_at
FROM reports`

func collectReports(rows *sql.Rows) ([]domain.Report, error) {
	var reports []domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

func scanReport(row interface {
	Scan(dest ...any) error
}) (*domain.Report, error) {
	var report domain.Report
	var amount, requestIDs, bankNames string
	if err := row.Scan(
		&report.ID,
		&report.UserID,
		&amount,
		&report.Sufficient,
		&requestIDs,
		&bankNames,
		&report.ItemRef,
		&report.AccountID,
		&report.RequesterName,
		&report.AccountLabel,
		&report.Purpose,
		&report.ArtifactLocation,
		&report.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse requested amount: %w", err)
	}
	report.RequestedAmount = parsed

	if err := json.Unmarshal([]byte(requestIDs), &report.RequestIDs); err != nil {
		return nil, fmt.Errorf("parse request ids: %w", err)
	}
	if err := json.Unmarshal([]byte(bankNames), &report.BankNames); err != nil {
		return nil, fmt.Errorf("parse bank names: %w", err)
	}
	return &report, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
