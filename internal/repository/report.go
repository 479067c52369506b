package repository

import (
	"context"

	"vouch/internal/domain"
)

// ReportRepository defines persistence operations for Report entities.
// Reports are immutable: there is deliberately no update or delete method.
type ReportRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, report *domain.Report) error
	GetByID(ctx context.Context, id string) (*domain.Report, error)
	List(ctx context.Context, page, pageSize int) ([]domain.Report, int, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Report, int, error)
}
