package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"vouch/internal/bank"
	"vouch/internal/domain"
	"vouch/internal/repository"
	"vouch/internal/storage"
	"vouch/internal/vault"
)

const (
	artifactPollDelay    = 3 * time.Second
	artifactPollAttempts = 20
	artifactDaysCovered  = 60
)

// GenerateInput is a sufficiency-report request.
type GenerateInput struct {
	Amount             decimal.Decimal
	ItemID             string
	AccountID          string
	RequesterName      string
	AccountLabel       string
	Purpose            string
	IncludeAssetReport bool
}

// GenerateResult pairs the persisted report with the live aggregate snapshot.
type GenerateResult struct {
	Report    *domain.Report
	Aggregate *Aggregate
}

// ReportPage is one page of a report listing.
type ReportPage struct {
	Reports    []domain.Report
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// ReportService generates immutable sufficiency reports and gates access to
// stored ones.
type ReportService interface {
	Generate(ctx context.Context, requesterID string, input GenerateInput) (*GenerateResult, error)
	Get(ctx context.Context, requesterID, reportID string) (*domain.Report, error)
	List(ctx context.Context, requesterID string, page, pageSize int) (*ReportPage, error)
	ArtifactURL(ctx context.Context, requesterID, reportID string) (string, error)
}

type reportService struct {
	users     repository.UserRepository
	items     repository.ItemRepository
	reports   repository.ReportRepository
	balances  BalanceService
	vault     *vault.Vault
	provider  bank.Client
	artifacts storage.Service
	logger    *logrus.Logger

	pollDelay    time.Duration
	pollAttempts int
}

func NewReportService(
	users repository.UserRepository,
	items repository.ItemRepository,
	reports repository.ReportRepository,
	balances BalanceService,
	v *vault.Vault,
	provider bank.Client,
	artifacts storage.Service,
	logger *logrus.Logger,
) ReportService {
	return &reportService{
		users:        users,
		items:        items,
		reports:      reports,
		balances:     balances,
		vault:        v,
		provider:     provider,
		artifacts:    artifacts,
		logger:       logger,
		pollDelay:    artifactPollDelay,
		pollAttempts: artifactPollAttempts,
	}
}

func (s *reportService) Generate(ctx context.Context, requesterID string, input GenerateInput) (*GenerateResult, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: a valid positive amount is required", domain.ErrValidation)
	}
	if input.AccountID != "" && strings.TrimSpace(input.ItemID) == "" {
		return nil, fmt.Errorf("%w: item id is required when targeting an account", domain.ErrValidation)
	}

	var (
		item *domain.LinkedItem
		agg  *Aggregate
		err  error
	)
	if strings.TrimSpace(input.ItemID) == "" {
		// Whole-user scope: per-item failures are contained, the remaining
		// items still produce a usable aggregate.
		agg, err = s.balances.AggregateUser(ctx, requesterID)
	} else {
		item, err = s.items.GetByItemID(ctx, input.ItemID)
		if err != nil {
			return nil, err
		}
		if item.UserID != requesterID {
			// Deliberately indistinguishable from an unknown item.
			return nil, fmt.Errorf("item %s: %w", input.ItemID, domain.ErrNotFound)
		}
		agg, err = s.balances.AggregateItem(ctx, item, input.AccountID)
	}
	if err != nil {
		return nil, err
	}

	sufficient := agg.TotalAvailable.Cmp(input.Amount) >= 0

	report := &domain.Report{
		ID:              uuid.NewString(),
		UserID:          requesterID,
		RequestedAmount: input.Amount,
		Sufficient:      sufficient,
		RequestIDs:      agg.RequestIDs,
		BankNames:       agg.BankNames,
		AccountID:       input.AccountID,
		RequesterName:   strings.TrimSpace(input.RequesterName),
		AccountLabel:    strings.TrimSpace(input.AccountLabel),
		Purpose:         strings.TrimSpace(input.Purpose),
	}
	if item != nil {
		report.ItemRef = item.ID
	}

	if input.IncludeAssetReport {
		if item == nil {
			return nil, fmt.Errorf("%w: item id is required for a long-form report", domain.ErrValidation)
		}
		location, err := s.fetchArtifact(ctx, item, report.ID)
		if err != nil {
			return nil, err
		}
		report.ArtifactLocation = location
	}

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}

	return &GenerateResult{Report: report, Aggregate: agg}, nil
}

// fetchArtifact requests the long-form report job and polls it to completion
// under a fixed delay and a hard attempt ceiling. Exhaustion is a timeout,
// distinct from provider business errors.
func (s *reportService) fetchArtifact(ctx context.Context, item *domain.LinkedItem, reportID string) (string, error) {
	accessToken, err := s.vault.Open(item.SealedCredential)
	if err != nil {
		return "", err
	}

	job, err := s.provider.CreateAssetReport(ctx, accessToken, artifactDaysCovered)
	if err != nil {
		return "", fmt.Errorf("create asset report: %w", err)
	}

	for attempt := 1; attempt <= s.pollAttempts; attempt++ {
		artifact, err := s.provider.GetAssetReport(ctx, job.AssetReportToken)
		if err == nil {
			return s.storeArtifact(ctx, reportID, artifact.Body)
		}
		if !bank.IsCode(err, bank.CodeProductNotReady) {
			return "", fmt.Errorf("fetch asset report: %w", err)
		}
		if attempt == s.pollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollDelay):
		}
	}

	return "", fmt.Errorf("asset report after %d attempts: %w", s.pollAttempts, domain.ErrTimeout)
}

func (s *reportService) storeArtifact(ctx context.Context, reportID string, body []byte) (string, error) {
	if s.artifacts == nil {
		s.logger.Warnf("artifact storage not configured, discarding artifact for report %s", reportID)
		return "", nil
	}
	location, err := s.artifacts.UploadArtifact(ctx, fmt.Sprintf("reports/%s.pdf", reportID), body)
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return location, nil
}

func (s *reportService) Get(ctx context.Context, requesterID, reportID string) (*domain.Report, error) {
	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}

	if !requester.IsAdmin() && report.UserID != requesterID {
		return nil, domain.ErrForbidden
	}
	return report, nil
}

// ArtifactURL hands out a time-limited download link for a report's long-form
// artifact. Access rules match Get.
func (s *reportService) ArtifactURL(ctx context.Context, requesterID, reportID string) (string, error) {
	report, err := s.Get(ctx, requesterID, reportID)
	if err != nil {
		return "", err
	}
	if report.ArtifactLocation == "" {
		return "", fmt.Errorf("report %s has no artifact: %w", reportID, domain.ErrNotFound)
	}
	if s.artifacts == nil {
		return "", fmt.Errorf("artifact storage not configured")
	}
	return s.artifacts.GetObjectURL(ctx, fmt.Sprintf("reports/%s.pdf", report.ID), 15*time.Minute)
}

func (s *reportService) List(ctx context.Context, requesterID string, page, pageSize int) (*ReportPage, error) {
	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	var (
		reports []domain.Report
		total   int
	)
	if requester.IsAdmin() {
		reports, total, err = s.reports.List(ctx, page, pageSize)
	} else {
		reports, total, err = s.reports.ListByUser(ctx, requesterID, page, pageSize)
	}
	if err != nil {
		return nil, err
	}

	return &ReportPage{
		Reports:    reports,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}
