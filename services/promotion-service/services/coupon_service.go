package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/pkg/lock"
	"github.com/yashrajoria/commerce-core/services/promotion-service/models"
	"github.com/yashrajoria/commerce-core/services/promotion-service/repository"
)

// ServiceError represents a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
	RetryAfter bool
	Err        error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// CouponService defines the interface for coupon business logic.
type CouponService interface {
	CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, *ServiceError)
	GetCoupon(ctx context.Context, code string) (*models.Coupon, *ServiceError)
	IssueCoupon(ctx context.Context, code, holderID string) (*models.CouponIssuance, *ServiceError)
	DeactivateCoupon(ctx context.Context, code string) *ServiceError
	ListCoupons(ctx context.Context, page, limit int) ([]models.Coupon, int64, *ServiceError)
}

type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// couponServiceImpl implements CouponService.
type couponServiceImpl struct {
	repo        repository.CouponRepository
	issuer      QuotaIssuer
	snsClient   awspkg.SNSPublisher
	snsTopicArn string
	metrics     MetricsRecorder
	logger      *zap.Logger
	now         func() time.Time
}

func NewCouponService(
	repo repository.CouponRepository,
	issuer QuotaIssuer,
	snsClient awspkg.SNSPublisher,
	snsTopicArn string,
	metrics MetricsRecorder,
	logger *zap.Logger,
) CouponService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &couponServiceImpl{
		repo:        repo,
		issuer:      issuer,
		snsClient:   snsClient,
		snsTopicArn: snsTopicArn,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateCoupon creates a new coupon.
func (s *couponServiceImpl) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, *ServiceError) {
	now := s.now()
	validFrom := now
	if req.ValidFrom != nil {
		validFrom = *req.ValidFrom
	}
	if !req.ValidUntil.After(validFrom) || req.ValidUntil.Before(now) {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "valid_until must be in the future and after valid_from"}
	}
	if req.Type == models.CouponTypePercentage && req.Value > 100 {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Percentage discount cannot exceed 100"}
	}

	coupon := &models.Coupon{
		ID:            uuid.New(),
		Code:          strings.ToUpper(req.Code),
		Type:          req.Type,
		Value:         req.Value,
		MinOrderValue: req.MinOrderValue,
		IssueLimit:    req.IssueLimit,
		ValidFrom:     validFrom,
		ValidUntil:    req.ValidUntil,
		Active:        true,
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		if errors.Is(err, models.ErrDuplicateCode) {
			return nil, &ServiceError{StatusCode: http.StatusConflict, Message: "Coupon code already exists", Err: err}
		}
		s.logger.Error("Failed to create coupon", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to create coupon", Err: err}
	}

	s.logger.Info("Coupon created",
		zap.String("code", coupon.Code),
		zap.String("type", string(coupon.Type)),
		zap.Uint("issue_limit", coupon.IssueLimit),
	)
	return coupon, nil
}

// GetCoupon retrieves a coupon by code.
func (s *couponServiceImpl) GetCoupon(ctx context.Context, code string) (*models.Coupon, *ServiceError) {
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, s.lookupError(err, code)
	}
	return coupon, nil
}

// IssueCoupon hands one unit of the coupon's quota to holderID.
func (s *couponServiceImpl) IssueCoupon(ctx context.Context, code, holderID string) (*models.CouponIssuance, *ServiceError) {
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, s.lookupError(err, code)
	}

	issuance, updated, err := s.issuer.Issue(ctx, coupon.ID, holderID)
	if err != nil {
		s.record(ctx, awspkg.MetricCouponsRejected)
		return nil, s.issueError(err, coupon.Code, holderID)
	}

	s.record(ctx, awspkg.MetricCouponsIssued)
	s.publishCouponIssuedEvent(ctx, updated, holderID)
	s.logger.Info("Coupon issued",
		zap.String("code", coupon.Code),
		zap.String("holder_id", holderID),
		zap.Uint("issued", updated.Issued),
		zap.Uint("issue_limit", updated.IssueLimit),
	)
	return issuance, nil
}

// DeactivateCoupon deactivates a coupon by code.
func (s *couponServiceImpl) DeactivateCoupon(ctx context.Context, code string) *ServiceError {
	if err := s.repo.Deactivate(ctx, code); err != nil {
		return s.lookupError(err, code)
	}
	s.logger.Info("Coupon deactivated", zap.String("code", code))
	return nil
}

// ListCoupons returns paginated coupons.
func (s *couponServiceImpl) ListCoupons(ctx context.Context, page, limit int) ([]models.Coupon, int64, *ServiceError) {
	coupons, total, err := s.repo.FindAll(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to list coupons", zap.Error(err))
		return nil, 0, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to list coupons", Err: err}
	}
	return coupons, total, nil
}

func (s *couponServiceImpl) lookupError(err error, code string) *ServiceError {
	if errors.Is(err, models.ErrCouponNotFound) {
		return &ServiceError{StatusCode: http.StatusNotFound, Message: "Coupon not found", Err: err}
	}
	s.logger.Error("Coupon lookup failed", zap.String("code", code), zap.Error(err))
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load coupon", Err: err}
}

func (s *couponServiceImpl) issueError(err error, code, holderID string) *ServiceError {
	switch {
	case errors.Is(err, models.ErrQuotaExhausted):
		return &ServiceError{StatusCode: http.StatusConflict, Message: "Coupon quota exhausted", Err: err}
	case errors.Is(err, models.ErrAlreadyIssued):
		return &ServiceError{StatusCode: http.StatusConflict, Message: "Coupon already issued to this holder", Err: err}
	case errors.Is(err, models.ErrQuotaNotValid):
		return &ServiceError{StatusCode: http.StatusUnprocessableEntity, Message: "Coupon is not valid at this time", Err: err}
	case errors.Is(err, models.ErrCouponNotFound):
		return &ServiceError{StatusCode: http.StatusNotFound, Message: "Coupon not found", Err: err}
	case errors.Is(err, lock.ErrNotAcquired):
		return &ServiceError{StatusCode: http.StatusLocked, Message: "Coupon is busy, please retry", RetryAfter: true, Err: err}
	}
	s.logger.Error("Coupon issuance failed", zap.String("code", code), zap.String("holder_id", holderID), zap.Error(err))
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to issue coupon", Err: err}
}

func (s *couponServiceImpl) record(ctx context.Context, metric string) {
	if s.metrics == nil {
		return
	}
	_ = s.metrics.RecordCount(ctx, metric, map[string]string{"Service": "promotion-service"})
}

// publishCouponIssuedEvent publishes a coupon_issued event to SNS.
func (s *couponServiceImpl) publishCouponIssuedEvent(ctx context.Context, coupon *models.Coupon, holderID string) {
	if s.snsClient == nil || s.snsTopicArn == "" {
		s.logger.Debug("SNS client not configured, skipping coupon_issued event")
		return
	}

	event := models.CouponIssuedEvent{
		EventType:  "coupon_issued",
		CouponID:   coupon.ID.String(),
		CouponCode: coupon.Code,
		HolderID:   holderID,
		Issued:     coupon.Issued,
		IssueLimit: coupon.IssueLimit,
		Timestamp:  s.now(),
	}
	if err := awspkg.PublishJSON(ctx, s.snsClient, s.snsTopicArn, event.EventType, event); err != nil {
		s.logger.Error("Failed to publish coupon_issued event", zap.Error(err))
	}
}
