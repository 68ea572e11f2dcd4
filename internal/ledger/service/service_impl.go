package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/clock"
	"github.com/smallbiznis/feeledger/internal/config"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
	"github.com/smallbiznis/feeledger/internal/ledger/domain"
	"github.com/smallbiznis/feeledger/internal/lock"
	obscontext "github.com/smallbiznis/feeledger/internal/observability/context"
	"github.com/smallbiznis/feeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/feeledger/internal/observability/metrics"
	sequencedomain "github.com/smallbiznis/feeledger/internal/sequence/domain"
	"github.com/smallbiznis/feeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	FeePlanSvc   feeplandomain.Service
	SequenceSvc  sequencedomain.Service
	Locker       lock.Locker
	LedgerConfig *config.LedgerConfigHolder
	AuditSvc     auditdomain.Service
	Clock        clock.Clock              `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics      `optional:"true"`
	StoreMetrics *obsmetrics.StoreMetrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	feePlanSvc   feeplandomain.Service
	sequenceSvc  sequencedomain.Service
	locker       lock.Locker
	ledgerConfig *config.LedgerConfigHolder
	auditSvc     auditdomain.Service
	clock        clock.Clock
	metrics      *obsmetrics.Metrics
	storeMetrics *obsmetrics.StoreMetrics
	validate     *validator.Validate
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("ledger.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		feePlanSvc:   p.FeePlanSvc,
		sequenceSvc:  p.SequenceSvc,
		locker:       p.Locker,
		ledgerConfig: p.LedgerConfig,
		auditSvc:     p.AuditSvc,
		clock:        clk,
		metrics:      p.ObsMetrics,
		storeMetrics: p.StoreMetrics,
		validate:     validator.New(),
	}
}

type collectInput struct {
	studentID      string
	courseID       string
	amount         decimal.Decimal
	mode           domain.PaymentMode
	details        domain.ModeDetails
	date           time.Time
	remarks        string
	installment    *int
	idempotencyKey *string
}

func (s *Service) Collect(ctx context.Context, req domain.CollectRequest) (*domain.CollectResult, error) {
	in, err := s.normalizeCollect(req)
	if err != nil {
		return nil, err
	}

	release, err := s.lockStudent(ctx, in.studentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		result *domain.CollectResult
		scope  sequencedomain.Scope
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.feePlanSvc.ResolveTx(ctx, tx, in.studentID, true)
		if err != nil {
			return err
		}

		if in.idempotencyKey != nil {
			existing, err := s.repo.FindByIdempotencyKey(ctx, tx, *in.idempotencyKey)
			if err != nil {
				return s.storageErr("find_idempotency_key", err)
			}
			if existing != nil {
				if existing.StudentID != in.studentID || existing.Deleted() {
					return domain.ErrIdempotencyConflict
				}
				result = &domain.CollectResult{Receipt: existing, Replayed: true}
				return nil
			}
		}

		active, err := s.repo.ListActiveByStudent(ctx, tx, in.studentID)
		if err != nil {
			return s.storageErr("list_receipts", err)
		}
		payments := paymentsOf(active, 0)
		outstanding := domain.Outstanding(plan.TotalFees, domain.Received(payments))
		if in.amount.GreaterThan(outstanding) {
			s.metrics.RecordOverpaymentRejected(ctx, "collect")
			return &domain.OverpaymentError{Outstanding: outstanding, Attempted: in.amount}
		}

		installment, err := attribute(plan, payments, in.installment)
		if err != nil {
			return err
		}

		branchCode := plan.BranchCode
		scope, err = s.sequenceSvc.Scope(branchCode)
		if err != nil {
			return err
		}
		seq, err := s.sequenceSvc.Allocate(ctx, tx, scope.Key)
		if err != nil {
			return err
		}
		receiptNo, err := s.sequenceSvc.Format(scope, seq)
		if err != nil {
			return err
		}
		taken, err := s.repo.ReceiptNoTaken(ctx, tx, receiptNo)
		if err != nil {
			return s.storageErr("check_receipt_no", err)
		}
		if taken {
			return s.receiptNoCollision(receiptNo, scope.Key, seq)
		}

		courseID := in.courseID
		if courseID == "" {
			courseID = plan.CourseID
		}
		_, actorID := obscontext.ActorFromContext(ctx)
		now := s.clock.Now()
		receipt := &domain.Receipt{
			ID:                s.genID.Generate(),
			ReceiptNo:         receiptNo,
			SequenceScope:     scope.Key,
			SequenceNo:        seq,
			StudentID:         in.studentID,
			CourseID:          courseID,
			ReceiptDate:       in.date,
			AmountPaid:        in.amount,
			Remarks:           in.remarks,
			InstallmentNumber: &installment,
			IdempotencyKey:    in.idempotencyKey,
			CreatedBy:         actorID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		receipt.SetPayment(in.mode, in.details)

		if err := s.repo.Insert(ctx, tx, receipt); err != nil {
			if db.IsDuplicateKeyErr(err) {
				if in.idempotencyKey != nil {
					return domain.ErrIdempotencyConflict
				}
				return s.receiptNoCollision(receiptNo, scope.Key, seq)
			}
			return s.storageErr("insert_receipt", err)
		}

		if err := s.audit(ctx, tx, auditdomain.ActionReceiptCollect, receipt, map[string]any{
			"outstanding_before": outstanding.StringFixed(2),
		}); err != nil {
			return err
		}

		result = &domain.CollectResult{Receipt: receipt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithStudent(logger.WithContext(ctx, s.log), in.studentID)
	if result.Replayed {
		s.metrics.RecordIdempotentReplay(ctx)
		log.Info("fee receipt replayed", zap.String("receipt_no", result.Receipt.ReceiptNo))
		return result, nil
	}
	s.metrics.RecordReceiptCollected(ctx, string(result.Receipt.PaymentMode), scope.Key)
	log.Info("fee receipt collected",
		zap.String("receipt_no", result.Receipt.ReceiptNo),
		zap.String("amount_paid", result.Receipt.AmountPaid.StringFixed(2)),
		zap.String("payment_mode", string(result.Receipt.PaymentMode)),
		zap.Intp("installment_number", result.Receipt.InstallmentNumber),
	)
	return result, nil
}

func (s *Service) normalizeCollect(req domain.CollectRequest) (collectInput, error) {
	if err := s.validate.Struct(req); err != nil {
		return collectInput{}, err
	}

	in := collectInput{
		studentID: strings.TrimSpace(req.StudentID),
		courseID:  strings.TrimSpace(req.CourseID),
		remarks:   strings.TrimSpace(req.Remarks),
	}
	if in.studentID == "" {
		return collectInput{}, domain.ErrInvalidStudent
	}

	amount, err := validAmount(req.AmountPaid)
	if err != nil {
		return collectInput{}, err
	}
	in.amount = amount

	mode, ok := domain.ParsePaymentMode(req.PaymentMode)
	if !ok {
		return collectInput{}, domain.ErrInvalidPaymentMode
	}
	in.mode = mode

	date := req.Date
	if date.IsZero() {
		date = s.clock.Now()
	}
	if in.date, err = s.validDate(date); err != nil {
		return collectInput{}, err
	}

	in.details = domain.NormalizeModeDetails(mode, req.ModeDetails)
	if err := domain.ValidateModeDetails(mode, in.details); err != nil {
		return collectInput{}, err
	}

	if req.InstallmentNumber != nil {
		if *req.InstallmentNumber < 1 {
			return collectInput{}, domain.ErrInvalidInstallment
		}
		n := *req.InstallmentNumber
		in.installment = &n
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		in.idempotencyKey = &key
	}
	return in, nil
}

// attribute picks the installment a new receipt pays: the requested one
// when it is scheduled, otherwise the first one not yet fully paid.
func attribute(plan *feeplandomain.FeePlan, payments []domain.Payment, requested *int) (int, error) {
	if requested != nil {
		if _, ok := plan.Installment(*requested); !ok {
			return 0, domain.ErrInvalidInstallment
		}
		return *requested, nil
	}
	number, ok := domain.NextInstallment(domain.Positions(plan, payments))
	if !ok {
		return feeplandomain.AdmissionInstallmentNumber, nil
	}
	return number, nil
}

func (s *Service) Update(ctx context.Context, receiptID snowflake.ID, req domain.UpdateRequest) (*domain.Receipt, error) {
	if receiptID <= 0 {
		return nil, domain.ErrInvalidReceiptID
	}
	if req.Empty() {
		return nil, domain.ErrInvalidUpdate
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if req.AmountPaid != nil {
		if _, err := validAmount(*req.AmountPaid); err != nil {
			return nil, err
		}
	}
	if req.Date != nil {
		if _, err := s.validDate(*req.Date); err != nil {
			return nil, err
		}
	}
	var requestedMode *domain.PaymentMode
	if req.PaymentMode != nil {
		mode, ok := domain.ParsePaymentMode(*req.PaymentMode)
		if !ok {
			return nil, domain.ErrInvalidPaymentMode
		}
		requestedMode = &mode
	}

	current, err := s.visibleReceipt(ctx, s.db, receiptID, false)
	if err != nil {
		return nil, err
	}

	release, err := s.lockStudent(ctx, current.StudentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated *domain.Receipt
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.feePlanSvc.ResolveTx(ctx, tx, current.StudentID, true)
		if err != nil {
			return err
		}
		receipt, err := s.visibleReceipt(ctx, tx, receiptID, true)
		if err != nil {
			return err
		}
		before := *receipt

		mode := receipt.PaymentMode
		if requestedMode != nil {
			mode = *requestedMode
		}
		details := receipt.ModeDetails()
		if req.ModeDetails != nil {
			details = *req.ModeDetails
		}
		details = domain.NormalizeModeDetails(mode, details)
		if err := domain.ValidateModeDetails(mode, details); err != nil {
			return err
		}
		receipt.SetPayment(mode, details)

		if req.AmountPaid != nil {
			receipt.AmountPaid = req.AmountPaid.Round(2)
		}
		if req.Date != nil {
			receipt.ReceiptDate = domain.DateOnly(*req.Date)
		}
		if req.Remarks != nil {
			receipt.Remarks = strings.TrimSpace(*req.Remarks)
		}

		active, err := s.repo.ListActiveByStudent(ctx, tx, receipt.StudentID)
		if err != nil {
			return s.storageErr("list_receipts", err)
		}
		outstanding := domain.Outstanding(plan.TotalFees, domain.Received(paymentsOf(active, receipt.ID)))
		if receipt.AmountPaid.GreaterThan(outstanding) {
			s.metrics.RecordOverpaymentRejected(ctx, "update")
			return &domain.OverpaymentError{Outstanding: outstanding, Attempted: receipt.AmountPaid}
		}

		receipt.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, receipt); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return s.storageErr("update_receipt", err)
		}

		if err := s.audit(ctx, tx, auditdomain.ActionReceiptUpdate, receipt, map[string]any{
			"previous_amount_paid":  before.AmountPaid.StringFixed(2),
			"previous_payment_mode": string(before.PaymentMode),
			"previous_receipt_date": before.ReceiptDate.Format(time.DateOnly),
		}); err != nil {
			return err
		}

		updated = receipt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReceiptUpdated(ctx, string(updated.PaymentMode))
	logger.WithStudent(logger.WithContext(ctx, s.log), updated.StudentID).Info("fee receipt updated",
		zap.String("receipt_no", updated.ReceiptNo),
		zap.String("amount_paid", updated.AmountPaid.StringFixed(2)),
	)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, receiptID snowflake.ID) error {
	if receiptID <= 0 {
		return domain.ErrInvalidReceiptID
	}

	current, err := s.visibleReceipt(ctx, s.db, receiptID, false)
	if err != nil {
		return err
	}

	release, err := s.lockStudent(ctx, current.StudentID)
	if err != nil {
		return err
	}
	defer release()

	var deleted *domain.Receipt
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.feePlanSvc.ResolveTx(ctx, tx, current.StudentID, true); err != nil && !errors.Is(err, feeplandomain.ErrNotFound) {
			return err
		}
		receipt, err := s.visibleReceipt(ctx, tx, receiptID, true)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.repo.SoftDelete(ctx, tx, receipt.ID, now); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return s.storageErr("delete_receipt", err)
		}
		receipt.DeletedAt = &now
		receipt.UpdatedAt = now

		if err := s.audit(ctx, tx, auditdomain.ActionReceiptDelete, receipt, nil); err != nil {
			return err
		}
		deleted = receipt
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordReceiptDeleted(ctx, string(deleted.PaymentMode))
	logger.WithStudent(logger.WithContext(ctx, s.log), deleted.StudentID).Info("fee receipt deleted",
		zap.String("receipt_no", deleted.ReceiptNo),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, receiptID snowflake.ID) (*domain.Receipt, error) {
	if receiptID <= 0 {
		return nil, domain.ErrInvalidReceiptID
	}
	return s.visibleReceipt(ctx, s.db, receiptID, false)
}

// NextReceiptNo previews the number the next collect in branchCode's scope
// would receive. Concurrent collects may take it first.
func (s *Service) NextReceiptNo(ctx context.Context, branchCode string) (*domain.NextReceiptNo, error) {
	scope, err := s.sequenceSvc.Scope(branchCode)
	if err != nil {
		return nil, err
	}
	seq, err := s.sequenceSvc.Peek(ctx, scope.Key)
	if err != nil {
		return nil, err
	}
	receiptNo, err := s.sequenceSvc.Format(scope, seq)
	if err != nil {
		return nil, err
	}
	return &domain.NextReceiptNo{ReceiptNo: receiptNo, SequenceNo: seq, Scope: scope.Key}, nil
}

func (s *Service) visibleReceipt(ctx context.Context, conn *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Receipt, error) {
	receipt, err := s.repo.FindByID(ctx, conn, id, forUpdate)
	if err != nil {
		return nil, s.storageErr("find_receipt", err)
	}
	if receipt == nil || receipt.Deleted() {
		return nil, domain.ErrNotFound
	}
	return receipt, nil
}

func (s *Service) lockStudent(ctx context.Context, studentID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.ledgerConfig.Get().LockTimeout)
	defer cancel()

	start := time.Now()
	release, err := s.locker.Lock(lockCtx, lock.StudentKey(studentID))
	s.storeMetrics.ObserveLockWait(obsmetrics.LockResourceStudent, time.Since(start))
	if err != nil {
		s.storeMetrics.RecordStoreError("ledger.lock_student", err)
		return nil, err
	}
	return release, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, receipt *domain.Receipt, extra map[string]any) error {
	targetID := receipt.ID.String()
	metadata := map[string]any{
		"receipt_no":     receipt.ReceiptNo,
		"student_id":     receipt.StudentID,
		"amount_paid":    receipt.AmountPaid.StringFixed(2),
		"payment_mode":   string(receipt.PaymentMode),
		"receipt_date":   receipt.ReceiptDate.Format(time.DateOnly),
		"sequence_scope": receipt.SequenceScope,
	}
	if receipt.InstallmentNumber != nil {
		metadata["installment_number"] = *receipt.InstallmentNumber
	}
	if receipt.ChequeNo != "" {
		metadata["cheque_no"] = receipt.ChequeNo
	}
	if receipt.TransactionID != "" {
		metadata["transaction_id"] = receipt.TransactionID
	}
	for k, v := range extra {
		metadata[k] = v
	}
	return s.auditSvc.AuditLog(ctx, tx, "", nil, action, auditdomain.TargetReceipt, &targetID, metadata)
}

func (s *Service) validDate(t time.Time) (time.Time, error) {
	if t.IsZero() {
		return time.Time{}, domain.ErrInvalidDate
	}
	date := domain.DateOnly(t)
	if date.After(domain.DateOnly(s.clock.Now())) {
		return time.Time{}, domain.ErrInvalidDate
	}
	return date, nil
}

func validAmount(v decimal.Decimal) (decimal.Decimal, error) {
	if !v.IsPositive() || !domain.HasMoneyScale(v) {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return v.Round(2), nil
}

// paymentsOf converts active receipts, leaving out the receipt with id
// exclude.
func paymentsOf(receipts []domain.Receipt, exclude snowflake.ID) []domain.Payment {
	out := make([]domain.Payment, 0, len(receipts))
	for i := range receipts {
		if receipts[i].ID == exclude {
			continue
		}
		out = append(out, domain.PaymentOf(&receipts[i]))
	}
	return out
}

// receiptNoCollision reports a formatted number already issued under another
// scope. The template cannot tell the scopes apart, so retrying never helps.
func (s *Service) receiptNoCollision(receiptNo, scope string, seq int64) error {
	s.log.Error("receipt number already issued",
		zap.String("receipt_no", receiptNo),
		zap.String("sequence_scope", scope),
		zap.Int64("sequence_no", seq),
	)
	return fmt.Errorf("%w: %s", domain.ErrReceiptNoCollision, receiptNo)
}

func (s *Service) storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	s.storeMetrics.RecordStoreError("ledger."+op, err)
	if db.IsUnavailableErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("fee receipt store: %w", err)
}
