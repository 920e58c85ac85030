package payment_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payment-lifecycle/internal"
	gatewaytypes "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/gateway"
	datamodel "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/payment"
	paymentPkg "github.com/frahmantamala/payment-lifecycle/internal/payment"
)

// Mock lifecycle service for reconciler tests
type mockSweepService struct {
	mu            sync.Mutex
	stale         []*datamodel.PaymentRecord
	staleError    error
	reconciled    []int64
	failRecordIDs map[int64]bool
}

func (s *mockSweepService) CreatePaymentLink(context.Context, *paymentPkg.CreateLinkRequest) (*datamodel.PaymentRecord, error) {
	return nil, nil
}

func (s *mockSweepService) Waive(context.Context, string) (*datamodel.PaymentRecord, error) {
	return nil, nil
}

func (s *mockSweepService) Refund(context.Context, string) (*datamodel.PaymentRecord, error) {
	return nil, nil
}

func (s *mockSweepService) GetBySubjectID(string) (*datamodel.PaymentRecord, error) {
	return nil, nil
}

func (s *mockSweepService) ApplyCallback(context.Context, *gatewaytypes.CallbackData) (*paymentPkg.TransitionResult, error) {
	return nil, nil
}

func (s *mockSweepService) RecordOrphanCallback(string, []byte, string) {}

func (s *mockSweepService) StalePending(time.Time, int) ([]*datamodel.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleError != nil {
		return nil, s.staleError
	}
	return s.stale, nil
}

func (s *mockSweepService) ReconcileRecord(_ context.Context, rec *datamodel.PaymentRecord) (*paymentPkg.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciled = append(s.reconciled, rec.ID)
	if s.failRecordIDs[rec.ID] {
		return nil, apperrors.NewGatewayError("gateway down", nil)
	}
	return &paymentPkg.TransitionResult{
		Record:  rec,
		Entry:   &datamodel.AuditEntry{Outcome: datamodel.OutcomeApplied},
		Outcome: datamodel.OutcomeApplied,
	}, nil
}

func (s *mockSweepService) reconciledIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.reconciled...)
}

var _ = Describe("Reconciler", func() {
	var service *mockSweepService

	testLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := apperrors.ReconciliationConfig{
		Interval:           10 * time.Millisecond,
		StalenessThreshold: 15 * time.Minute,
		BatchSize:          100,
	}

	pendingRecord := func(id int64) *datamodel.PaymentRecord {
		code := "txn-stale"
		return &datamodel.PaymentRecord{
			ID:           id,
			SubjectID:    "inv-stale",
			TenantName:   "acme",
			ExternalCode: &code,
			Status:       datamodel.StatusPending,
		}
	}

	BeforeEach(func() {
		service = &mockSweepService{failRecordIDs: make(map[int64]bool)}
	})

	Describe("Sweep", func() {
		It("reconciles every stale pending record once", func() {
			service.stale = []*datamodel.PaymentRecord{pendingRecord(1), pendingRecord(2), pendingRecord(3)}

			reconciler := paymentPkg.NewReconciler(service, cfg, testLogger)
			reconciler.Sweep(context.Background())

			Expect(service.reconciledIDs()).To(Equal([]int64{1, 2, 3}))
		})

		It("continues past a record that fails to reconcile", func() {
			service.stale = []*datamodel.PaymentRecord{pendingRecord(1), pendingRecord(2), pendingRecord(3)}
			service.failRecordIDs[2] = true

			reconciler := paymentPkg.NewReconciler(service, cfg, testLogger)
			reconciler.Sweep(context.Background())

			Expect(service.reconciledIDs()).To(Equal([]int64{1, 2, 3}))
		})

		It("stops between records when the context is cancelled", func() {
			service.stale = []*datamodel.PaymentRecord{pendingRecord(1), pendingRecord(2)}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			reconciler := paymentPkg.NewReconciler(service, cfg, testLogger)
			reconciler.Sweep(ctx)

			Expect(service.reconciledIDs()).To(BeEmpty())
		})

		It("does nothing when the stale listing fails", func() {
			service.staleError = apperrors.NewInternalError("db down", nil)

			reconciler := paymentPkg.NewReconciler(service, cfg, testLogger)
			reconciler.Sweep(context.Background())

			Expect(service.reconciledIDs()).To(BeEmpty())
		})
	})

	Describe("Start and Stop", func() {
		It("sweeps on the interval until stopped", func() {
			service.stale = []*datamodel.PaymentRecord{pendingRecord(1)}

			reconciler := paymentPkg.NewReconciler(service, cfg, testLogger)
			reconciler.Start(context.Background())

			Eventually(func() int {
				return len(service.reconciledIDs())
			}).Should(BeNumerically(">=", 2))

			reconciler.Stop()
			swept := len(service.reconciledIDs())

			Consistently(func() int {
				return len(service.reconciledIDs())
			}, 50*time.Millisecond).Should(Equal(swept))
		})
	})
})
