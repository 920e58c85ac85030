package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/payment-lifecycle/internal"
	"github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payment-lifecycle/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(rec *payment.PaymentRecord) error {
	return r.db.Create(rec).Error
}

func (r *PaymentRepository) GetByID(id int64) (*payment.PaymentRecord, error) {
	var rec payment.PaymentRecord
	err := r.db.First(&rec, id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &rec, nil
}

func (r *PaymentRepository) GetByExternalCode(code string) (*payment.PaymentRecord, error) {
	var rec payment.PaymentRecord
	err := r.db.Where("external_code = ?", code).First(&rec).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &rec, nil
}

func (r *PaymentRepository) GetLatestBySubjectID(subjectID string) (*payment.PaymentRecord, error) {
	var rec payment.PaymentRecord
	err := r.db.Where("subject_id = ?", subjectID).Order("created_at DESC").First(&rec).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &rec, nil
}

// ApplyTransition persists a record mutation and its audit entry in one
// transaction. A transition without its audit row never becomes visible.
func (r *PaymentRepository) ApplyTransition(rec *payment.PaymentRecord, entry *payment.AuditEntry) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(rec).Error; err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
}

func (r *PaymentRepository) AppendAudit(entry *payment.AuditEntry) error {
	return r.db.Create(entry).Error
}

func (r *PaymentRepository) ListStalePending(olderThan time.Time, limit int) ([]*payment.PaymentRecord, error) {
	var records []*payment.PaymentRecord
	err := r.db.
		Where("status = ? AND requested_at < ?", payment.StatusPending, olderThan).
		Order("requested_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *PaymentRepository) ListAuditForRecord(recordID int64) ([]*payment.AuditEntry, error) {
	var entries []*payment.AuditEntry
	err := r.db.Where("record_id = ?", recordID).Order("occurred_at ASC").Find(&entries).Error
	return entries, err
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrRecordNotFound
	}
	return err
}
