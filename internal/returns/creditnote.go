package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

// nextCreditNoteNumber allocates the next sequential number for the year,
// e.g. CN-2026-000042. Must run inside the transaction that inserts the
// credit note so two concurrent inspections cannot allocate the same number.
func nextCreditNoteNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("CN-%d-", now.Year())
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.CreditNote{}).
		Where("number LIKE ?", prefix+"%").
		Count(&count).Error
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count credit notes")
	}
	return fmt.Sprintf("%s%06d", prefix, count+1), nil
}

// IssueCreditNote records the financial summary of a settled return. It is
// called from the inspection flow when the gateway settles synchronously, and
// from the refund webhook when the settlement arrives later.
func IssueCreditNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, grossPaise, deductionPaise, refundPaise int64, reason string, now time.Time) (*models.CreditNote, error) {
	number, err := nextCreditNoteNumber(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	note := &models.CreditNote{
		ID:             uuid.New(),
		Number:         number,
		OrderID:        orderID,
		GrossPaise:     grossPaise,
		DeductionPaise: deductionPaise,
		RefundPaise:    refundPaise,
		IssuedAt:       now,
	}
	if reason != "" {
		note.Reason = &reason
	}
	if err := tx.WithContext(ctx).Create(note).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert credit note")
	}
	return note, nil
}
