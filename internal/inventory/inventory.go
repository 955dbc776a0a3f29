package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

// Line is one (product, quantity) pair requested at checkout.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// Result reports the outcome per requested line.
type Result struct {
	ProductID      uuid.UUID
	Name           string
	UnitPricePaise int64
	Reserved       bool
	Reason         string
}

// Reserve decrements stock for every line inside the caller's transaction.
// Each decrement is a conditional UPDATE gated on the current stock value, so
// concurrent checkouts cannot oversell. The first failing line aborts with a
// state-conflict error naming the product and its available quantity; the
// surrounding transaction rollback undoes the prior decrements.
func Reserve(ctx context.Context, tx *gorm.DB, lines []Line) ([]Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}

	results := make([]Result, 0, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("quantity must be positive for product %s", line.ProductID))
		}

		var product models.Product
		err := tx.WithContext(ctx).
			Where("id = ? AND is_active = ?", line.ProductID, true).
			First(&product).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("product %s not found", line.ProductID))
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}

		if product.StockQty < line.Qty {
			results = append(results, Result{
				ProductID: line.ProductID,
				Name:      product.Name,
				Reserved:  false,
				Reason:    fmt.Sprintf("Insufficient stock for %s. Available: %d", product.Name, product.StockQty),
			})
			return results, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("Insufficient stock for %s. Available: %d", product.Name, product.StockQty))
		}

		// the WHERE repeats the stock value we just read; a concurrent
		// checkout that got there first makes this match zero rows
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND stock_qty = ?", line.ProductID, product.StockQty).
			Update("stock_qty", gorm.Expr("stock_qty - ?", line.Qty))
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "decrement stock")
		}
		if res.RowsAffected == 0 {
			results = append(results, Result{
				ProductID: line.ProductID,
				Name:      product.Name,
				Reserved:  false,
				Reason:    fmt.Sprintf("Stock changed for %s, please retry", product.Name),
			})
			return results, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("stock changed concurrently for %s", product.Name))
		}

		results = append(results, Result{
			ProductID:      line.ProductID,
			Name:           product.Name,
			UnitPricePaise: product.PricePaise,
			Reserved:       true,
		})
	}
	return results, nil
}

// Restore returns stock after a cancellation or completed return. Plain
// additive update; there is no upper bound to race on.
func Restore(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			continue
		}
		err := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", line.ProductID).
			Update("stock_qty", gorm.Expr("stock_qty + ?", line.Qty)).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore stock")
		}
	}
	return nil
}
