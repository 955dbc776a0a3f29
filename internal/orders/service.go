package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

// Service exposes order reads for the public tracking surface.
type Service interface {
	Status(ctx context.Context, orderID uuid.UUID, guestEmail string) (*StatusProjection, error)
}

type service struct {
	repo Repository
}

// NewService builds the orders service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Status returns the tracking projection for one order. Guest orders require
// the guest's email as ownership proof; a mismatch reads as not-found so the
// endpoint cannot be used to probe which order ids exist.
func (s *service) Status(ctx context.Context, orderID uuid.UUID, guestEmail string) (*StatusProjection, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	if order.UserID == nil {
		proof := strings.ToLower(strings.TrimSpace(guestEmail))
		if proof == "" || order.GuestEmail == nil || strings.ToLower(*order.GuestEmail) != proof {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
	}

	projection := Project(order)
	return &projection, nil
}
