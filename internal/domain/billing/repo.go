package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
)

var (
	ErrServiceNameTaken = apperr.Conflict("a service with this name already exists")
	ErrServiceInUse     = apperr.Conflict("service is referenced by existing bills")
)

type ServiceFilter struct {
	Query      string
	ActiveOnly bool
}

type BillFilter struct {
	PatientID     *uuid.UUID
	PaymentStatus string
}

type Repository interface {
	CreateService(ctx context.Context, s *MedicalService) error
	GetService(ctx context.Context, id uuid.UUID) (*MedicalService, error)
	UpdateService(ctx context.Context, s *MedicalService) error
	// DeleteService returns ErrServiceInUse when bill items reference s.
	DeleteService(ctx context.Context, id uuid.UUID) error
	ListServices(ctx context.Context, f ServiceFilter, limit, offset int) ([]*MedicalService, int, error)

	// CreateBill inserts the bill header and its items. A bill_id collision
	// is reported as idgen.ErrCollision.
	CreateBill(ctx context.Context, b *Bill) error
	GetBill(ctx context.Context, billID string) (*Bill, error)
	UpdateBill(ctx context.Context, b *Bill) error
	ReplaceItems(ctx context.Context, b *Bill) error
	ListBills(ctx context.Context, f BillFilter, limit, offset int) ([]*Bill, int, error)
	MaxBillID(ctx context.Context, prefix string) (string, error)
}
