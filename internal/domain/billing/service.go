package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/history"
	"github.com/hms/hms/internal/platform/idgen"
)

const (
	ResourceBill    = "bill"
	ResourceService = "service"
)

type Service struct {
	repo    Repository
	tx      db.Transactor
	ids     *idgen.Generator
	history *history.Recorder
	logger  zerolog.Logger
}

func NewService(repo Repository, tx db.Transactor, hist *history.Recorder, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		ids:     idgen.NewGenerator(repo.MaxBillID),
		history: hist,
		logger:  logger,
	}
}

// -- Catalogue --

type ServiceInput struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	GST         *float64 `json:"gst"`
	IsActive    *bool    `json:"is_active"`
}

func (in *ServiceInput) apply(s *MedicalService) {
	if in.Name != nil {
		s.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		s.Description = &d
		if d == "" {
			s.Description = nil
		}
	}
	if in.Price != nil {
		s.Price = round2(*in.Price)
	}
	if in.GST != nil {
		s.GST = round2(*in.GST)
	}
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
}

func validateService(s *MedicalService) error {
	fields := apperr.FieldErrors{}
	switch {
	case s.Name == "":
		fields.Add("name", "required")
	case len(s.Name) > maxServiceName:
		fields.Add("name", fmt.Sprintf("must be at most %d characters", maxServiceName))
	}
	if s.Price < 0 {
		fields.Add("price", "must not be negative")
	}
	if s.GST < 0 || s.GST > maxGSTPercentage {
		fields.Add("gst", "must be between 0 and 100")
	}
	return fields.Err()
}

func (s *Service) CreateService(ctx context.Context, a *auth.Actor, in ServiceInput) (*MedicalService, error) {
	svc := &MedicalService{IsActive: true}
	in.apply(svc)
	if err := validateService(svc); err != nil {
		return nil, err
	}
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s.history.Record(ctx, ResourceService, svc.ID.String(), &a.ID, nil, svc)
	return svc, nil
}

func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*MedicalService, error) {
	return s.repo.GetService(ctx, id)
}

func (s *Service) UpdateService(ctx context.Context, a *auth.Actor, id uuid.UUID, in ServiceInput) (*MedicalService, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *svc
	in.apply(svc)
	if err := validateService(svc); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	s.history.Record(ctx, ResourceService, svc.ID.String(), &a.ID, &before, svc)
	return svc, nil
}

// DeleteService removes a catalogue entry. Services used by any bill item
// cannot be deleted; deactivate them instead.
func (s *Service) DeleteService(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteService(ctx, id); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	return nil
}

func (s *Service) ListServices(ctx context.Context, f ServiceFilter, limit, offset int) ([]*MedicalService, int, error) {
	f.Query = strings.TrimSpace(f.Query)
	return s.repo.ListServices(ctx, f, limit, offset)
}

// -- Bills --

// ItemInput is one line of a bill. UnitPrice and GST default to the
// catalogue values of the service.
type ItemInput struct {
	ServiceID uuid.UUID `json:"service_id"`
	Quantity  *int      `json:"quantity"`
	UnitPrice *float64  `json:"unit_price"`
	GST       *float64  `json:"gst"`
	Discount  *float64  `json:"discount"`
}

type BillInput struct {
	PatientID     uuid.UUID   `json:"patient_id"`
	AppointmentID *uuid.UUID  `json:"appointment_id"`
	PaymentStatus string      `json:"payment_status"`
	PaymentMode   *string     `json:"payment_mode"`
	Notes         *string     `json:"notes"`
	Items         []ItemInput `json:"items"`
}

type BillUpdate struct {
	PaymentStatus *string      `json:"payment_status"`
	PaymentMode   *string      `json:"payment_mode"`
	Notes         *string      `json:"notes"`
	Items         *[]ItemInput `json:"items"`
}

// buildItems resolves inputs against the catalogue and validates them.
func (s *Service) buildItems(ctx context.Context, in []ItemInput, fields apperr.FieldErrors) ([]BillItem, error) {
	if len(in) == 0 {
		fields.Add("items", "at least one item is required")
		return nil, nil
	}
	items := make([]BillItem, 0, len(in))
	for i, ii := range in {
		key := fmt.Sprintf("items[%d]", i)
		svc, err := s.repo.GetService(ctx, ii.ServiceID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				fields.Add(key+".service_id", "service does not exist")
				continue
			}
			return nil, err
		}
		if !svc.IsActive {
			fields.Add(key+".service_id", "service is inactive")
			continue
		}
		it := BillItem{
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			Quantity:    defaultQuantity,
			UnitPrice:   svc.Price,
			GST:         svc.GST,
		}
		if ii.Quantity != nil {
			it.Quantity = *ii.Quantity
		}
		if ii.UnitPrice != nil {
			it.UnitPrice = round2(*ii.UnitPrice)
		}
		if ii.GST != nil {
			it.GST = round2(*ii.GST)
		}
		if ii.Discount != nil {
			it.Discount = round2(*ii.Discount)
		}
		switch {
		case it.Quantity < 1:
			fields.Add(key+".quantity", "must be at least 1")
		case it.UnitPrice < 0:
			fields.Add(key+".unit_price", "must not be negative")
		case it.GST < 0 || it.GST > maxGSTPercentage:
			fields.Add(key+".gst", "must be between 0 and 100")
		case it.Discount < 0:
			fields.Add(key+".discount", "must not be negative")
		case ItemTotal(it.Quantity, it.UnitPrice, it.GST, it.Discount) < 0:
			fields.Add(key+".discount", "must not exceed the item amount")
		}
		items = append(items, it)
	}
	return items, nil
}

func validatePayment(status string, mode *string, fields apperr.FieldErrors) {
	if !paymentStatuses[status] {
		fields.Add("payment_status", "must be one of pending, paid, partially_paid, refunded")
	}
	if mode != nil && !paymentModes[*mode] {
		fields.Add("payment_mode", "must be one of cash, card, upi, insurance")
	}
}

func normalizeMode(mode *string) *string {
	if mode == nil {
		return nil
	}
	m := strings.ToLower(strings.TrimSpace(*mode))
	if m == "" {
		return nil
	}
	return &m
}

// CreateBill validates the items, derives the totals and stores the bill
// under the next BILL identifier.
func (s *Service) CreateBill(ctx context.Context, a *auth.Actor, in BillInput) (*Bill, error) {
	fields := apperr.FieldErrors{}
	if in.PatientID == uuid.Nil {
		fields.Add("patient_id", "required")
	}
	b := &Bill{
		PatientID:     in.PatientID,
		AppointmentID: in.AppointmentID,
		PaymentStatus: strings.ToLower(strings.TrimSpace(in.PaymentStatus)),
		PaymentMode:   normalizeMode(in.PaymentMode),
		Notes:         in.Notes,
		CreatedBy:     &a.ID,
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = PaymentPending
	}
	validatePayment(b.PaymentStatus, b.PaymentMode, fields)
	items, err := s.buildItems(ctx, in.Items, fields)
	if err != nil {
		return nil, err
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}
	b.Items = items
	b.Recompute()

	_, err = s.ids.Create(ctx, BillPrefix, BillIDWidth, func(id string) error {
		b.BillID = id
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			return s.repo.CreateBill(ctx, b)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create bill: %w", err)
	}
	s.logger.Info().Str("bill_id", b.BillID).Float64("total_amount", b.TotalAmount).Msg("bill created")
	s.history.Record(ctx, ResourceBill, b.BillID, &a.ID, nil, b)
	return b, nil
}

func (s *Service) GetBill(ctx context.Context, billID string) (*Bill, error) {
	return s.repo.GetBill(ctx, strings.TrimSpace(billID))
}

func (s *Service) ListBills(ctx context.Context, f BillFilter, limit, offset int) ([]*Bill, int, error) {
	if f.PaymentStatus != "" && !paymentStatuses[f.PaymentStatus] {
		return nil, 0, apperr.Field("payment_status", "unknown payment status")
	}
	return s.repo.ListBills(ctx, f, limit, offset)
}

// UpdateBill changes payment details and, when items are given, replaces
// them. Header and items are written in one transaction.
func (s *Service) UpdateBill(ctx context.Context, a *auth.Actor, billID string, in BillUpdate) (*Bill, error) {
	b, err := s.repo.GetBill(ctx, strings.TrimSpace(billID))
	if err != nil {
		return nil, err
	}
	before := *b
	before.Items = append([]BillItem(nil), b.Items...)

	fields := apperr.FieldErrors{}
	if in.PaymentStatus != nil {
		b.PaymentStatus = strings.ToLower(strings.TrimSpace(*in.PaymentStatus))
	}
	if in.PaymentMode != nil {
		b.PaymentMode = normalizeMode(in.PaymentMode)
	}
	if in.Notes != nil {
		b.Notes = in.Notes
	}
	validatePayment(b.PaymentStatus, b.PaymentMode, fields)
	if in.Items != nil {
		items, err := s.buildItems(ctx, *in.Items, fields)
		if err != nil {
			return nil, err
		}
		b.Items = items
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}
	b.Recompute()

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if in.Items != nil {
			if err := s.repo.ReplaceItems(ctx, b); err != nil {
				return err
			}
		}
		return s.repo.UpdateBill(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("update bill: %w", err)
	}
	s.history.Record(ctx, ResourceBill, b.BillID, &a.ID, &before, b)
	return b, nil
}
