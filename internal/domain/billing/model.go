package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentPartial   = "partially_paid"
	PaymentRefunded  = "refunded"
	BillPrefix       = "BILL"
	BillIDWidth      = 4
	maxServiceName   = 200
	defaultQuantity  = 1
	maxGSTPercentage = 100
)

var paymentStatuses = map[string]bool{
	PaymentPending:  true,
	PaymentPaid:     true,
	PaymentPartial:  true,
	PaymentRefunded: true,
}

var paymentModes = map[string]bool{"cash": true, "card": true, "upi": true, "insurance": true}

// MedicalService is a billable catalogue entry.
type MedicalService struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Price       float64   `json:"price"`
	GST         float64   `json:"gst"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Bill struct {
	ID            uuid.UUID  `json:"id"`
	BillID        string     `json:"bill_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	TotalAmount   float64    `json:"total_amount"`
	PaymentStatus string     `json:"payment_status"`
	PaymentMode   *string    `json:"payment_mode,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Items         []BillItem `json:"items"`
}

type BillItem struct {
	ID          uuid.UUID `json:"id"`
	BillID      uuid.UUID `json:"-"`
	Position    int       `json:"position"`
	ServiceID   uuid.UUID `json:"service_id"`
	ServiceName string    `json:"service_name,omitempty"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	GST         float64   `json:"gst"`
	Discount    float64   `json:"discount"`
	TotalPrice  float64   `json:"total_price"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ItemTotal is quantity × unit price plus GST, less a flat discount.
func ItemTotal(quantity int, unitPrice, gst, discount float64) float64 {
	return round2(float64(quantity)*unitPrice*(1+gst/100) - discount)
}

// Recompute derives every item total and the bill total.
func (b *Bill) Recompute() {
	var total float64
	for i := range b.Items {
		it := &b.Items[i]
		it.Position = i + 1
		it.TotalPrice = ItemTotal(it.Quantity, it.UnitPrice, it.GST, it.Discount)
		total += it.TotalPrice
	}
	b.TotalAmount = round2(total)
}
