package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/idgen"
	"github.com/hms/hms/internal/platform/ist"
)

const (
	constraintServiceName   = "service_name_key"
	constraintBillID        = "bill_bill_id_key"
	constraintBillPatient   = "bill_patient_id_fkey"
	constraintBillAppt      = "bill_appointment_id_fkey"
	constraintItemService   = "bill_item_service_id_fkey"
	serviceColumns          = `id, name, description, price, gst, is_active, created_at, updated_at`
	billColumns             = `id, bill_id, patient_id, appointment_id, total_amount, payment_status, payment_mode, notes, created_by, created_at, updated_at`
	itemColumnsWithService  = `bi.id, bi.bill_id, bi.position, bi.service_id, s.name, bi.quantity, bi.unit_price, bi.gst, bi.discount, bi.total_price`
	itemsFromWithServiceSQL = ` FROM bill_item bi JOIN service s ON s.id = bi.service_id`
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func scanService(row pgx.Row) (*MedicalService, error) {
	var s MedicalService
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Price, &s.GST, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("service")
		}
		return nil, err
	}
	s.CreatedAt = ist.ToIST(s.CreatedAt)
	s.UpdatedAt = ist.ToIST(s.UpdatedAt)
	return &s, nil
}

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BillID, &b.PatientID, &b.AppointmentID, &b.TotalAmount, &b.PaymentStatus,
		&b.PaymentMode, &b.Notes, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("bill")
		}
		return nil, err
	}
	b.CreatedAt = ist.ToIST(b.CreatedAt)
	b.UpdatedAt = ist.ToIST(b.UpdatedAt)
	return &b, nil
}

func collectItem(row pgx.CollectableRow) (BillItem, error) {
	var it BillItem
	err := row.Scan(&it.ID, &it.BillID, &it.Position, &it.ServiceID, &it.ServiceName, &it.Quantity,
		&it.UnitPrice, &it.GST, &it.Discount, &it.TotalPrice)
	return it, err
}

func mapServiceError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok && constraint == constraintServiceName {
		return ErrServiceNameTaken
	}
	return err
}

func mapBillError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok && constraint == constraintBillID {
		return idgen.ErrCollision
	}
	if mapped := db.ActorViolation(err); mapped != nil {
		return mapped
	}
	if constraint, ok := db.IsForeignKeyViolation(err); ok {
		switch constraint {
		case constraintBillPatient:
			return apperr.Field("patient_id", "patient does not exist")
		case constraintBillAppt:
			return apperr.Field("appointment_id", "appointment does not exist")
		case constraintItemService:
			return apperr.Field("items", "service does not exist")
		}
		return apperr.Validation("referenced record does not exist", nil)
	}
	return err
}

// -- Services --

func (r *repoPG) CreateService(ctx context.Context, s *MedicalService) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO service (id, name, description, price, gst, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description, s.Price, s.GST, s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return mapServiceError(err)
	}
	s.CreatedAt = ist.ToIST(s.CreatedAt)
	s.UpdatedAt = ist.ToIST(s.UpdatedAt)
	return nil
}

func (r *repoPG) GetService(ctx context.Context, id uuid.UUID) (*MedicalService, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+serviceColumns+` FROM service WHERE id = $1`, id))
}

func (r *repoPG) UpdateService(ctx context.Context, s *MedicalService) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE service SET name=$2, description=$3, price=$4, gst=$5, is_active=$6, updated_at=now()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Name, s.Description, s.Price, s.GST, s.IsActive,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound("service")
		}
		return mapServiceError(err)
	}
	s.UpdatedAt = ist.ToIST(s.UpdatedAt)
	return nil
}

func (r *repoPG) DeleteService(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM service WHERE id = $1`, id)
	if err != nil {
		if _, ok := db.IsForeignKeyViolation(err); ok {
			return ErrServiceInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("service")
	}
	return nil
}

func (r *repoPG) ListServices(ctx context.Context, f ServiceFilter, limit, offset int) ([]*MedicalService, int, error) {
	q := db.NewQuery("service", serviceColumns)
	if f.Query != "" {
		q.Contains("name", f.Query)
	}
	if f.ActiveOnly {
		q.Eq("is_active", true)
	}
	q.OrderBy("name")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*MedicalService
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("service list: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// -- Bills --

func (r *repoPG) CreateBill(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bill (id, bill_id, patient_id, appointment_id, total_amount, payment_status, payment_mode, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		b.ID, b.BillID, b.PatientID, b.AppointmentID, b.TotalAmount, b.PaymentStatus, b.PaymentMode, b.Notes, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return mapBillError(err)
	}
	b.CreatedAt = ist.ToIST(b.CreatedAt)
	b.UpdatedAt = ist.ToIST(b.UpdatedAt)
	return r.insertItems(ctx, b)
}

func (r *repoPG) insertItems(ctx context.Context, b *Bill) error {
	batch := &pgx.Batch{}
	for i := range b.Items {
		it := &b.Items[i]
		it.ID = uuid.New()
		it.BillID = b.ID
		batch.Queue(`
			INSERT INTO bill_item (id, bill_id, position, service_id, quantity, unit_price, gst, discount, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, it.BillID, it.Position, it.ServiceID, it.Quantity, it.UnitPrice, it.GST, it.Discount, it.TotalPrice)
	}
	results := r.conn(ctx).SendBatch(ctx, batch)
	defer results.Close()
	for range b.Items {
		if _, err := results.Exec(); err != nil {
			return mapBillError(err)
		}
	}
	return nil
}

func (r *repoPG) GetBill(ctx context.Context, billID string) (*Bill, error) {
	b, err := scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billColumns+` FROM bill WHERE bill_id = $1`, billID))
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, []*Bill{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) attachItems(ctx context.Context, bills []*Bill) error {
	if len(bills) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(bills))
	byID := make(map[uuid.UUID]*Bill, len(bills))
	for i, b := range bills {
		ids[i] = b.ID
		b.Items = []BillItem{}
		byID[b.ID] = b
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemColumnsWithService+itemsFromWithServiceSQL+` WHERE bi.bill_id = ANY($1) ORDER BY bi.bill_id, bi.position`, ids)
	if err != nil {
		return err
	}
	items, err := pgx.CollectRows(rows, collectItem)
	if err != nil {
		return fmt.Errorf("bill items: %w", err)
	}
	for _, it := range items {
		if b, ok := byID[it.BillID]; ok {
			b.Items = append(b.Items, it)
		}
	}
	return nil
}

func (r *repoPG) UpdateBill(ctx context.Context, b *Bill) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE bill SET total_amount=$2, payment_status=$3, payment_mode=$4, notes=$5, updated_at=now()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.TotalAmount, b.PaymentStatus, b.PaymentMode, b.Notes,
	).Scan(&b.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound("bill")
		}
		return mapBillError(err)
	}
	b.UpdatedAt = ist.ToIST(b.UpdatedAt)
	return nil
}

// ReplaceItems deletes the stored items of b and inserts b.Items. Callers run
// it inside a transaction together with UpdateBill.
func (r *repoPG) ReplaceItems(ctx context.Context, b *Bill) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM bill_item WHERE bill_id = $1`, b.ID); err != nil {
		return err
	}
	return r.insertItems(ctx, b)
}

func (r *repoPG) ListBills(ctx context.Context, f BillFilter, limit, offset int) ([]*Bill, int, error) {
	q := db.NewQuery("bill", billColumns)
	if f.PatientID != nil {
		q.Eq("patient_id", *f.PatientID)
	}
	if f.PaymentStatus != "" {
		q.Eq("payment_status", f.PaymentStatus)
	}
	q.OrderBy("created_at DESC, bill_id DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	var bills []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("bill list: %w", err)
		}
		bills = append(bills, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachItems(ctx, bills); err != nil {
		return nil, 0, err
	}
	return bills, total, nil
}

func (r *repoPG) MaxBillID(ctx context.Context, prefix string) (string, error) {
	var id string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT bill_id FROM bill
		WHERE bill_id LIKE $1 || '%'
		ORDER BY length(bill_id) DESC, bill_id DESC
		LIMIT 1`, prefix).Scan(&id)
	if err != nil {
		if db.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}
