package ist

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Date is a calendar day with no time of day, exchanged as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate returns the IST calendar day of t.
func NewDate(t time.Time) Date {
	t = ToIST(t)
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = Date{t}
	return nil
}

// Scan implements sql.Scanner so pgx can read a date column into a Date.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		// date columns carry no zone; keep the calendar fields.
		*d = Date{time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, Location)}
	case string:
		t, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = Date{t}
	default:
		return fmt.Errorf("cannot scan %T into ist.Date", src)
	}
	return nil
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}
