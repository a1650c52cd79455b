package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Switch is a single priced actuation channel on a device. The gpio fields
// are opaque to this server; they are frozen into the payment payload at
// request time and pushed verbatim to the hardware on settlement.
type Switch struct {
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	GpioPin      int     `json:"gpio_pin"`
	GpioDuration int     `json:"gpio_duration"`
	Lnurl        string  `json:"lnurl"`
	Label        string  `json:"label"`
}

// Payload is the actuation message sent to the hardware: "<pin>-<duration_ms>".
func (s *Switch) Payload() string {
	return fmt.Sprintf("%d-%d", s.GpioPin, s.GpioDuration)
}

// SwitchList persists as a JSON array column so switch ordering survives
// round-trips. Display order is insertion order.
type SwitchList []Switch

func (l SwitchList) Value() (driver.Value, error) {
	if l == nil {
		l = SwitchList{}
	}
	return json.Marshal(l)
}

func (l *SwitchList) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = SwitchList{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into SwitchList", src)
	}
}

type Device struct {
	ID             string     `db:"id" json:"id"`
	Key            string     `db:"key" json:"key"`
	Title          string     `db:"title" json:"title"`
	Wallet         string     `db:"wallet" json:"wallet"`
	Currency       string     `db:"currency" json:"currency"`
	AvailableStart string     `db:"available_start" json:"available_start"`
	AvailableStop  string     `db:"available_stop" json:"available_stop"`
	Timeout        int        `db:"timeout" json:"timeout"`
	Timezone       string     `db:"timezone" json:"timezone"`
	MaxPerDay      int        `db:"maxperday" json:"maxperday"`
	ClosedURL      *string    `db:"closed_url" json:"closed_url,omitempty"`
	WaitURL        *string    `db:"wait_url" json:"wait_url,omitempty"`
	Switches       SwitchList `db:"switches" json:"switches"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Cooldown is the per-switch minimum interval between settled payments.
func (d *Device) Cooldown() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// FindSwitch scans the ordered switch list. Devices carry a handful of
// switches at most, so a linear scan keeps insertion-order semantics.
func (d *Device) FindSwitch(switchID string) *Switch {
	if switchID == "" && len(d.Switches) > 0 {
		// Legacy single-switch links carry no switch id.
		return &d.Switches[0]
	}
	for i := range d.Switches {
		if d.Switches[i].ID == switchID {
			return &d.Switches[i]
		}
	}
	return nil
}

type CreateDeviceParams struct {
	Title          string     `json:"title"`
	Wallet         string     `json:"wallet"`
	Currency       string     `json:"currency"`
	AvailableStart string     `json:"available_start"`
	AvailableStop  string     `json:"available_stop"`
	Timeout        int        `json:"timeout"`
	Timezone       string     `json:"timezone"`
	MaxPerDay      int        `json:"maxperday"`
	ClosedURL      *string    `json:"closed_url"`
	WaitURL        *string    `json:"wait_url"`
	Switches       SwitchList `json:"switches"`
}
