package isp

import "time"

// DefaultCurrency is assumed when a portal does not state one explicitly.
const DefaultCurrency = "руб."

// Credentials carry the portal login for one account. The engine passes
// them through to the connector unexamined.
type Credentials struct {
	Username string
	Password string
}

// Snapshot is the normalized, provider-independent record of one
// account's current state. It is only ever built from a fully parsed
// portal payload; a partial parse fails the poll instead of producing
// a partial snapshot.
type Snapshot struct {
	// AccountCode is the provider-assigned account identifier and the
	// stable key under which attributes are published.
	AccountCode string `json:"account_code"`

	CurrentBalance float64 `json:"current_balance"`
	Currency       string  `json:"currency,omitempty"`

	TariffName      string   `json:"tariff_name,omitempty"`
	TariffSpeed     *float64 `json:"tariff_speed,omitempty"`
	TariffSpeedUnit string   `json:"tariff_speed_unit,omitempty"`

	TariffMonthlyCost *float64 `json:"tariff_monthly_cost,omitempty"`

	PaymentRequired  *float64   `json:"payment_required,omitempty"`
	PaymentSuggested *float64   `json:"payment_suggested,omitempty"`
	PaymentUntil     *time.Time `json:"payment_until,omitempty"`

	Bonuses    string `json:"bonuses,omitempty"`
	Address    string `json:"address,omitempty"`
	ClientName string `json:"client_name,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Float returns a pointer to v, for the optional snapshot fields.
func Float(v float64) *float64 { return &v }
