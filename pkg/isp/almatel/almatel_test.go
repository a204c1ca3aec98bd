package almatel

import (
	"errors"
	"testing"
	"time"

	"github.com/user/isp-cabinet/pkg/isp"
)

// Sample markup based on the almatel.ru/lk profile page.
const sampleProfileHTML = `
<html>
<body>
<div class="lk__profile">
  <div class="lk__profile--name_act">Договор&nbsp;№&nbsp;8001234 | г. Москва, ул. Ленина, д. 1, кв. 2</div>
  <div class="lk__profile-balance">
    <span class="question-block-value">850,50</span>
  </div>
  <div class="lk__profile-recommend">
    Рекомендуемый платеж: <span id="need-sum">500</span> руб.
  </div>
  <div class="lk__profile-payment">
    <span class="question-block-value">500</span>
  </div>
  <div class="lk__profile-payment">
    <span class="question-block-value">120</span>
  </div>
  <div class="lk__profile-date">
    <span class="question-block-value">01.10.2025</span>
  </div>
</div>
<div id="internet">
  <div class="lk__billing-content">
    <div class="lk__billing-content-item-row">
      <span class="lk__billing--val">Гигабит 500</span>
      <span class="lk__billing--val">Активен</span>
      <span class="lk__billing--val">500.00 руб./мес</span>
      <span class="lk__billing--val">500 Мбит/с</span>
    </div>
  </div>
</div>
</body>
</html>
`

func TestNormalize(t *testing.T) {
	c := New()
	snap, err := c.Normalize(rawPayload{profileHTML: sampleProfileHTML})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if snap.AccountCode != "8001234" {
		t.Errorf("account code = %q, want %q", snap.AccountCode, "8001234")
	}
	if snap.Address != "г. Москва, ул. Ленина, д. 1, кв. 2" {
		t.Errorf("address = %q", snap.Address)
	}
	if snap.CurrentBalance != 850.50 {
		t.Errorf("balance = %v, want 850.50", snap.CurrentBalance)
	}
	if snap.PaymentSuggested == nil || *snap.PaymentSuggested != 500 {
		t.Errorf("payment suggested = %v, want 500", snap.PaymentSuggested)
	}
	if snap.Bonuses != "120" {
		t.Errorf("bonuses = %q, want %q", snap.Bonuses, "120")
	}
	want := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	if snap.PaymentUntil == nil || !snap.PaymentUntil.Equal(want) {
		t.Errorf("payment until = %v, want %v", snap.PaymentUntil, want)
	}
	if snap.TariffName != "Гигабит 500" {
		t.Errorf("tariff name = %q", snap.TariffName)
	}
	if snap.TariffMonthlyCost == nil || *snap.TariffMonthlyCost != 500 {
		t.Errorf("monthly cost = %v, want 500", snap.TariffMonthlyCost)
	}
	if snap.TariffSpeed == nil || *snap.TariffSpeed != 500 {
		t.Errorf("tariff speed = %v, want 500", snap.TariffSpeed)
	}
	if snap.TariffSpeedUnit != "Мбит/с" {
		t.Errorf("speed unit = %q", snap.TariffSpeedUnit)
	}
}

func TestNormalizeMissingAccountCode(t *testing.T) {
	c := New()
	_, err := c.Normalize(rawPayload{profileHTML: "<html></html>"})
	var perr *isp.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if perr.Field != "account_code" {
		t.Errorf("field = %q", perr.Field)
	}
}

func TestCapabilities(t *testing.T) {
	caps := New().Capabilities()
	if caps.DerivePaymentSuggested {
		t.Error("portal reports its own suggested payment; derivation must stay off")
	}
}

func TestRegistration(t *testing.T) {
	for _, id := range []string{"almatel", "2kom", "2com"} {
		d, ok := isp.Resolve(id)
		if !ok {
			t.Fatalf("identifier %q not registered", id)
		}
		if d.Title != "Almatel" {
			t.Errorf("%q resolved to %q", id, d.Title)
		}
	}
}
