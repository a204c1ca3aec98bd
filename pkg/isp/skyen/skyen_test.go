package skyen

import (
	"errors"
	"testing"
	"time"

	"github.com/user/isp-cabinet/pkg/isp"
)

// Sample markup based on the lk.sky-en.ru cabinet dashboard.
const sampleDashboardHTML = `
<html>
<body>
<div class="user-data">Абонент: <b>Сидоров Сидор Сидорович</b></div>
<div class="user-data">Договор: <b>12345</b></div>
<div class="user-data">Баланс: <b>-150.00</b> <small>Оплатить до 05.10.2025</small></div>
<div class="user-data">Рекомендуемый платеж: <b>650.00</b></div>
<div class="tarif-current">
  <p>Скорость 100: 500 руб.</p>
  <p>Следующее списание 01.10.2025</p>
</div>
</body>
</html>
`

const sampleLoginHTML = `
<div class="ca-login-panel">
<form method="post" action="/cabinet/welcome-2/">
<input type="hidden" name="module_token_unique" value="a1b2c3">
<input type="hidden" name="module_token" value="d4e5f6">
<input type="text" name="login-field" value="">
<input type="password" name="pass-field" value="">
</form>
</div>
`

func TestNormalize(t *testing.T) {
	c := New()
	snap, err := c.Normalize(rawPayload{dashboardHTML: sampleDashboardHTML})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if snap.ClientName != "Сидоров Сидор Сидорович" {
		t.Errorf("client name = %q", snap.ClientName)
	}
	if snap.AccountCode != "12345" {
		t.Errorf("account code = %q, want %q", snap.AccountCode, "12345")
	}
	if snap.CurrentBalance != -150 {
		t.Errorf("balance = %v, want -150", snap.CurrentBalance)
	}
	want := time.Date(2025, 10, 5, 0, 0, 0, 0, time.UTC)
	if snap.PaymentUntil == nil || !snap.PaymentUntil.Equal(want) {
		t.Errorf("payment until = %v, want %v", snap.PaymentUntil, want)
	}
	if snap.PaymentSuggested == nil || *snap.PaymentSuggested != 650 {
		t.Errorf("payment suggested = %v, want 650", snap.PaymentSuggested)
	}
	if snap.TariffName != "Скорость 100" {
		t.Errorf("tariff name = %q", snap.TariffName)
	}
	if snap.TariffSpeed == nil || *snap.TariffSpeed != 100 {
		t.Errorf("tariff speed = %v, want 100", snap.TariffSpeed)
	}
	if snap.TariffMonthlyCost == nil || *snap.TariffMonthlyCost != 500 {
		t.Errorf("monthly cost = %v, want 500", snap.TariffMonthlyCost)
	}
}

func TestNormalizeMissingBlocks(t *testing.T) {
	c := New()
	_, err := c.Normalize(rawPayload{dashboardHTML: "<html></html>"})
	var perr *isp.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if perr.Field != "account_code" {
		t.Errorf("field = %q", perr.Field)
	}
}

func TestParseLoginForm(t *testing.T) {
	form, err := parseLoginForm(sampleLoginHTML)
	if err != nil {
		t.Fatalf("parseLoginForm failed: %v", err)
	}
	if form.Get("module_token") != "d4e5f6" {
		t.Errorf("module_token = %q", form.Get("module_token"))
	}
	if form.Get("module_token_unique") != "a1b2c3" {
		t.Errorf("module_token_unique = %q", form.Get("module_token_unique"))
	}
}

func TestRegistration(t *testing.T) {
	for _, id := range []string{"sky_engineering", "sky_en"} {
		d, ok := isp.Resolve(id)
		if !ok {
			t.Fatalf("identifier %q not registered", id)
		}
		if d.Title != "Sky Engineering" {
			t.Errorf("%q resolved to %q", id, d.Title)
		}
	}
}
