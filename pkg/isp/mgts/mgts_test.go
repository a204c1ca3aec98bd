package mgts

import (
	"errors"
	"testing"
	"time"

	"github.com/user/isp-cabinet/pkg/isp"
)

// Sample markup based on the lk.mgts.ru cabinet home page.
const sampleMainHTML = `
<html>
<body>
<div class="account-info_title">
  <span>ИВАНОВ</span> <span>ИВАН</span> <span>ИВАНОВИЧ</span>
</div>
<div class="account-info_balance">
  <span class="account-info_balance_value">1 234,56 руб.</span>
</div>
<div class="account-info_item">
  <span class="account-info_item_value">+7 (495) 123-45-67</span>
</div>
<div class="account-info_item">
  <span class="account-info_item_value">5012345678</span>
</div>
<script>
mgts.data.widgets = [{"relatedPageUrl":"/tv/","value":"Цифровое ТВ"},{"relatedPageUrl":"/internet/","value":"Домашний интернет - 200 Мбит/с"}];
</script>
</body>
</html>
`

// Sample markup based on the account-status.aspx payments table.
const sampleStatusHTML = `
<table>
<tr><td>Ежемесячный платеж</td><td class="right">500,00</td></tr>
<tr><td>К оплате</td><td class="right">-650,00</td></tr>
</table>
<div class="comment">Оплатить до 25.12.2025г</div>
`

const sampleLoginHTML = `
<form id="login" action="/amserver/UI/Login" method="post">
<input type="hidden" name="goto" value="aHR0cHM6Ly9say5tZ3RzLnJ1">
<input type="hidden" name="gotoOnFail" value="">
<input type="hidden" name="service" value="login">
<input type="text" name="IDToken1" value="">
</form>
`

func TestNormalize(t *testing.T) {
	c := New()
	snap, err := c.Normalize(rawPayload{mainHTML: sampleMainHTML, statusHTML: sampleStatusHTML})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if snap.AccountCode != "5012345678" {
		t.Errorf("account code = %q, want %q", snap.AccountCode, "5012345678")
	}
	if snap.CurrentBalance != 1234.56 {
		t.Errorf("balance = %v, want 1234.56", snap.CurrentBalance)
	}
	if snap.Currency != isp.DefaultCurrency {
		t.Errorf("currency = %q", snap.Currency)
	}
	if snap.ClientName != "Иванов Иван Иванович" {
		t.Errorf("client name = %q", snap.ClientName)
	}
	if snap.TariffName != "Домашний интернет" {
		t.Errorf("tariff name = %q", snap.TariffName)
	}
	if snap.TariffSpeed == nil || *snap.TariffSpeed != 200 {
		t.Errorf("tariff speed = %v, want 200", snap.TariffSpeed)
	}
	if snap.TariffSpeedUnit != "Мбит/с" {
		t.Errorf("speed unit = %q", snap.TariffSpeedUnit)
	}
	if snap.TariffMonthlyCost == nil || *snap.TariffMonthlyCost != 500 {
		t.Errorf("monthly cost = %v, want 500", snap.TariffMonthlyCost)
	}
	if snap.PaymentRequired == nil || *snap.PaymentRequired != 650 {
		t.Errorf("payment required = %v, want 650", snap.PaymentRequired)
	}
	want := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	if snap.PaymentUntil == nil || !snap.PaymentUntil.Equal(want) {
		t.Errorf("payment until = %v, want %v", snap.PaymentUntil, want)
	}
}

func TestNormalizePositiveLedgerMeansNothingOwed(t *testing.T) {
	status := `
<tr><td class="right">500,00</td></tr>
<tr><td class="right">120,00</td></tr>
`
	c := New()
	snap, err := c.Normalize(rawPayload{mainHTML: sampleMainHTML, statusHTML: status})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if snap.PaymentRequired == nil || *snap.PaymentRequired != 0 {
		t.Errorf("payment required = %v, want 0", snap.PaymentRequired)
	}
}

func TestNormalizeMissingAccountCode(t *testing.T) {
	c := New()
	_, err := c.Normalize(rawPayload{mainHTML: "<html></html>", statusHTML: sampleStatusHTML})
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
	if form.Get("goto") != "aHR0cHM6Ly9say5tZ3RzLnJ1" {
		t.Errorf("goto = %q", form.Get("goto"))
	}
	if form.Get("service") != "login" {
		t.Errorf("service = %q", form.Get("service"))
	}
}

func TestParseLoginFormMissing(t *testing.T) {
	if _, err := parseLoginForm("<html><body>maintenance</body></html>"); err == nil {
		t.Fatal("expected error for page without login form")
	}
}

func TestRegistration(t *testing.T) {
	for _, id := range []string{"mgts", "mts"} {
		d, ok := isp.Resolve(id)
		if !ok {
			t.Fatalf("identifier %q not registered", id)
		}
		if d.Title != "MGTS" {
			t.Errorf("%q resolved to %q", id, d.Title)
		}
		if d.New() == nil {
			t.Errorf("%q factory returned nil", id)
		}
	}
}
