package sevensky

import (
	"errors"
	"testing"

	"github.com/user/isp-cabinet/pkg/isp"
)

// Sample markup based on the lk.seven-sky.net index page.
const sampleMainHTML = `
<html>
<body>
<div id="info-header-1">Договор № 74123</div>
<div class="info-table">
  <div class="info-table-content">
    <span>315.20</span> <span>руб.</span>
  </div>
</div>
<div class="block-message">
  Для продления доступа внесите не менее <strong>184.80 руб.</strong> до конца месяца.
</div>
<div class="tarif">
  Тариф «Домашний 100», скорость до 100 Мбит/с
</div>
<div class="price">500 руб./мес</div>
</body>
</html>
`

// Sample markup based on the settings.jsp personal data table.
const sampleSettingsHTML = `
<table class="data-table">
<tr> <td>ФИО</td> <td>Петров Петр Петрович</td> </tr>
<tr> <td>Адрес</td> <td>г. Москва, Тверская ул., д. 7</td> </tr>
<tr> <td>Телефон</td> <td>+7 (916) 000-00-00</td> </tr>
</table>
`

func TestNormalize(t *testing.T) {
	c := New()
	snap, err := c.Normalize(rawPayload{mainHTML: sampleMainHTML, settingsHTML: sampleSettingsHTML})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if snap.AccountCode != "74123" {
		t.Errorf("account code = %q, want %q", snap.AccountCode, "74123")
	}
	if snap.CurrentBalance != 315.20 {
		t.Errorf("balance = %v, want 315.20", snap.CurrentBalance)
	}
	if snap.Currency != "руб." {
		t.Errorf("currency = %q", snap.Currency)
	}
	if snap.PaymentRequired == nil || *snap.PaymentRequired != 184.80 {
		t.Errorf("payment required = %v, want 184.80", snap.PaymentRequired)
	}
	if snap.TariffName != "Домашний 100" {
		t.Errorf("tariff name = %q", snap.TariffName)
	}
	if snap.TariffSpeed == nil || *snap.TariffSpeed != 100 {
		t.Errorf("tariff speed = %v, want 100", snap.TariffSpeed)
	}
	if snap.TariffSpeedUnit != "Мбит/с" {
		t.Errorf("speed unit = %q", snap.TariffSpeedUnit)
	}
	if snap.TariffMonthlyCost == nil || *snap.TariffMonthlyCost != 500 {
		t.Errorf("monthly cost = %v, want 500", snap.TariffMonthlyCost)
	}
	if snap.ClientName != "Петров Петр Петрович" {
		t.Errorf("client name = %q", snap.ClientName)
	}
	if snap.Address != "г. Москва, Тверская ул., д. 7" {
		t.Errorf("address = %q", snap.Address)
	}
}

func TestNormalizeNoPaymentBanner(t *testing.T) {
	main := `
<div id="info-header-1">Договор № 74123</div>
<div class="info-table-content"><span>1000.00</span> <span>руб.</span></div>
`
	c := New()
	snap, err := c.Normalize(rawPayload{mainHTML: main, settingsHTML: ""})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if snap.PaymentRequired != nil {
		t.Errorf("payment required = %v, want nil", snap.PaymentRequired)
	}
}

func TestNormalizeMissingBalance(t *testing.T) {
	c := New()
	_, err := c.Normalize(rawPayload{mainHTML: `<div id="info-header-1">№ 74123</div>`, settingsHTML: ""})
	var perr *isp.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if perr.Field != "current_balance" {
		t.Errorf("field = %q", perr.Field)
	}
}

func TestRegistration(t *testing.T) {
	for _, id := range []string{"sevensky", "gorcom"} {
		d, ok := isp.Resolve(id)
		if !ok {
			t.Fatalf("identifier %q not registered", id)
		}
		if d.Title != "SevenSky" {
			t.Errorf("%q resolved to %q", id, d.Title)
		}
	}
}
