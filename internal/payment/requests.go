package payment

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ResourceID accepts gateway identifiers encoded either as JSON numbers or strings.
type ResourceID string

func (id *ResourceID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ResourceID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ResourceID(n.String())
	return nil
}

func (id ResourceID) String() string { return string(id) }

type PixRequest struct {
	Amount      decimal.Decimal
	PayerEmail  string
	PayerTaxID  string
	Description string
}

func (r PixRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if err := validateEmail(r.PayerEmail); err != nil {
		return err
	}
	if err := validateTaxID(r.PayerTaxID); err != nil {
		return err
	}
	return validateDescription(r.Description)
}

type BoletoAddress struct {
	ZipCode      string `json:"zip_code"`
	StreetName   string `json:"street_name"`
	StreetNumber string `json:"street_number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	FederalUnit  string `json:"federal_unit"`
}

type BoletoRequest struct {
	Amount         decimal.Decimal
	PayerEmail     string
	PayerFirstName string
	PayerLastName  string
	PayerTaxID     string
	Address        BoletoAddress
	Description    string
	DaysToExpire   int
}

func (r BoletoRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if err := validateEmail(r.PayerEmail); err != nil {
		return err
	}
	if strings.TrimSpace(r.PayerFirstName) == "" {
		return invalid("payer_first_name", "must not be empty")
	}
	if strings.TrimSpace(r.PayerLastName) == "" {
		return invalid("payer_last_name", "must not be empty")
	}
	if err := validateTaxID(r.PayerTaxID); err != nil {
		return err
	}
	if err := validateDescription(r.Description); err != nil {
		return err
	}

	required := []struct{ name, value string }{
		{"zip_code", r.Address.ZipCode},
		{"street_name", r.Address.StreetName},
		{"neighborhood", r.Address.Neighborhood},
		{"city", r.Address.City},
		{"federal_unit", r.Address.FederalUnit},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return invalid("address."+field.name, "required address field is missing")
		}
	}

	if r.DaysToExpire < 1 || r.DaysToExpire > 30 {
		return invalid("days_to_expire", "must be between 1 and 30, got %d", r.DaysToExpire)
	}
	return nil
}

type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type Cardholder struct {
	Name           string         `json:"name"`
	Identification Identification `json:"identification"`
}

type CardData struct {
	CardNumber      string     `json:"card_number"`
	ExpirationMonth string     `json:"expiration_month"`
	ExpirationYear  string     `json:"expiration_year"`
	SecurityCode    string     `json:"security_code"`
	Cardholder      Cardholder `json:"cardholder"`
}

type CardRequest struct {
	Amount       decimal.Decimal
	PayerEmail   string
	PayerTaxID   string
	Card         CardData
	Installments int
	Description  string
}

func (r CardRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if err := validateEmail(r.PayerEmail); err != nil {
		return err
	}
	if err := validateTaxID(r.PayerTaxID); err != nil {
		return err
	}
	if err := validateDescription(r.Description); err != nil {
		return err
	}

	required := []struct{ name, value string }{
		{"card_number", r.Card.CardNumber},
		{"expiration_month", r.Card.ExpirationMonth},
		{"expiration_year", r.Card.ExpirationYear},
		{"security_code", r.Card.SecurityCode},
		{"cardholder", r.Card.Cardholder.Name},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return invalid("card."+field.name, "required card field is missing")
		}
	}

	if r.Installments < 1 || r.Installments > 24 {
		return invalid("installments", "must be between 1 and 24, got %d", r.Installments)
	}
	return nil
}

type PreferenceItem struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	CurrencyID string          `json:"currency_id"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

func validatePreferenceItems(items []PreferenceItem) error {
	if len(items) == 0 {
		return invalid("items", "must not be empty")
	}
	for i, item := range items {
		var missing []string
		if strings.TrimSpace(item.ID) == "" {
			missing = append(missing, "id")
		}
		if strings.TrimSpace(item.Title) == "" {
			missing = append(missing, "title")
		}
		if item.Quantity <= 0 {
			missing = append(missing, "quantity")
		}
		if strings.TrimSpace(item.CurrencyID) == "" {
			missing = append(missing, "currency_id")
		}
		if !item.UnitPrice.IsPositive() {
			missing = append(missing, "unit_price")
		}
		if len(missing) > 0 {
			return invalid("items", "item %d is missing: %s", i, strings.Join(missing, ", "))
		}
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	return nil
}

func validateEmail(email string) error {
	if !strings.Contains(email, "@") {
		return invalid("payer_email", "%q is not an email address", email)
	}
	return nil
}

func validateTaxID(taxID string) error {
	if len(normalizeTaxID(taxID)) != 11 {
		return invalid("payer_tax_id", "CPF must have 11 digits")
	}
	return nil
}

func validateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return invalid("description", "must not be empty")
	}
	return nil
}

func normalizeTaxID(taxID string) string {
	return strings.NewReplacer(".", "", "-", "").Replace(strings.TrimSpace(taxID))
}
