package bankclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// flexAmount accepts 150000.00, "150000.00" and {"amount": "150000.00", "currency": "RUB"}.
type flexAmount struct {
	Value    *decimal.Decimal
	Currency string
}

func (f *flexAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Amount   json.RawMessage `json:"amount"`
			Currency string          `json:"currency"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		f.Currency = obj.Currency
		if len(obj.Amount) == 0 {
			return nil
		}
		data = obj.Amount
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("amount %s: %w", data, err)
	}
	f.Value = &d
	return nil
}

type wireAccount struct {
	ID        string     `json:"id"`
	AccountID string     `json:"accountId"`
	Name      string     `json:"name"`
	Nickname  string     `json:"nickname"`
	Product   string     `json:"product"`
	Currency  string     `json:"currency"`
	Balance   flexAmount `json:"balance"`
	IBAN      string     `json:"iban"`
	Status    string     `json:"status"`
	Type      string     `json:"type"`
}

func (w wireAccount) record() AccountRecord {
	rec := AccountRecord{
		ExternalID: firstNonEmpty(w.ID, w.AccountID),
		Name:       firstNonEmpty(w.Name, w.Nickname),
		Product:    w.Product,
		Currency:   firstNonEmpty(w.Currency, w.Balance.Currency),
		Balance:    w.Balance.Value,
		IBAN:       w.IBAN,
		Status:     w.Status,
		Type:       w.Type,
	}
	return rec
}

type wireTransaction struct {
	ID                    string     `json:"id"`
	TransactionID         string     `json:"transactionId"`
	Amount                flexAmount `json:"amount"`
	Currency              string     `json:"currency"`
	BookingDate           string     `json:"bookingDate"`
	BookingDateTime       string     `json:"bookingDateTime"`
	ValueDate             string     `json:"valueDate"`
	ValueDateTime         string     `json:"valueDateTime"`
	Description           string     `json:"description"`
	RemittanceInformation string     `json:"remittanceInformation"`
	Category              string     `json:"category"`
	MerchantName          string     `json:"merchantName"`
	CreditDebitIndicator  string     `json:"creditDebitIndicator"`
	Status                string     `json:"status"`
}

func (w wireTransaction) record() TransactionRecord {
	rec := TransactionRecord{
		ExternalID:           firstNonEmpty(w.ID, w.TransactionID),
		Currency:             firstNonEmpty(w.Currency, w.Amount.Currency),
		BookingDate:          firstNonEmpty(w.BookingDate, w.BookingDateTime),
		ValueDate:            firstNonEmpty(w.ValueDate, w.ValueDateTime),
		Description:          firstNonEmpty(w.Description, w.RemittanceInformation),
		Category:             w.Category,
		MerchantName:         w.MerchantName,
		CreditDebitIndicator: w.CreditDebitIndicator,
		Status:               w.Status,
	}
	if w.Amount.Value != nil {
		rec.Amount = *w.Amount.Value
	}
	return rec
}

// accountsPayload accepts {"accounts": [...]} and {"data": {"account": [...]}}.
type accountsPayload struct {
	Accounts []wireAccount `json:"accounts"`
	Data     struct {
		Account []wireAccount `json:"account"`
	} `json:"data"`
}

func (p accountsPayload) records() []AccountRecord {
	src := p.Accounts
	if len(src) == 0 {
		src = p.Data.Account
	}
	out := make([]AccountRecord, 0, len(src))
	for _, a := range src {
		rec := a.record()
		if rec.ExternalID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// transactionsPayload accepts {"transactions": [...]} and {"data": {"transaction": [...]}}.
type transactionsPayload struct {
	Transactions []wireTransaction `json:"transactions"`
	Data         struct {
		Transaction []wireTransaction `json:"transaction"`
	} `json:"data"`
}

func (p transactionsPayload) records() []TransactionRecord {
	src := p.Transactions
	if len(src) == 0 {
		src = p.Data.Transaction
	}
	out := make([]TransactionRecord, 0, len(src))
	for _, t := range src {
		rec := t.record()
		if rec.ExternalID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	ExpiresIn   int    `json:"expires_in"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
