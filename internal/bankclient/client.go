// Package bankclient talks to the VBank open banking aggregator. New picks
// a LiveClient when credentials are configured and a FixtureClient otherwise.
package bankclient

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProviderVBank tags accounts and transactions imported from VBank.
const ProviderVBank = "vbank"

// AccountRecord is an account as reported by the bank. Optional fields are
// left zero when the bank omits them.
type AccountRecord struct {
	ExternalID string
	Name       string
	Product    string
	Currency   string
	Balance    *decimal.Decimal
	IBAN       string
	Status     string
	Type       string
}

// TransactionRecord is a transaction as reported by the bank. Dates are kept
// as the raw strings the bank sent.
type TransactionRecord struct {
	ExternalID           string
	Amount               decimal.Decimal
	Currency             string
	BookingDate          string
	ValueDate            string
	Description          string
	Category             string
	MerchantName         string
	CreditDebitIndicator string
	Status               string
}

// Client fetches accounts and transactions for the configured credentials.
type Client interface {
	Provider() string
	GetAccounts(ctx context.Context) ([]AccountRecord, error)
	GetTransactions(ctx context.Context, accountExternalID string, from, to *time.Time) ([]TransactionRecord, error)
}

// Config configures a LiveClient.
type Config struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	BankCode       string
	AuthTimeout    time.Duration
	RequestTimeout time.Duration
	// MaxRetries bounds retries of transient failures; zero means three.
	MaxRetries     uint64
	RetryBaseDelay time.Duration
}

// HasCredentials reports whether a live client can be built.
func (c Config) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// New returns a LiveClient when cfg carries credentials, otherwise a
// FixtureClient.
func New(cfg Config, httpClient *http.Client, log *zap.SugaredLogger) Client {
	if !cfg.HasCredentials() {
		log.Warn("VBank credentials not configured, using fixture bank client")
		return NewFixtureClient()
	}
	return NewLiveClient(cfg, httpClient, log)
}
