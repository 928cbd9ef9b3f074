// Package gate is the webhook security and idempotency gate. Every inbound
// delivery passes three ordered checks before any content processing:
// signature verification, timestamp/replay bounds, and a conditional receipt
// insert that de-duplicates at-least-once deliveries.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/logfields"
)

// ErrNoSecret is returned by secret sources when a provider has no
// configured signing secret.
var ErrNoSecret = errors.New("no signing secret configured")

// Outcome classifies the gate's verdict on a delivery.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeReplay    Outcome = "replay"
	OutcomeRejected  Outcome = "rejected"
)

// Decision is the gate's structured verdict. EventID is the idempotency key
// derived for the delivery (vendor-assigned or body hash).
type Decision struct {
	Accept  bool
	Outcome Outcome
	Reason  string
	EventID string
}

// ReceiptWriter is the conditional-create operation of the durable store.
type ReceiptWriter interface {
	PutReceipt(ctx context.Context, provider, eventID, eventHash string, ttl time.Duration) (created bool, err error)
}

// Config tunes the gate's policies.
type Config struct {
	// MaxTimestampSkew bounds the absolute difference between the delivery
	// timestamp and now. Default 5 minutes.
	MaxTimestampSkew time.Duration
	// ReceiptTTL is how long idempotency receipts are retained. Default 24h.
	ReceiptTTL time.Duration
	// AllowUnknownProviders lets deliveries from providers without a known
	// signature scheme pass unverified. A documented weak point: default off.
	AllowUnknownProviders bool
}

// Gate performs the ordered security and idempotency checks.
type Gate struct {
	secrets  SecretSource
	receipts ReceiptWriter
	known    func(provider string) bool
	cfg      Config
	logger   *slog.Logger
}

// New constructs a Gate. known reports whether a provider name is registered
// with the adapter registry; secrets is typically a SecretCache.
func New(secrets SecretSource, receipts ReceiptWriter, known func(string) bool, cfg Config, logger *slog.Logger) *Gate {
	if cfg.MaxTimestampSkew <= 0 {
		cfg.MaxTimestampSkew = 5 * time.Minute
	}
	if cfg.ReceiptTTL <= 0 {
		cfg.ReceiptTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{secrets: secrets, receipts: receipts, known: known, cfg: cfg, logger: logger}
}

// Check runs the gate's checks in order, each able to short-circuit:
// signature, timestamp skew, idempotency. No content understanding happens
// here; the decision only says whether processing may proceed.
func (g *Gate) Check(ctx context.Context, provider string, body []byte, headers http.Header) Decision {
	if d, ok := g.checkSignature(ctx, provider, body, headers); !ok {
		return d
	}
	if d, ok := g.checkTimestamp(provider, headers); !ok {
		return d
	}
	return g.checkIdempotency(ctx, provider, body, headers)
}

func (g *Gate) checkSignature(ctx context.Context, provider string, body []byte, headers http.Header) (Decision, bool) {
	if !g.known(provider) {
		if g.cfg.AllowUnknownProviders {
			g.logger.Warn("Accepting webhook from unknown provider without verification",
				logfields.Provider(provider))
			return Decision{}, true
		}
		return Decision{Outcome: OutcomeRejected, Reason: "unknown provider"}, false
	}

	secret, err := g.secrets.Secret(ctx, provider)
	if err != nil {
		// Missing or unresolvable secret fails closed: an unverifiable
		// delivery from a known provider is never processed.
		g.logger.Warn("Signing secret unavailable, rejecting delivery",
			logfields.Provider(provider), logfields.Error(err))
		return Decision{Outcome: OutcomeRejected, Reason: "signing secret unavailable"}, false
	}

	if !verifySignature(provider, body, headers, secret) {
		return Decision{Outcome: OutcomeRejected, Reason: "signature verification failed"}, false
	}
	return Decision{}, true
}

func (g *Gate) checkTimestamp(provider string, headers http.Header) (Decision, bool) {
	ts, ok := extractTimestamp(provider, headers)
	if !ok {
		// Cannot validate what was not sent; allow but leave a trace.
		g.logger.Debug("Webhook carries no delivery timestamp", logfields.Provider(provider))
		return Decision{}, true
	}
	skew := time.Since(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > g.cfg.MaxTimestampSkew {
		return Decision{Outcome: OutcomeReplay, Reason: "delivery timestamp outside allowed skew"}, false
	}
	return Decision{}, true
}

func (g *Gate) checkIdempotency(ctx context.Context, provider string, body []byte, headers http.Header) Decision {
	eventID := deliveryID(provider, headers)
	hash := bodyHash(body)
	if eventID == "" {
		eventID = hash
	}

	created, err := g.receipts.PutReceipt(ctx, provider, eventID, hash, g.cfg.ReceiptTTL)
	if err != nil {
		// Store failure fails open: availability is preferred over strict
		// dedup when the infrastructure is degraded.
		g.logger.Error("Receipt store unavailable, processing without dedup",
			logfields.Provider(provider), logfields.EventID(eventID), logfields.Error(err))
		return Decision{Accept: true, Outcome: OutcomeAccepted, Reason: "idempotency check skipped (store failure)", EventID: eventID}
	}
	if !created {
		return Decision{Outcome: OutcomeDuplicate, Reason: "delivery already processed", EventID: eventID}
	}
	return Decision{Accept: true, Outcome: OutcomeAccepted, Reason: "accepted", EventID: eventID}
}
