package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for the credential lifecycle
type Metrics struct {
	AccountsCreated metric.Int64Counter
	LoginAttempts   metric.Int64Counter
	CodesIssued     metric.Int64Counter
	CodesExchanged  metric.Int64Counter
	TokensRefreshed metric.Int64Counter
	TokensVerified  metric.Int64Counter

	// Replay signals: a redemption lost to an earlier one.
	CodeReuseDetected  metric.Int64Counter
	TokenReuseDetected metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.AccountsCreated, "oauth.accounts.created", "Number of accounts created", "{account}"},
		{&m.LoginAttempts, "oauth.login.attempts", "Number of password logins", "{attempt}"},
		{&m.CodesIssued, "oauth.code.issued", "Number of authorization codes issued", "{code}"},
		{&m.CodesExchanged, "oauth.code.exchanged", "Number of authorization codes exchanged for tokens", "{exchange}"},
		{&m.TokensRefreshed, "oauth.token.refreshed", "Number of refresh token rotations", "{refresh}"},
		{&m.TokensVerified, "oauth.token.verified", "Number of access token verifications", "{verification}"},
		{&m.CodeReuseDetected, "oauth.security.code_reuse_detected", "Authorization codes presented after redemption", "{event}"},
		{&m.TokenReuseDetected, "oauth.security.token_reuse_detected", "Refresh tokens presented after rotation or by another client", "{event}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	return m, nil
}

func (m *Metrics) RecordAccountCreated(ctx context.Context, clientID string) {
	m.AccountsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

func (m *Metrics) RecordLogin(ctx context.Context, clientID string, success bool) {
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("success", success),
	))
}

func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string, confidential bool) {
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("confidential", confidential),
	))
}

func (m *Metrics) RecordCodeExchanged(ctx context.Context, clientID string, success bool) {
	m.CodesExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("success", success),
	))
}

func (m *Metrics) RecordTokenRefreshed(ctx context.Context, clientID string, success bool) {
	m.TokensRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("success", success),
	))
}

func (m *Metrics) RecordTokenVerified(ctx context.Context, valid bool) {
	m.TokensVerified.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", valid)))
}

func (m *Metrics) RecordCodeReuse(ctx context.Context, clientID string) {
	m.CodeReuseDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

func (m *Metrics) RecordTokenReuse(ctx context.Context, clientID string) {
	m.TokenReuseDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}
