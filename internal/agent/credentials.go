package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"lucid-agent/internal/lucid"
)

// CredentialStatus records how the turn's credential was obtained, so callers
// and tests can distinguish an authenticated session from a degraded one.
type CredentialStatus int

const (
	// CredentialValid means the cached key passed the health check.
	CredentialValid CredentialStatus = iota

	// CredentialIssued means a new key was obtained from the service.
	CredentialIssued

	// CredentialDegraded means remote issuance failed and the workflow
	// continues on a locally minted token the server never saw.
	CredentialDegraded
)

func (s CredentialStatus) String() string {
	switch s {
	case CredentialValid:
		return "valid"
	case CredentialIssued:
		return "issued"
	case CredentialDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

type CredentialOutcome struct {
	Status CredentialStatus
	APIKey string
}

// EnsureCredential guarantees state carries a usable API key and returns a
// client authenticated with it. A cached key is validated with a health check
// and kept when healthy; otherwise a new key is minted and the client rebuilt.
// When the server is healthy and the key valid, no key is issued at all.
func (a *Agent) EnsureCredential(ctx context.Context, state *State) (CredentialOutcome, *lucid.Client) {
	if state.APIKey == "" {
		slog.Info("no api key cached, creating a new one")
		outcome := a.issueKey(ctx, state)
		return outcome, lucid.NewClient(a.baseURL, state.APIKey)
	}

	client := lucid.NewClient(a.baseURL, state.APIKey)

	health, err := client.HealthCheck(ctx)
	if err == nil && health.Healthy() {
		return CredentialOutcome{Status: CredentialValid, APIKey: state.APIKey}, client
	}

	if err != nil {
		slog.Warn("health check failed, re-issuing api key", "error", err)
	} else {
		slog.Warn("api key may not be valid, re-issuing", "status", health.Status)
	}

	outcome := a.issueKey(ctx, state)
	return outcome, lucid.NewClient(a.baseURL, state.APIKey)
}

func (a *Agent) issueKey(ctx context.Context, state *State) CredentialOutcome {
	userName := state.UserName
	if userName == "" {
		userName = DefaultUserName
	}

	// Key creation is the one call made without a credential.
	grant, err := lucid.NewClient(a.baseURL, "").CreateAPIKey(ctx, userName)
	if err != nil || grant.APIKey == "" {
		if err != nil {
			slog.Error("error creating api key, falling back to local token", "error", err)
		} else {
			slog.Error("no api key in response, falling back to local token")
		}

		state.APIKey = mintLocalToken()
		return CredentialOutcome{Status: CredentialDegraded, APIKey: state.APIKey}
	}

	state.APIKey = grant.APIKey
	if grant.UserID != "" {
		state.UserID = grant.UserID
	}

	slog.Info("created api key", "user_name", userName)
	return CredentialOutcome{Status: CredentialIssued, APIKey: grant.APIKey}
}

// mintLocalToken produces an opaque 64-hex-char credential so the workflow can
// proceed when the service cannot issue one. The server never sees this token.
func mintLocalToken() string {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(token)
}
