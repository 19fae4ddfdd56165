// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/maas-billing-tests/internal/constable"
)

// ErrMintUnavailable is returned when no endpoint/body combination yielded a
// token. Callers either fall back to the operator token or fail the test.
const ErrMintUnavailable = constable.Error("token minting is not available on this deployment")

// tokenEndpoints are the candidate mint/revoke paths, in probe order. Both are
// kept on purpose: deployed gateways are split between the two shapes.
var tokenEndpoints = []string{"/v1/tokens", "/tokens"} //nolint:gochecknoglobals

type mintedTokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	Expiration  string `json:"expiration"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// mintBodyVariants returns the request bodies to try for each endpoint, in
// order. The nil entry means "no body at all", which differs on the wire from
// an empty JSON object and is accepted by some older gateways only.
func mintBodyVariants(ttl time.Duration) []any {
	minutes := fmt.Sprintf("%dm", int(ttl.Minutes()))
	return []any{
		map[string]string{"ttl": minutes},
		map[string]string{"expiration": minutes},
		map[string]string{},
		nil,
	}
}

// MintToken attempts to mint a short-lived service token using the operator
// token, probing both candidate endpoints and all body variants in order. The
// first 200/201 response with a token or access_token field wins. A 404 or 405
// means the endpoint shape is wrong, so remaining body variants for that
// endpoint are skipped. Exhausting everything returns ErrMintUnavailable.
func MintToken(ctx context.Context, client *http.Client, baseURL, operatorToken string, ttl time.Duration) (string, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	for _, endpoint := range tokenEndpoints {
		url := baseURL + endpoint
		for _, body := range mintBodyVariants(ttl) {
			attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			resp, respBody, err := PostJSON(attemptCtx, client, url, operatorToken, body)
			cancel()
			if err != nil {
				// Transport failures are not conclusive about the endpoint shape.
				continue
			}

			if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
				var minted mintedTokenResponse
				if err := json.Unmarshal(respBody, &minted); err == nil {
					if token := minted.tokenValue(); token != "" {
						return token, nil
					}
				}
			}

			if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
				break // endpoint not present or method not allowed, try next endpoint
			}
		}
	}

	return "", ErrMintUnavailable
}

func (r *mintedTokenResponse) tokenValue() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

// NamedToken is the result of minting a token with an explicit name, which
// additionally materializes a metadata secret on the cluster.
type NamedToken struct {
	Name      string
	Token     string
	ExpiresAt int64
}

// MintNamedToken mints a named token via the primary endpoint and requires a
// 201 with a token in the response. Named minting has a single canonical shape,
// so there is no probing here.
func MintNamedToken(t *testing.T, ctx context.Context, client *http.Client, baseURL, operatorToken, name, expiration string) *NamedToken {
	t.Helper()

	url := strings.TrimRight(baseURL, "/") + "/v1/tokens"
	resp, body, err := PostJSON(ctx, client, url, operatorToken, map[string]string{
		"expiration": expiration,
		"name":       name,
	})
	require.NoError(t, err, "named token mint request failed")
	require.Equalf(t, http.StatusCreated, resp.StatusCode,
		"failed to create named token: %s", TruncateBody(body))

	var minted mintedTokenResponse
	require.NoError(t, json.Unmarshal(body, &minted))
	require.NotEmptyf(t, minted.Token, "token not found in response: %s", TruncateBody(body))

	return &NamedToken{Name: name, Token: minted.Token, ExpiresAt: minted.ExpiresAt}
}

// RevokeToken revokes the caller's service tokens by issuing DELETE against the
// candidate endpoints, returning the first accepted status (200/202/204) or the
// last status seen. Revocation is cleanup: it never fails the test, so callers
// that care inspect the returned status themselves.
func RevokeToken(ctx context.Context, client *http.Client, baseURL, operatorToken string) (int, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	lastStatus := 0
	var lastErr error = ErrMintUnavailable
	for _, endpoint := range tokenEndpoints {
		attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		resp, _, err := doJSON(attemptCtx, client, http.MethodDelete, baseURL+endpoint, operatorToken, nil)
		cancel()
		if err != nil {
			// A transport failure must not discard a response already seen:
			// the contract is to report the last attempted response.
			if lastStatus == 0 {
				lastErr = err
			}
			continue
		}
		lastStatus, lastErr = resp.StatusCode, nil
		switch resp.StatusCode {
		case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
			return resp.StatusCode, nil
		}
	}
	return lastStatus, lastErr
}

// EnsureServiceToken returns a credential suitable for exercising the API
// surface for the given tier: a freshly minted JWT-shaped token when minting
// works, otherwise the operator token unchanged. Deployments without a mint
// endpoint still get their catalog and invocation paths tested this way, so do
// not tighten this into a hard failure.
func EnsureServiceToken(t *testing.T, tier Tier, client *http.Client) string {
	t.Helper()
	env := IntegrationEnv(t)

	operatorToken := env.OperatorTokenForTier(tier)
	require.NotEmpty(t, env.BaseURL, "MAAS_API_BASE_URL not set")

	minted, err := MintToken(context.Background(), client, env.BaseURL, operatorToken, 10*time.Minute)
	if err == nil && LooksLikeJWT(minted) {
		return minted
	}
	t.Logf("token minting unavailable for %q tier, falling back to the operator token", tier)
	return operatorToken
}

// LooksLikeJWT reports whether a credential is structurally a signed JWT:
// three dot-separated segments whose first two decode as base64url.
func LooksLikeJWT(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts[:2] {
		if _, err := decodeJWTSegment(part); err != nil {
			return false
		}
	}
	return true
}

// DecodeJWTHeader decodes the header segment of a compact JWT into a JSON map.
func DecodeJWTHeader(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 token segments, found %d", len(parts))
	}
	decoded, err := decodeJWTSegment(parts[0])
	if err != nil {
		return nil, err
	}
	var header map[string]any
	if err := json.Unmarshal(decoded, &header); err != nil {
		return nil, err
	}
	return header, nil
}

func decodeJWTSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
}
