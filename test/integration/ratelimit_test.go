// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/maas-billing-tests/test/testlib"
)

// TestFreeTierRequestBurstLimiting sends a quick sequential burst of chat
// completions as a free-tier user to exercise the request-rate limiter. The
// loop must stay strictly sequential: the assertions depend on the ordering of
// response codes, and this test runs in the serial bucket so no other test's
// traffic is counted against the limit.
func TestFreeTierRequestBurstLimiting(t *testing.T) {
	env := testlib.IntegrationEnv(t).WithCapability(testlib.RateLimitingObservable)
	client := testlib.NewHTTPClient(t)
	token := testlib.EnsureServiceToken(t, testlib.TierFree, client)
	modelName := env.ModelUnderTest()
	ctx := context.Background()

	// env override -> cluster policy -> unknown
	burst := testlib.ResolveLimit(testlib.FetchRateLimitPolicy(t), "RATE_LIMIT_BURST_FREE", testlib.PolicyFreeBurst, nil)

	entries, err := testlib.ListModels(ctx, client, env.BaseURL, token)
	require.NoError(t, err)
	model := testlib.FindModel(entries, modelName)
	require.NotNilf(t, model, "model %q not found in catalog", modelName)
	require.NotEmptyf(t, model.InvocationURL(), "model %q has no usable url/endpoint", modelName)

	// Go just past the known burst, or use a safe default when it is unknown.
	calls := testlib.IntEnv("GLOBAL_BURST_N", 25)
	if burst != nil {
		calls = int(*burst) + 5
	}

	// Small completions keep the token-rate limiter out of the picture.
	maxTokens := testlib.IntEnv("TOKENS_PER_CALL_SMALL", 16)
	delay := testlib.DurationSecondsEnv("BURST_SLEEP", 50*time.Millisecond)

	var codes []int
	for i := 0; i < calls; i++ {
		resp, _, _, err := testlib.ChatCompletion(ctx, client, model.InvocationURL(), token, testlib.ChatRequest{
			Model:       modelName,
			Messages:    []testlib.ChatMessage{{Role: "user", Content: "hi"}},
			MaxTokens:   maxTokens,
			Temperature: 0,
		})
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		time.Sleep(delay)
	}

	accepted, limited := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusOK, http.StatusCreated:
			accepted++
		case http.StatusTooManyRequests:
			limited++
		}
	}

	require.GreaterOrEqualf(t, limited, 1, "expected at least one 429 after the burst; codes=%v", codes)
	if burst != nil {
		require.GreaterOrEqualf(t, int64(accepted), *burst,
			"expected at least %d successes before limiting; codes=%v", *burst, codes)
	}
}
