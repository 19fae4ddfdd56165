// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendatahub-io/maas-billing-tests/test/testlib"
)

// TestChatCompletionViaModelRoute_Parallel invokes the model at its own route
// as advertised by the catalog, not under the gateway base path.
func TestChatCompletionViaModelRoute_Parallel(t *testing.T) {
	env := testlib.IntegrationEnv(t)
	client := testlib.NewHTTPClient(t)
	token := testlib.EnsureServiceToken(t, testlib.TierFree, client)
	modelName := env.ModelUnderTest()
	ctx := context.Background()

	entries, err := testlib.ListModels(ctx, client, env.BaseURL, token)
	require.NoError(t, err)
	model := testlib.FindModel(entries, modelName)
	require.NotNilf(t, model, "model %q not found in catalog", modelName)
	require.NotEmptyf(t, model.InvocationURL(), "model %q has no usable url/endpoint", modelName)

	resp, body, decoded, err := testlib.ChatCompletion(ctx, client, model.InvocationURL(), token, testlib.ChatRequest{
		Model:       modelName,
		Messages:    []testlib.ChatMessage{{Role: "user", Content: "hello"}},
		Temperature: 0,
	})
	require.NoError(t, err)
	require.Containsf(t, []int{http.StatusOK, http.StatusCreated}, resp.StatusCode,
		"chat completion failed with %d: %s", resp.StatusCode, testlib.TruncateBody(body))
	require.Truef(t, decoded.Completed(),
		"chat completion has neither choices nor output: %s", testlib.TruncateBody(body))
}

// TestChatCompletionEmitsUsageHeaders_Parallel invokes the gateway's own
// chat-completions route and checks the metering headers it attaches.
func TestChatCompletionEmitsUsageHeaders_Parallel(t *testing.T) {
	env := testlib.IntegrationEnv(t)
	client := testlib.NewHTTPClient(t)
	token := testlib.EnsureServiceToken(t, testlib.TierFree, client)
	modelName := env.ModelUnderTest()

	resp, body, _, err := testlib.ChatCompletion(context.Background(), client,
		env.BaseURL+"/v1/chat/completions", token, testlib.ChatRequest{
			Model:       modelName,
			Messages:    []testlib.ChatMessage{{Role: "user", Content: "Say hi"}},
			Temperature: 0,
		})
	require.NoError(t, err)
	require.Containsf(t, []int{http.StatusOK, http.StatusCreated}, resp.StatusCode,
		"chat completion failed with %d: %s", resp.StatusCode, testlib.TruncateBody(body))

	usage := testlib.ParseUsageHeaders(resp.Header)
	require.NotEmptyf(t, usage, "no usage headers on response: %s", testlib.Sdump(resp.Header))
}
