// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	// Import to initialize client auth plugins - the kubeconfig that we use for
	// testing may use gcloud, az, oidc, etc.
	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

// requestTimeout bounds every individual HTTP attempt made by the helpers in
// this package. Scenarios that need a shorter bound pass their own context.
const requestTimeout = 60 * time.Second

// NewHTTPClient returns the client used for all gateway calls. TLS verification
// is on by default and can be disabled for clusters with self-signed routes via
// REQUESTS_VERIFY=false.
func NewHTTPClient(t *testing.T) *http.Client {
	t.Helper()
	env := IntegrationEnv(t)

	client := &http.Client{Timeout: requestTimeout}
	if !env.TLSVerify {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicit opt-out for test clusters
		}
	}
	return client
}

// restClientConfig loads the current kubeconfig context without failing the
// test, for helpers that degrade gracefully when no cluster is reachable.
func restClientConfig() (*rest.Config, error) {
	loader := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loader, &clientcmd.ConfigOverrides{}).ClientConfig()
}

func NewClientConfig(t *testing.T) *rest.Config {
	t.Helper()

	config, err := restClientConfig()
	require.NoError(t, err)
	return config
}

func NewKubernetesClientset(t *testing.T) kubernetes.Interface {
	t.Helper()

	client, err := kubernetes.NewForConfig(NewClientConfig(t))
	require.NoError(t, err, "unexpected failure from kubernetes.NewForConfig()")
	return client
}

// BearerHeader formats a token as an Authorization header value. An empty token
// yields an empty header so unauthenticated probes stay unauthenticated.
func BearerHeader(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

func newRequest(ctx context.Context, method, url, token string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if header := BearerHeader(token); header != "" {
		req.Header.Set("Authorization", header)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON issues a request with an optional JSON body and returns the response
// along with its fully-read body. The response body is already closed.
func doJSON(ctx context.Context, client *http.Client, method, url, token string, payload any) (*http.Response, []byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
	}

	req, err := newRequest(ctx, method, url, token, encoded)
	if err != nil {
		return nil, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}

// GetJSON issues an authenticated GET and returns the response plus its body.
func GetJSON(ctx context.Context, client *http.Client, url, token string) (*http.Response, []byte, error) {
	return doJSON(ctx, client, http.MethodGet, url, token, nil)
}

// PostJSON issues an authenticated POST with a JSON payload. A nil payload
// sends no body at all, which some deployments require for token minting.
func PostJSON(ctx context.Context, client *http.Client, url, token string, payload any) (*http.Response, []byte, error) {
	return doJSON(ctx, client, http.MethodPost, url, token, payload)
}

// TruncateBody trims a response body for use in assertion messages.
func TruncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
