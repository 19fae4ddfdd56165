// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

type Capability string

type Tier string

const (
	// TokenMintingSupported means the deployment exposes a working token
	// minting endpoint, so tests may require minting to succeed instead of
	// falling back to the operator token.
	TokenMintingSupported Capability = "tokenMintingSupported"

	// RateLimitingObservable means the gateway enforces request-rate limits
	// aggressively enough that a short sequential burst will observe a 429.
	RateLimitingObservable Capability = "rateLimitingObservable"

	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// TestEnv captures all the external parameters consumed by our integration tests.
type TestEnv struct {
	t *testing.T

	BaseURL              string              `json:"baseURL"`
	UsageAPIBase         string              `json:"usageAPIBase"`
	ModelName            string              `json:"modelName"`
	OperatorToken        string              `json:"operatorToken"`
	FreeOperatorToken    string              `json:"freeOperatorToken"`
	PremiumOperatorToken string              `json:"premiumOperatorToken"`
	NamespacePrefix      string              `json:"namespacePrefix"`
	TLSVerify            bool                `json:"tlsVerify"`
	KeepSecrets          bool                `json:"keepSecrets"`
	CleanupOnExit        bool                `json:"cleanupOnExit"`
	Capabilities         map[Capability]bool `json:"capabilities"`
}

// memoizedTestEnvsByTest maps *testing.T pointers to *TestEnv. It exists so that we don't do all the
// environment parsing N times per test and so that any implicit assertions happen only once.
var memoizedTestEnvsByTest sync.Map //nolint:gochecknoglobals

// IntegrationEnv gets the integration test environment from OS environment variables. This
// method also implies SkipUnlessIntegration().
func IntegrationEnv(t *testing.T) *TestEnv {
	if existing, exists := memoizedTestEnvsByTest.Load(t); exists {
		return existing.(*TestEnv)
	}

	t.Helper()
	SkipUnlessIntegration(t)

	var result TestEnv

	// An optional YAML document can describe cluster facts that are awkward to
	// express as individual env vars, most notably the capability map.
	capabilitiesYAML := os.Getenv("MAAS_TEST_CAPABILITY_YAML")
	capabilitiesFile := os.Getenv("MAAS_TEST_CAPABILITY_FILE")
	if capabilitiesYAML == "" && capabilitiesFile != "" {
		bytes, err := os.ReadFile(capabilitiesFile)
		require.NoError(t, err)
		capabilitiesYAML = string(bytes)
	}
	if capabilitiesYAML != "" {
		err := yaml.Unmarshal([]byte(capabilitiesYAML), &result)
		require.NoErrorf(t, err, "capabilities specification was invalid YAML")
	}

	loadEnvVars(t, &result)
	result.t = t
	memoizedTestEnvsByTest.Store(t, &result)
	return &result
}

func needEnv(t *testing.T, key string) string {
	t.Helper()
	value := os.Getenv(key)
	require.NotEmptyf(t, value, "must specify %s env var for integration tests", key)
	return value
}

func wantEnv(key, dephault string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return dephault
	}
	return value
}

// BoolEnv reads a boolean env var, accepting the 0/false/no and 1/true/yes
// spellings in any case.
func BoolEnv(key string, dephault bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return dephault
	}
	switch strings.ToLower(value) {
	case "0", "false", "no":
		return false
	case "1", "true", "yes":
		return true
	}
	return dephault
}

// IntEnv reads an integer env var, keeping the default on parse failure.
func IntEnv(key string, dephault int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return dephault
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return dephault
	}
	return parsed
}

// DurationSecondsEnv reads an env var expressed as a (possibly fractional)
// number of seconds, matching how the original harnesses tuned their delays.
func DurationSecondsEnv(key string, dephault time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return dephault
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return dephault
	}
	return time.Duration(seconds * float64(time.Second))
}

func loadEnvVars(t *testing.T, result *TestEnv) {
	t.Helper()

	result.BaseURL = strings.TrimRight(needEnv(t, "MAAS_API_BASE_URL"), "/")
	result.UsageAPIBase = wantEnv("USAGE_API_BASE", result.BaseURL)
	result.ModelName = os.Getenv("MODEL_NAME") // required only by scenarios that invoke a model

	result.OperatorToken = os.Getenv("OC_TOKEN")
	result.FreeOperatorToken = wantEnv("FREE_OC_TOKEN", result.OperatorToken)
	result.PremiumOperatorToken = os.Getenv("PREMIUM_OC_TOKEN")

	result.NamespacePrefix = wantEnv("NAMESPACE_PREFIX", "maas")
	result.TLSVerify = BoolEnv("REQUESTS_VERIFY", true)
	result.KeepSecrets = BoolEnv("KEEP_SECRETS", false)
	result.CleanupOnExit = BoolEnv("CLEANUP_ON_EXIT", true)
}

// OperatorTokenForTier returns the long-lived operator credential configured for
// the given tier, failing the test when none was provided.
func (e *TestEnv) OperatorTokenForTier(tier Tier) string {
	e.t.Helper()
	var token string
	switch tier {
	case TierFree:
		token = e.FreeOperatorToken
	case TierPremium:
		token = e.PremiumOperatorToken
	default:
		token = e.OperatorToken
	}
	require.NotEmptyf(e.t, token, "no operator token configured for %q tier (set FREE_OC_TOKEN/PREMIUM_OC_TOKEN/OC_TOKEN)", tier)
	return token
}

// ModelUnderTest returns MODEL_NAME, failing the test when it was not provided.
func (e *TestEnv) ModelUnderTest() string {
	e.t.Helper()
	require.NotEmpty(e.t, e.ModelName, "must specify MODEL_NAME env var for model invocation tests")
	return e.ModelName
}

// WithCapability skips the test when the capability was explicitly described as
// absent. Undescribed capabilities are assumed present so that deployments
// without a capability document still run the full suite.
func (e *TestEnv) WithCapability(cap Capability) *TestEnv {
	e.t.Helper()
	if enabled, described := e.Capabilities[cap]; described && !enabled {
		e.t.Skipf("skipping integration test because test environment lacks the %q capability", cap)
	}
	return e
}
