// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"testing"
)

// SkipUnlessIntegration skips the current test if `-short` has been passed to `go test`.
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test because of '-short' flag")
	}
}

// SkipUnlessStreamingEnabled skips streaming tests unless they were explicitly
// enabled for this environment, since not every gateway route supports SSE.
func SkipUnlessStreamingEnabled(t *testing.T) {
	t.Helper()

	if !BoolEnv("STREAMING_ENABLED", false) {
		t.Skip("skipping because STREAMING_ENABLED is not set for this environment")
	}
}
