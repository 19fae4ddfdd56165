// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"net/http"
	"strconv"
)

// UsageHeaderNames are the metering headers the gateway attaches to successful
// model invocations, in canonical lowercase form.
var UsageHeaderNames = []string{ //nolint:gochecknoglobals
	"x-odhu-usage-input-tokens",
	"x-odhu-usage-output-tokens",
	"x-odhu-usage-total-tokens",
}

// ParseUsageHeaders extracts the recognized usage headers from a response,
// matching case-insensitively. Values that parse as integers become ints;
// anything else is kept as the raw string so a malformed gateway value still
// shows up in assertion failures. Absent headers are simply omitted.
func ParseUsageHeaders(headers http.Header) map[string]any {
	usage := map[string]any{}
	for _, name := range UsageHeaderNames {
		value := headers.Get(name)
		if value == "" {
			continue
		}
		if parsed, err := strconv.Atoi(value); err == nil {
			usage[name] = parsed
		} else {
			usage[name] = value
		}
	}
	return usage
}
