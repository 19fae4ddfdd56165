// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import "github.com/davecgh/go-spew/spew"

// Sdump renders a value for failure messages without following pointer methods
// or exploding on deeply nested API objects.
func Sdump(a ...any) string {
	config := spew.ConfigState{
		Indent:                  "\t",
		MaxDepth:                8,
		DisableMethods:          true,
		DisablePointerMethods:   true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	return config.Sdump(a...)
}
