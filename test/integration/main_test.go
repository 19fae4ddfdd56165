// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"unsafe"

	"github.com/opendatahub-io/maas-billing-tests/test/testlib"
)

func TestMain(m *testing.M) {
	splitIntegrationTestsIntoBuckets(m)
	os.Exit(m.Run())
}

// splitIntegrationTestsIntoBuckets regroups the top-level tests into a serial
// bucket and a parallel bucket. Tests whose names end in _Parallel run
// concurrently with each other; everything else runs strictly sequentially,
// which matters for the burst scenario (response-code ordering) and for
// revocation (DELETE /v1/tokens revokes every token the operator minted).
func splitIntegrationTestsIntoBuckets(m *testing.M) {
	// this is some dark magic to set a private field
	testsField := reflect.ValueOf(m).Elem().FieldByName("tests")
	testsPointer := (*[]testing.InternalTest)(unsafe.Pointer(testsField.UnsafeAddr()))

	tests := *testsPointer
	if len(tests) == 0 {
		return
	}

	var serialTests, parallelTests []testing.InternalTest
	for _, test := range tests {
		if strings.HasSuffix(test.Name, "_Parallel") {
			parallelTests = append(parallelTests, test)
		} else {
			serialTests = append(serialTests, test)
		}
	}

	var finalTests []testing.InternalTest

	if len(parallelTests) > 0 {
		finalTests = append(finalTests, testing.InternalTest{
			Name: "TestIntegrationParallel",
			F: func(t *testing.T) {
				testlib.SkipUnlessIntegration(t)
				t.Parallel()

				for _, test := range parallelTests {
					test := test
					t.Run(test.Name, func(t *testing.T) {
						t.Parallel()
						test.F(t)
					})
				}
			},
		})
	}

	if len(serialTests) > 0 {
		finalTests = append(finalTests, testing.InternalTest{
			Name: "TestIntegrationSerial",
			F: func(t *testing.T) {
				testlib.SkipUnlessIntegration(t)
				t.Parallel()

				for _, test := range serialTests {
					t.Run(test.Name, func(t *testing.T) {
						test.F(t)
					})
				}
			},
		})
	}

	*testsPointer = finalTests
}
