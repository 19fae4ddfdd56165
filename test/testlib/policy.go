// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
)

// Snapshot keys for the four limits the gateway policies can carry.
const (
	PolicyFreeBurst     = "free_burst"
	PolicyPremiumBurst  = "premium_burst"
	PolicyFreeTokens    = "free_tokens"
	PolicyPremiumTokens = "premium_tokens"
)

// RateLimitPolicy is a read-only snapshot of the limits discovered from the
// cluster's rate-limit custom resources. Fields that could not be discovered
// are simply absent.
type RateLimitPolicy struct {
	limits map[string]int64
}

func NewRateLimitPolicy(limits map[string]int64) *RateLimitPolicy {
	if limits == nil {
		limits = map[string]int64{}
	}
	return &RateLimitPolicy{limits: limits}
}

func (p *RateLimitPolicy) Limit(key string) (int64, bool) {
	value, ok := p.limits[key]
	return value, ok
}

// ResolveLimit resolves a limit with strict precedence: env override (when it
// parses as an integer) → policy snapshot → default. The default may be nil,
// meaning the limit is genuinely unknown.
func ResolveLimit(policy *RateLimitPolicy, envVar, policyKey string, dephault *int64) *int64 {
	if raw, ok := os.LookupEnv(envVar); ok && raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return &parsed
		}
	}
	if policy != nil {
		if value, ok := policy.Limit(policyKey); ok {
			return &value
		}
	}
	return dephault
}

// policyResource identifies one custom resource to read, under each of the API
// groups it has been served from across deployments.
type policyResource struct {
	namespace             string
	name                  string
	groupVersionResources []schema.GroupVersionResource
	// limitKeyBySnapshotKey maps snapshot keys to the CR's spec.limits entry.
	limitKeyBySnapshotKey map[string]string
}

//nolint:gochecknoglobals
var policyResources = []policyResource{
	{
		namespace: "openshift-ingress",
		name:      "gateway-rate-limits",
		groupVersionResources: []schema.GroupVersionResource{
			{Group: "gateway.networking.k8s.io", Version: "v1alpha2", Resource: "ratelimitpolicies"},
			{Group: "kuadrant.io", Version: "v1", Resource: "ratelimitpolicies"},
			{Group: "kuadrant.io", Version: "v1beta3", Resource: "ratelimitpolicies"},
		},
		limitKeyBySnapshotKey: map[string]string{
			PolicyFreeBurst:    "free",
			PolicyPremiumBurst: "premium",
		},
	},
	{
		namespace: "maas-api",
		name:      "gateway-token-rate-limits",
		groupVersionResources: []schema.GroupVersionResource{
			{Group: "gateway.networking.k8s.io", Version: "v1alpha2", Resource: "tokenratelimitpolicies"},
			{Group: "kuadrant.io", Version: "v1", Resource: "tokenratelimitpolicies"},
			{Group: "kuadrant.io", Version: "v1alpha1", Resource: "tokenratelimitpolicies"},
		},
		limitKeyBySnapshotKey: map[string]string{
			PolicyFreeTokens:    "free-user-tokens",
			PolicyPremiumTokens: "premium-user-tokens",
		},
	},
}

//nolint:gochecknoglobals
var (
	policyOnce     sync.Once
	policySnapshot *RateLimitPolicy
)

// FetchRateLimitPolicy reads the gateway's rate-limit custom resources once per
// test process and memoizes the result, which is treated as read-only
// thereafter. A cluster without the CRs (or no cluster access at all) yields an
// empty snapshot rather than a failure, since env overrides and defaults can
// still resolve every limit.
func FetchRateLimitPolicy(t *testing.T) *RateLimitPolicy {
	t.Helper()

	policyOnce.Do(func() {
		policySnapshot = NewRateLimitPolicy(nil)

		config, err := restClientConfig()
		if err != nil {
			t.Logf("no cluster access for rate-limit policy discovery: %v", err)
			return
		}
		client, err := dynamic.NewForConfig(config)
		if err != nil {
			t.Logf("no cluster access for rate-limit policy discovery: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		policySnapshot = policySnapshotFromCluster(ctx, client)
	})
	return policySnapshot
}

func policySnapshotFromCluster(ctx context.Context, client dynamic.Interface) *RateLimitPolicy {
	limits := map[string]int64{}

	for _, resource := range policyResources {
		obj := firstExistingPolicy(ctx, client, resource)
		if obj == nil {
			continue
		}
		for snapshotKey, limitKey := range resource.limitKeyBySnapshotKey {
			if value, ok := policyLimitValue(obj, limitKey); ok {
				limits[snapshotKey] = value
			}
		}
	}

	return NewRateLimitPolicy(limits)
}

func firstExistingPolicy(ctx context.Context, client dynamic.Interface, resource policyResource) *unstructured.Unstructured {
	for _, gvr := range resource.groupVersionResources {
		obj, err := client.Resource(gvr).Namespace(resource.namespace).Get(ctx, resource.name, metav1.GetOptions{})
		if err == nil {
			return obj
		}
	}
	return nil
}

// policyLimitValue digs out spec.limits.<key>.rates[0].limit, coercing the
// numeric JSON value to an integer.
func policyLimitValue(obj *unstructured.Unstructured, limitKey string) (int64, bool) {
	rates, found, err := unstructured.NestedSlice(obj.Object, "spec", "limits", limitKey, "rates")
	if err != nil || !found || len(rates) == 0 {
		return 0, false
	}
	rate, ok := rates[0].(map[string]any)
	if !ok {
		return 0, false
	}
	switch limit := rate["limit"].(type) {
	case int64:
		return limit, true
	case float64:
		return int64(limit), true
	default:
		return 0, false
	}
}
