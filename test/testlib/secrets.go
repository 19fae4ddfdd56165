// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"context"
	"fmt"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	tierNamespaceLabel  = "maas.opendatahub.io/tier-namespace=true"
	tokenSecretLabel    = "maas.opendatahub.io/token-secret=true" //nolint:gosec // label selector, not a credential
	tokenNameAnnotation = "maas.opendatahub.io/token-name"
)

// TokenSecretFields are the metadata fields a token secret must carry. The
// secret must NOT carry the token value itself.
var TokenSecretFields = []string{"username", "creationDate", "expirationDate", "name", "status"} //nolint:gochecknoglobals

// TierNamespaces lists the namespaces that can hold token metadata secrets:
// every namespace labeled as a tier namespace, or the conventional
// <prefix>-tier-<tier> names when the label query comes back empty.
func TierNamespaces(ctx context.Context, t *testing.T, client kubernetes.Interface, namespacePrefix string) []string {
	t.Helper()

	var names []string
	namespaces, err := client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{LabelSelector: tierNamespaceLabel})
	if err == nil {
		for _, namespace := range namespaces.Items {
			names = append(names, namespace.Name)
		}
	}
	if len(names) == 0 {
		t.Logf("no labeled tier namespaces found, checking conventional %s-tier-* namespaces", namespacePrefix)
		for _, tier := range []Tier{TierFree, TierPremium, TierEnterprise} {
			names = append(names, fmt.Sprintf("%s-tier-%s", namespacePrefix, tier))
		}
	}
	return names
}

// FindTokenSecret locates the metadata secret materialized for a named token by
// scanning the tier namespaces for token secrets annotated with that name.
// Returns nil when no matching secret exists yet.
func FindTokenSecret(ctx context.Context, t *testing.T, client kubernetes.Interface, namespacePrefix, tokenName string) *corev1.Secret {
	t.Helper()

	for _, namespace := range TierNamespaces(ctx, t, client, namespacePrefix) {
		secrets, err := client.CoreV1().Secrets(namespace).List(ctx, metav1.ListOptions{LabelSelector: tokenSecretLabel})
		if err != nil {
			continue // conventional namespaces may not exist at all
		}
		for i := range secrets.Items {
			if secrets.Items[i].Annotations[tokenNameAnnotation] == tokenName {
				return &secrets.Items[i]
			}
		}
	}
	return nil
}

// DeleteTokenSecret removes a token metadata secret during cleanup. The caller
// treats failures as warnings, never as test failures.
func DeleteTokenSecret(ctx context.Context, client kubernetes.Interface, secret *corev1.Secret) error {
	return client.CoreV1().Secrets(secret.Namespace).Delete(ctx, secret.Name, metav1.DeleteOptions{})
}
