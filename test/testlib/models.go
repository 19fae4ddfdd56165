// Copyright 2025-2026 the MaaS Billing contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ModelEntry is a single model from the gateway catalog. Deployments disagree
// about field names, so lookups accept either ID or Name and either URL or
// Endpoint.
type ModelEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Endpoint string `json:"endpoint"`
}

// modelCatalog tolerates both response shapes seen in the wild: a "data" list
// (OpenAI style) and a "models" list.
type modelCatalog struct {
	Data   []ModelEntry `json:"data"`
	Models []ModelEntry `json:"models"`
}

func (c *modelCatalog) entries() []ModelEntry {
	if len(c.Data) > 0 {
		return c.Data
	}
	return c.Models
}

// ListModels fetches the model catalog, requiring a 200. The caller's token
// can be either a minted service token or an operator token.
func ListModels(ctx context.Context, client *http.Client, baseURL, token string) ([]ModelEntry, error) {
	resp, body, err := GetJSON(ctx, client, strings.TrimRight(baseURL, "/")+"/v1/models", token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing models returned status %d: %s", resp.StatusCode, TruncateBody(body))
	}

	var catalog modelCatalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, fmt.Errorf("could not decode model catalog: %w", err)
	}
	return catalog.entries(), nil
}

// FindModel returns the catalog entry whose id or name matches, or nil.
func FindModel(entries []ModelEntry, name string) *ModelEntry {
	for i := range entries {
		if entries[i].ID == name || entries[i].Name == name {
			return &entries[i]
		}
	}
	return nil
}

// InvocationURL returns the model's chat-completions route, built from the
// per-model URL advertised by the catalog.
func (m *ModelEntry) InvocationURL() string {
	base := m.URL
	if base == "" {
		base = m.Endpoint
	}
	base = strings.TrimRight(base, "/")
	if base == "" {
		return ""
	}
	if strings.HasSuffix(base, "/v1/chat/completions") {
		return base
	}
	return base + "/v1/chat/completions"
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatResponse carries only the fields our assertions look at. A successful
// completion has a non-empty choices list or, on some gateways, an output field.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Output json.RawMessage `json:"output"`
}

func (r *ChatResponse) Completed() bool {
	return len(r.Choices) > 0 || len(r.Output) > 0
}

// ChatCompletion posts a chat request and returns the response, raw body, and
// decoded body (decoded only on 200/201).
func ChatCompletion(ctx context.Context, client *http.Client, url, token string, request ChatRequest) (*http.Response, []byte, *ChatResponse, error) {
	resp, body, err := PostJSON(ctx, client, url, token, request)
	if err != nil {
		return nil, nil, nil, err
	}

	var decoded *ChatResponse
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		decoded = &ChatResponse{}
		if err := json.Unmarshal(body, decoded); err != nil {
			return resp, body, nil, fmt.Errorf("could not decode chat completion: %w", err)
		}
	}
	return resp, body, decoded, nil
}
