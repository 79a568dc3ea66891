//go:build integration

// Integration test against a running server.
//
// Run: go test -tags=integration ./internal/server/
package server_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"testing"
)

func baseURL() string {
	if u := os.Getenv("MAP_BASE_URL"); u != "" {
		return u
	}
	return "http://localhost:8086"
}

func getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(baseURL() + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	var body struct {
		Status string `json:"status"`
	}
	if code := getJSON(t, "/health", &body); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if body.Status != "ok" {
		t.Fatalf("status=%q, want ok", body.Status)
	}
}

func TestLayersLoaded(t *testing.T) {
	var body struct {
		Layers []struct {
			Name   string `json:"name"`
			Loaded bool   `json:"loaded"`
			Error  string `json:"error"`
		} `json:"layers"`
	}
	getJSON(t, "/api/v1/layers", &body)
	for _, l := range body.Layers {
		if !l.Loaded {
			t.Errorf("layer %s not loaded: %s", l.Name, l.Error)
		}
	}
}

func TestSearchSichuan(t *testing.T) {
	var body struct {
		District struct {
			Adcode int `json:"adcode"`
		} `json:"district"`
	}
	code := getJSON(t, "/api/v1/districts/search?q="+url.QueryEscape("四川"), &body)
	if code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if body.District.Adcode != 510000 {
		t.Fatalf("adcode=%d, want 510000", body.District.Adcode)
	}
}
