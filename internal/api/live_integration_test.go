//go:build integration

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/audit"
)

// These tests run against a live server:
//
//	KESTREL_AUDIT_SECRET=change-me kestrel serve &
//	KESTREL_TEST_URL=http://localhost:8080 go test -tags=integration ./internal/api/...

func liveURL(t *testing.T) string {
	t.Helper()
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/ready")
	if err != nil {
		t.Skipf("kestrel not reachable at %s: %v", baseURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("kestrel at %s not ready: status %d", baseURL, resp.StatusCode)
	}
	return baseURL
}

func livePost(t *testing.T, baseURL, path, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AuditorIDHeader, "integration")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func liveGet(t *testing.T, baseURL, path string, v interface{}) int {
	t.Helper()

	resp, err := http.Get(baseURL + path)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestLivePredict(t *testing.T) {
	baseURL := liveURL(t)
	kochi := `{"Age":35,"Claim_Amount":15000,"Policy_Type":"Health","Days_Since_Purchase":20,"Region":"Kochi"}`

	t.Run("SameClaimSameScore", func(t *testing.T) {
		var first, second PredictResponse
		for _, resp := range []*PredictResponse{&first, &second} {
			status, body := livePost(t, baseURL, "/predict", kochi)
			if status != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", status, body)
			}
			if err := json.Unmarshal(body, resp); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
		}
		if first.Score != second.Score || first.Level != second.Level {
			t.Errorf("Expected identical assessments, got %v/%s and %v/%s", first.Score, first.Level, second.Score, second.Level)
		}
	})

	t.Run("UnknownRegion", func(t *testing.T) {
		status, body := livePost(t, baseURL, "/predict",
			`{"Age":50,"Claim_Amount":2000,"Policy_Type":"Auto","Days_Since_Purchase":300,"Region":"Nonexistent"}`)
		if status != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", status, body)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		status, _ := livePost(t, baseURL, "/predict", `{"Region":"Kochi"}`)
		if status != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", status)
		}
	})

	t.Run("ConcurrentWritesAreAllRecorded", func(t *testing.T) {
		var before struct {
			Total int `json:"total"`
		}
		liveGet(t, baseURL, "/audits?limit=1", &before)

		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				body := fmt.Sprintf(`{"Age":%d,"Claim_Amount":%d,"Policy_Type":"Travel","Days_Since_Purchase":%d,"Region":"Munnar"}`,
					25+i, 2000+i*700, 5+i*11)
				if status, resp := livePost(t, baseURL, "/predict", body); status != http.StatusOK {
					t.Errorf("request %d: status %d: %s", i, status, resp)
				}
			}(i)
		}
		wg.Wait()

		var after struct {
			Total int `json:"total"`
		}
		liveGet(t, baseURL, "/audits?limit=1", &after)
		if after.Total-before.Total < n {
			t.Errorf("Expected at least %d new ledger rows, got %d", n, after.Total-before.Total)
		}
	})

	t.Run("Verify", func(t *testing.T) {
		status, body := livePost(t, baseURL, "/predict", kochi)
		if status != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", status, body)
		}
		var resp PredictResponse
		json.Unmarshal(body, &resp)

		var result audit.VerifyResult
		if code := liveGet(t, baseURL, "/audits/"+resp.AuditID+"/verify", &result); code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", code)
		}
		if !result.Valid {
			t.Errorf("Expected valid integrity tag, got %+v", result)
		}
	})
}
