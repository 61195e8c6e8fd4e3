package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type classifyResponse struct {
	Message  string `json:"message"`
	Outcomes []struct {
		LicitacaoID string  `json:"licitacao_id"`
		Status      string  `json:"status"`
		Score       float64 `json:"score,omitempty"`
		Error       string  `json:"error,omitempty"`
	} `json:"outcomes"`
}

// Drives the classification queue through the API until it drains or
// the batch cap is hit. One request scores one batch.
func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "API base URL")
	adminSecretFlag := flag.String("admin-secret", "", "Admin secret (or use ADMIN_SECRET env)")
	maxBatches := flag.Int("max-batches", 20, "Stop after this many batches")
	rateLimitMs := flag.Int("rate-limit-ms", 1000, "Delay between batches in milliseconds")
	timeoutSec := flag.Int("timeout-sec", 300, "HTTP timeout per batch in seconds")
	flag.Parse()

	adminSecret := strings.TrimSpace(*adminSecretFlag)
	if adminSecret == "" {
		adminSecret = strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	}
	if adminSecret == "" {
		fmt.Println("Missing admin secret: pass -admin-secret or set ADMIN_SECRET")
		os.Exit(1)
	}

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}
	url := strings.TrimRight(*baseURL, "/") + "/api/v1/ia/classify"

	totalScored, totalErrors := 0, 0
	for batch := 1; batch <= *maxBatches; batch++ {
		req, err := http.NewRequest("POST", url, nil)
		if err != nil {
			fmt.Printf("Error creating request: %v\n", err)
			os.Exit(1)
		}
		req.Header.Set("X-Admin-Secret", adminSecret)

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("Batch %d failed: %v\n", batch, err)
			os.Exit(1)
		}

		var body classifyResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Printf("Batch %d returned %s\n", batch, resp.Status)
			os.Exit(1)
		}
		if decodeErr != nil {
			fmt.Printf("Batch %d returned unreadable body: %v\n", batch, decodeErr)
			os.Exit(1)
		}

		scored, errored := 0, 0
		for _, o := range body.Outcomes {
			if o.Error != "" {
				errored++
			} else {
				scored++
			}
		}
		totalScored += scored
		totalErrors += errored
		fmt.Printf("Batch %d: %d scored, %d errors\n", batch, scored, errored)

		if len(body.Outcomes) == 0 {
			fmt.Println("Queue drained")
			break
		}
		time.Sleep(time.Duration(*rateLimitMs) * time.Millisecond)
	}

	fmt.Printf("Done: %d scored, %d flagged for review\n", totalScored, totalErrors)
	if totalErrors > 0 {
		os.Exit(1)
	}
}
