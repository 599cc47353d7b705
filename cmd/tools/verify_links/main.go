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

type jobStatus struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Result map[string]any `json:"result"`
	Error  string         `json:"error"`
}

// verify_links starts the saved-link verification job on a running server
// and polls it until it finishes.
func main() {
	baseURL := flag.String("url", "http://localhost:8081", "server base URL")
	limit := flag.Int("limit", 0, "maximum links to check (0 = server default)")
	poll := flag.Duration("poll", 2*time.Second, "poll interval")
	flag.Parse()

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	do := func(method, path string, out any) int {
		req, err := http.NewRequest(method, strings.TrimRight(*baseURL, "/")+path, nil)
		if err != nil {
			fmt.Printf("Error creating request: %v\n", err)
			os.Exit(1)
		}
		req.Header.Set("X-Admin-Secret", adminSecret)
		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("Error sending request: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fmt.Printf("Error decoding response (%s): %v\n", resp.Status, err)
			os.Exit(1)
		}
		return resp.StatusCode
	}

	var started map[string]string
	path := "/api/v1/admin/verify-saved-links"
	if *limit > 0 {
		path += fmt.Sprintf("?limit=%d", *limit)
	}
	if code := do(http.MethodPost, path, &started); code != http.StatusAccepted {
		fmt.Printf("Job not started (%d): %s\n", code, started["error"])
		os.Exit(1)
	}
	fmt.Printf("Job %s started\n", started["job_id"])

	for {
		time.Sleep(*poll)
		var st jobStatus
		if code := do(http.MethodGet, "/api/v1/admin/job/"+started["job_id"], &st); code != http.StatusOK {
			fmt.Printf("Job lookup failed (%d)\n", code)
			os.Exit(1)
		}
		if st.Status == "running" {
			continue
		}
		out, _ := json.MarshalIndent(st.Result, "", "  ")
		fmt.Printf("Job %s %s\n%s\n", st.ID, st.Status, out)
		if st.Status != "completed" {
			fmt.Println(st.Error)
			os.Exit(1)
		}
		return
	}
}
