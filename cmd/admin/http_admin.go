package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// worldState mirrors one entry of the server's /admin/v1/state response.
type worldState struct {
	WorldID string `json:"world_id"`
	Metrics struct {
		Time          uint64  `json:"time"`
		LoadedPatches int     `json:"loaded_patches"`
		FixedPatches  int     `json:"fixed_patches"`
		Items         int     `json:"items"`
		StepMS        float64 `json:"step_ms"`
	} `json:"metrics"`
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("json", false, "print the raw JSON response")
	_ = fs.Parse(args)

	b := adminRequest(http.MethodGet, adminURL(*baseURL, "/admin/v1/state", ""), 5*time.Second)
	if *raw {
		fmt.Println(string(b))
		return
	}
	var states []worldState
	if err := json.Unmarshal(b, &states); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	for _, s := range states {
		m := s.Metrics
		fmt.Printf("%s\ttime=%d patches=%d fixed=%d items=%d step_ms=%.2f\n",
			s.WorldID, m.Time, m.LoadedPatches, m.FixedPatches, m.Items, m.StepMS)
	}
}

// snapshotCmd asks the server to write a snapshot of one world now.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	worldID := fs.String("world", "", "world id (optional; defaults to the server's default world)")
	_ = fs.Parse(args)

	b := adminRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/snapshot", *worldID), 30*time.Second)
	fmt.Println(strings.TrimSpace(string(b)))
}

func adminURL(base, path, worldID string) string {
	u := strings.TrimRight(strings.TrimSpace(base), "/") + path
	if id := strings.TrimSpace(worldID); id != "" {
		u += "?world=" + url.QueryEscape(id)
	}
	return u
}

// adminRequest performs one admin call and exits on transport errors or
// non-2xx answers, printing the body.
func adminRequest(method, u string, timeout time.Duration) []byte {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(2)
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n%s\n", method, u, resp.Status, strings.TrimSpace(string(b)))
		os.Exit(1)
	}
	return b
}
