// Standalone mock game server and txAdmin sidecar for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pulsewatch serve -c example/config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const sidecarPath = "example/txadmin-status.json"

func main() {
	fmt.Println("Mock game server starting on :30120")
	fmt.Println("Server cycles: online → stopping → offline → starting → online")
	fmt.Println("Sidecar written to", sidecarPath)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu     sync.Mutex
		states = []string{"online", "stopping", "offline", "starting"}
		events = []string{"serverStarted", "serverShuttingDown", "serverStopped", "serverStarting"}
		idx    int
	)

	writeSidecar := func(i int) {
		blob, _ := json.Marshal(map[string]any{
			"state":      states[i],
			"event":      map[string]any{"type": events[i]},
			"updated_at": time.Now().UTC().Format(time.RFC3339),
		})
		tmp := sidecarPath + ".tmp"
		if err := os.WriteFile(tmp, blob, 0o644); err != nil {
			slog.Error("write sidecar", "error", err)
			return
		}
		_ = os.Rename(tmp, sidecarPath)
	}

	if err := os.MkdirAll(filepath.Dir(sidecarPath), 0o755); err != nil {
		slog.Error("create sidecar dir", "error", err)
		os.Exit(1)
	}
	writeSidecar(0)

	go func() {
		for {
			time.Sleep(time.Duration(20+rand.Intn(41)) * time.Second)
			mu.Lock()
			idx = (idx + 1) % len(states)
			writeSidecar(idx)
			slog.Info("state change", "state", states[idx], "event", events[idx])
			mu.Unlock()
		}
	}()

	http.HandleFunc("/dynamic.json", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		state := states[idx]
		mu.Unlock()
		if state != "online" {
			http.Error(w, "server offline", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hostname":      "^1Mock ^7Server",
			"clients":       rand.Intn(48),
			"sv_maxclients": 48,
		})
	})

	if err := http.ListenAndServe(":30120", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
