package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockGame is a fake FiveM server that goes down and comes back.
type mockGame struct {
	mu           sync.Mutex
	up           bool
	players      int
	nextChangeAt time.Time
}

func nextChange() time.Time {
	return time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
}

// tick flips the server state when its scheduled change is due.
func (g *mockGame) tick() (up bool, players int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Now().After(g.nextChangeAt) {
		g.up = !g.up
		g.nextChangeAt = nextChange()
		slog.Info("mock server changed state", "up", g.up)
	}
	if g.up {
		g.players = max(0, min(48, g.players+rand.Intn(5)-2))
	}
	return g.up, g.players
}

// StartMockGameServer serves FiveM-style dynamic.json and players.json on
// addr. The server is reachable for 20-60 seconds, then unreachable for
// 20-60 seconds, and so on.
func StartMockGameServer(addr string) {
	game := &mockGame{up: true, players: 6, nextChangeAt: nextChange()}

	mux := http.NewServeMux()
	mux.HandleFunc("/dynamic.json", func(w http.ResponseWriter, r *http.Request) {
		up, players := game.tick()
		if !up {
			http.Error(w, "server offline", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"hostname":      "^2Demo ^7City",
			"clients":       players,
			"sv_maxclients": 48,
		}); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})
	mux.HandleFunc("/players.json", func(w http.ResponseWriter, r *http.Request) {
		up, players := game.tick()
		if !up {
			http.Error(w, "server offline", http.StatusServiceUnavailable)
			return
		}
		list := make([]map[string]any, players)
		for i := range list {
			list[i] = map[string]any{"id": i + 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
