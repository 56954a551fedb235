package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pulsewatch"
)

func main() {
	// start mock game server (see mock_server.go)
	go StartMockGameServer(":30120")
	time.Sleep(100 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	demo, err := pulsewatch.NewEntity("demo",
		pulsewatch.WithName("Demo City"),
		pulsewatch.WithPollURLs("http://localhost:30120/dynamic.json", "http://localhost:30120/players.json"),
		pulsewatch.WithNotifyChannel("demo-channel"),
		pulsewatch.WithDMRoles("oncall"),
	)
	if err != nil {
		slog.Error("failed to create entity", "error", err)
		os.Exit(1)
	}

	// without WithWebhooks, notifications and panel renders are logged
	eng, err := pulsewatch.New(
		pulsewatch.WithEntity(demo),
		pulsewatch.WithPollInterval(5*time.Second),
		pulsewatch.WithPort(8080),
		pulsewatch.WithRoles(map[string][]string{"oncall": {"alice"}}),
		pulsewatch.WithLogger(logger),
		pulsewatch.WithSnapshotCallback(func(s pulsewatch.Snapshot) {
			fmt.Printf("  %-10s %-8s %d/%d\n", s.Name, s.Status, s.Players, s.MaxPlayers)
		}),
	)
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Pulsewatch demo")
	fmt.Println()
	fmt.Println("  The mock game server on :30120 goes offline and back")
	fmt.Println("  every 20-60 seconds. Watch the notifications below.")
	fmt.Println()
	fmt.Println("  Try a push:")
	fmt.Println("    curl -XPOST localhost:8080/api/push \\")
	fmt.Println(`      -d '{"entity_id":"demo","event":"crashed","event_id":"1"}'`)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		slog.Error("pulsewatch error", "error", err)
		os.Exit(1)
	}
}
