package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/pulsewatch/internal/push"
	"github.com/spf13/cobra"
)

const pushTimeout = 10 * time.Second

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send a status or event push to a running engine",
	Long: `Send one push to a running pulsewatch engine.

Helpers running next to a game server can call this from lifecycle hooks
instead of speaking HTTP directly. An event without --event-id gets a
random id, so retries of the same invocation are not deduplicated.

Example:
  pulsewatch push --entity main --event serverStarting
  pulsewatch push --entity main --status online --players 12 --max-players 48
  pulsewatch push --url http://pulsewatch:8080 --token $PW_TOKEN --entity main --event crashed --event-id 7f3c`,
	RunE: runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)

	f := pushCmd.Flags()
	f.String("url", "http://localhost:8080", "base URL of the pulsewatch server")
	f.String("token", "", "bearer token, if the server requires one")
	f.String("entity", "", "entity id (required)")
	f.String("event", "", "lifecycle event name")
	f.String("event-id", "", "idempotency key for the event")
	f.String("status", "", "reported status")
	f.Int("players", -1, "current player count")
	f.Int("max-players", -1, "player capacity")
	f.String("hostname", "", "server hostname")
	_ = pushCmd.MarkFlagRequired("entity")
}

func runPush(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	baseURL, _ := f.GetString("url")
	token, _ := f.GetString("token")

	p, err := payloadFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), pushTimeout)
	defer cancel()

	res, err := sendPush(ctx, http.DefaultClient, baseURL, token, p)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("push rejected: %s", res.Error)
	}

	if len(res.Sent) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "accepted, nothing sent")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "accepted, sent: %s\n", strings.Join(res.Sent, ", "))
	return nil
}

func payloadFromFlags(cmd *cobra.Command) (push.Payload, error) {
	f := cmd.Flags()
	var p push.Payload
	p.EntityID, _ = f.GetString("entity")
	p.Event, _ = f.GetString("event")
	p.EventID, _ = f.GetString("event-id")
	p.Status, _ = f.GetString("status")
	p.Hostname, _ = f.GetString("hostname")

	if strings.TrimSpace(p.EntityID) == "" {
		return push.Payload{}, fmt.Errorf("--entity must not be empty")
	}
	if p.Event == "" && p.Status == "" {
		return push.Payload{}, fmt.Errorf("one of --event or --status is required")
	}
	if p.Event != "" && p.EventID == "" {
		p.EventID = uuid.NewString()
	}

	if players, _ := f.GetInt("players"); players >= 0 {
		p.Players = &players
	}
	if maxPlayers, _ := f.GetInt("max-players"); maxPlayers >= 0 {
		p.MaxPlayers = &maxPlayers
	}
	p.UpdatedAt = push.Timestamp(time.Now().UTC().Format(time.RFC3339))
	return p, nil
}

// sendPush posts p to baseURL/api/push and decodes the result. Rejections
// with a JSON body are returned as a Result, not an error.
func sendPush(ctx context.Context, client *http.Client, baseURL, token string, p push.Payload) (push.Result, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return push.Result{}, fmt.Errorf("encode payload: %w", err)
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/api/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return push.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return push.Result{}, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return push.Result{}, fmt.Errorf("read response: %w", err)
	}

	var res push.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return push.Result{}, fmt.Errorf("unexpected response (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return res, nil
}
