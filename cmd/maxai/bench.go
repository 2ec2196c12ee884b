package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/maxai/internal/observability"
	"github.com/ent0n29/maxai/internal/protocol"
)

type benchOptions struct {
	baseURL        string
	userID         string
	turns          int
	stream         bool
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

var defaultUtterances = []string{
	"Reply in three words: what can you do?",
	"Call Mom",
	"What's the weather in Paris?",
	"Reply in three words: top risk?",
}

// benchReport holds per-turn latencies: time to the first server event of a
// turn and time to assistant_turn_end.
type benchReport struct {
	FirstEvent []time.Duration
	TurnEnd    []time.Duration
	Errors     int
}

func newBenchCmd() *cobra.Command {
	var (
		opts        benchOptions
		textsRaw    string
		interTurnMS int
		timeoutMS   int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Replay text turns against a running server and report latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.baseURL = strings.TrimRight(strings.TrimSpace(opts.baseURL), "/")
			if opts.baseURL == "" {
				return fmt.Errorf("base-url is required")
			}
			if opts.turns <= 0 {
				return fmt.Errorf("turns must be > 0")
			}
			if interTurnMS < 0 {
				interTurnMS = 0
			}
			if timeoutMS < 1000 {
				timeoutMS = 1000
			}
			opts.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
			opts.turnTimeout = time.Duration(timeoutMS) * time.Millisecond
			opts.texts = splitTexts(textsRaw)

			ctx, cancel := context.WithTimeout(cmd.Context(), 8*time.Minute)
			defer cancel()
			out := cmd.OutOrStdout()
			report, err := runBench(ctx, opts, out)
			if err != nil {
				return err
			}
			fmt.Fprint(out, report.summary())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8080", "server base URL")
	cmd.Flags().StringVar(&opts.userID, "user-id", "bench", "user_id used for the synthetic session")
	cmd.Flags().IntVar(&opts.turns, "turns", 10, "number of turns to replay")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "request raw fragment streaming instead of agent turns")
	cmd.Flags().IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	cmd.Flags().IntVar(&timeoutMS, "turn-timeout-ms", 30000, "timeout waiting for assistant_turn_end per turn in milliseconds")
	cmd.Flags().StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", true, "print replay progress")
	return cmd
}

func splitTexts(raw string) []string {
	var texts []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return append([]string(nil), defaultUtterances...)
	}
	return texts
}

func runBench(ctx context.Context, opts benchOptions, out io.Writer) (benchReport, error) {
	var report benchReport
	if len(opts.texts) == 0 {
		opts.texts = append([]string(nil), defaultUtterances...)
	}
	if opts.turnTimeout <= 0 {
		opts.turnTimeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createSession(ctx, httpClient, opts.baseURL, opts.userID)
	if err != nil {
		return report, fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, opts.baseURL, sessionID)
	}()

	wsURL, err := wsURLForSession(opts.baseURL, sessionID)
	if err != nil {
		return report, fmt.Errorf("build ws URL: %w", err)
	}
	conn, res, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return report, fmt.Errorf("open websocket: %w", err)
	}
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	defer conn.Close()

	if opts.verbose {
		fmt.Fprintf(out, "bench: session=%s turns=%d stream=%t\n", sessionID, opts.turns, opts.stream)
	}

	events := make(chan wsEnvelope, 256)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh)

	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		if opts.verbose {
			fmt.Fprintf(out, "bench: turn %d/%d text=%q\n", i+1, opts.turns, text)
		}

		start := time.Now()
		msg := protocol.ClientText{Type: protocol.TypeClientText, Content: text, Stream: opts.stream}
		if err := conn.WriteJSON(msg); err != nil {
			return report, fmt.Errorf("turn %d send: %w", i+1, err)
		}
		first, total, errs, err := awaitTurnEnd(events, readErrCh, start, opts.turnTimeout)
		if err != nil {
			return report, fmt.Errorf("turn %d await assistant_turn_end: %w", i+1, err)
		}
		report.FirstEvent = append(report.FirstEvent, first)
		report.TurnEnd = append(report.TurnEnd, total)
		report.Errors += errs

		if opts.interTurnDelay > 0 && i < opts.turns-1 {
			time.Sleep(opts.interTurnDelay)
		}
	}

	if opts.verbose {
		fmt.Fprintln(out, "bench: replay completed")
	}
	return report, nil
}

func createSession(ctx context.Context, client *http.Client, baseURL, userID string) (string, error) {
	payload, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/sessions/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws/stream"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		events <- env
	}
}

// awaitTurnEnd consumes events until assistant_turn_end. Events that belong
// to no turn (system events) do not count as the first response.
func awaitTurnEnd(events <-chan wsEnvelope, readErrCh <-chan error, start time.Time, timeout time.Duration) (first, total time.Duration, errs int, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-events:
			switch env.Type {
			case string(protocol.TypeSystemEvent):
				continue
			case string(protocol.TypeErrorEvent):
				errs++
			}
			if first == 0 {
				first = time.Since(start)
			}
			if env.Type == string(protocol.TypeAssistantTurnEnd) {
				return first, time.Since(start), errs, nil
			}
		case err := <-readErrCh:
			return 0, 0, errs, err
		case <-timer.C:
			return 0, 0, errs, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func (r benchReport) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "turns=%d errors=%d\n", len(r.TurnEnd), r.Errors)
	for _, row := range []struct {
		name string
		data []time.Duration
	}{{"first_event", r.FirstEvent}, {"turn_end", r.TurnEnd}} {
		ms := make([]float64, len(row.data))
		for i, d := range row.data {
			ms[i] = float64(d.Microseconds()) / 1000
		}
		sort.Float64s(ms)
		fmt.Fprintf(&b, "%-12s p50=%.1fms p95=%.1fms max=%.1fms\n", row.name,
			observability.Quantile(ms, 0.50), observability.Quantile(ms, 0.95), observability.Quantile(ms, 1))
	}
	return b.String()
}
