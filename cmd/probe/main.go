package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("probe", pflag.ContinueOnError)
	url := flags.String("url", "ws://localhost:8765/", "bridge WebSocket URL")
	count := flags.Int("count", 1, "number of requests to send")
	interval := flags.Duration("interval", time.Second, "delay between requests")
	noID := flags.Bool("no-id", false, "omit the request id so the bridge synthesizes one")
	timeout := flags.Duration("timeout", 5*time.Second, "per-request timeout")
	debug := flags.Bool("debug", false, "print raw frames")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *count < 1 {
		return fmt.Errorf("count must be >= 1")
	}

	dialCtx, cancel := context.WithTimeout(ctx, *timeout)
	conn, _, err := websocket.Dial(dialCtx, *url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", *url, err)
	}
	defer conn.CloseNow()
	fmt.Fprintf(out, "Connected to WebSocket server at %s\n", *url)

	for n := range *count {
		if n > 0 {
			select {
			case <-ctx.Done():
				return conn.Close(websocket.StatusNormalClosure, "")
			case <-time.After(*interval):
			}
		}

		request := map[string]any{"command": "getData", "machine": 0}
		if !*noID {
			request["id"] = 12345 + n
		}
		if err := exchange(ctx, conn, request, *timeout, *debug, out); err != nil {
			return err
		}
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

func exchange(ctx context.Context, conn *websocket.Conn, request map[string]any, timeout time.Duration, debug bool, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if debug {
		fmt.Fprintf(out, "Sending WebSocket request: %v\n", request)
	} else {
		fmt.Fprintf(out, "Sending request: %v\n", request)
	}
	if err := wsjson.Write(ctx, conn, request); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var response json.RawMessage
	if err := wsjson.Read(ctx, conn, &response); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if debug {
		fmt.Fprintf(out, "Received WebSocket response: %s\n", response)
	}

	pretty, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	fmt.Fprintf(out, "Parsed response: %s\n", pretty)
	return nil
}
