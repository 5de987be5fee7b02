package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"modelcore/internal/progress"
	"modelcore/pkg/types"
)

// barSink is a progress sink with explicit teardown.
type barSink interface {
	progress.Sink
	Abort(modelID string)
	Wait()
}

// logSink adapts a plain sink to barSink.
type logSink struct{ progress.Sink }

func (logSink) Abort(string) {}
func (logSink) Wait()        {}

func newLoadCmd(g *globals) *cobra.Command {
	var desc types.ModelDescriptor
	var category string
	cmd := &cobra.Command{
		Use:   "load <id>",
		Short: "Load a model on a running daemon and follow its progress",
		Example: "  modelcore load whisper-base\n" +
			"  modelcore load qwen2-7b --category llm --path /models/qwen2-7b.Q4_K_M.gguf --pin",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc.ID = args[0]
			desc.Category = types.Category(category)

			var sink barSink
			if isTerminal(os.Stderr) {
				sink = progress.NewTerminal(os.Stderr)
			} else {
				log, err := newLogger(orInfo(g.logLevel), os.Stderr)
				if err != nil {
					return err
				}
				sink = logSink{progress.NewLog(log)}
			}

			resp, err := loadWithProgress(cmd.Context(), g.server, desc, sink)
			if err != nil {
				sink.Abort(desc.ID)
				sink.Wait()
				return err
			}
			sink.Report(desc.ID, 1)
			sink.Wait()
			state := "loaded"
			if resp.Reused {
				state = "already resident"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (session %s)\n", resp.ModelID, state, resp.SessionID)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&category, "category", "", "Model category when the id is not in the daemon's catalog")
	fl.StringVar(&desc.Path, "path", "", "Model file when the id is not in the daemon's catalog")
	fl.BoolVar(&desc.Pinned, "pin", false, "Never evict this model")
	return cmd
}

func orInfo(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// loadWithProgress posts desc and forwards load_progress events for it to
// sink until the load call returns.
func loadWithProgress(ctx context.Context, server string, desc types.ModelDescriptor, sink progress.Sink) (types.LoadResponse, error) {
	sctx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan struct{})
	ready := make(chan struct{})
	go func() {
		defer close(done)
		followEvents(sctx, server, desc.ID, sink, ready)
	}()
	select {
	case <-ready:
	case <-done:
	case <-ctx.Done():
		return types.LoadResponse{}, ctx.Err()
	}

	var resp types.LoadResponse
	err := doJSON(ctx, http.MethodPost, endpoint(server, "/models"), desc, &resp)
	stop()
	<-done
	return resp, err
}

// followEvents closes ready once the stream is open, or on failure to open
// it; progress then degrades to the final report only.
func followEvents(ctx context.Context, server, id string, sink progress.Sink, ready chan<- struct{}) {
	signalled := false
	signal := func() {
		if !signalled {
			signalled = true
			close(ready)
		}
	}
	defer signal()

	u := endpoint(server, "/events") + "?model=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}
	signal()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var ev types.EventMessage
		if json.Unmarshal(sc.Bytes(), &ev) != nil {
			continue
		}
		switch ev.Name {
		case "load_started":
			sink.Report(id, 0)
		case "load_progress":
			if f, ok := ev.Fields["fraction"].(float64); ok && f < 1 {
				sink.Report(id, f)
			}
		}
	}
}
