package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"
)

const helperEnv = "MODELCORE_HELPER_PROCESS=1"

// TestHelperProcess is not a real test: it is the child process spawned by
// the process and sidecar tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("MODELCORE_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	mode := ""
	if len(args) > 0 {
		mode = args[0]
	}
	switch mode {
	case "exit":
		fmt.Fprintln(os.Stderr, "fatal: cannot open model file")
		os.Exit(3)
	case "hang":
		time.Sleep(time.Minute)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		serveHelper(0)
	case "slow":
		serveHelper(200 * time.Millisecond)
	default:
		serveHelper(0)
	}
	os.Exit(0)
}

func serveHelper(delay time.Duration) {
	time.Sleep(delay)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode([]float32{float32(len(req.Text)), 1})
	})
	ln, err := net.Listen("tcp", net.JoinHostPort(os.Getenv("HOST"), os.Getenv("PORT")))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	_ = http.Serve(ln, mux)
}

func helperCommand(mode string) []string {
	return []string{os.Args[0], "-test.run=TestHelperProcess", "--", mode}
}

func helperProcessConfig(mode string) ProcessConfig {
	cmd := helperCommand(mode)
	return ProcessConfig{
		Name:         "helper",
		Bin:          cmd[0],
		Args:         func(string, int) []string { return cmd[1:] },
		Env:          []string{helperEnv},
		HealthPaths:  []string{"/health"},
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  300 * time.Millisecond,
	}
}

func testCtx(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
