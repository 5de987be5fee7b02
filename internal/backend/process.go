package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultHost         = "127.0.0.1"
	defaultPollInterval = 100 * time.Millisecond
	defaultStopTimeout  = 2 * time.Second
	stderrTailBytes     = 4096
)

// ProcessConfig describes one backend server process.
type ProcessConfig struct {
	// Name labels log lines and errors (llama-server, whisper-server, ...).
	Name string
	Bin  string
	// Args builds the command line once the port is known.
	Args func(host string, port int) []string
	// Env is appended to the parent environment.
	Env []string
	// Host defaults to 127.0.0.1.
	Host string
	// PortStart and PortEnd bound port selection; zero picks any free port.
	PortStart int
	PortEnd   int
	// HealthPaths are probed in order; any 2xx marks the process ready.
	HealthPaths  []string
	PollInterval time.Duration
	StopTimeout  time.Duration
	Logger       *zerolog.Logger
}

// Process is a spawned backend server.
type Process struct {
	cfg     ProcessConfig
	cmd     *exec.Cmd
	baseURL string
	client  *http.Client
	stderr  *tailBuffer
	log     zerolog.Logger

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	report   func(float64)
}

// StartProcess picks a port and spawns cfg.Bin. It does not wait for
// readiness; call AwaitReady.
func StartProcess(cfg ProcessConfig, report func(float64)) (*Process, error) {
	if strings.TrimSpace(cfg.Bin) == "" {
		return nil, fmt.Errorf("%s: binary not configured", cfg.Name)
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultHost
	}
	var (
		port int
		err  error
	)
	if cfg.PortStart > 0 && cfg.PortEnd >= cfg.PortStart {
		port, err = pickPortInRange(host, cfg.PortStart, cfg.PortEnd)
	} else {
		port, err = pickFreePort(host)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if report == nil {
		report = func(float64) {}
	}

	var args []string
	if cfg.Args != nil {
		args = cfg.Args(host, port)
	}
	cmd := exec.Command(cfg.Bin, args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Env = append(cmd.Env, "PORT="+strconv.Itoa(port), "HOST="+host)
	tail := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Name, err)
	}

	p := &Process{
		cfg:     cfg,
		cmd:     cmd,
		baseURL: fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port))),
		// No client timeout: every call carries a context deadline.
		client: &http.Client{Timeout: 0},
		stderr: tail,
		log:    loggerOrNop(cfg.Logger).With().Str("backend", cfg.Name).Int("pid", cmd.Process.Pid).Logger(),
		exited: make(chan struct{}),
		report: report,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	p.log.Info().Str("url", p.baseURL).Msg("event=spawn_start")
	return p, nil
}

// BaseURL is the server root, e.g. http://127.0.0.1:31000.
func (p *Process) BaseURL() string { return p.baseURL }

// PID of the spawned process.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// HTTPClient is shared by the backend talking to this process.
func (p *Process) HTTPClient() *http.Client { return p.client }

// AwaitReady polls the health paths until one answers 2xx, the process
// exits, or ctx ends. Progress climbs toward 0.9 while polling.
func (p *Process) AwaitReady(ctx context.Context) error {
	t := time.NewTicker(p.cfg.PollInterval)
	defer t.Stop()
	for attempt := 1; ; attempt++ {
		select {
		case <-p.exited:
			tail := p.stderr.String()
			p.log.Warn().AnErr("exit", p.waitErr).Msg("event=exit_early")
			if p.waitErr != nil {
				return fmt.Errorf("%s exited early: %v; stderr tail: %s", p.cfg.Name, p.waitErr, tail)
			}
			return fmt.Errorf("%s exited before ready; stderr tail: %s", p.cfg.Name, tail)
		default:
		}
		if p.healthy(ctx) {
			p.log.Info().Str("url", p.baseURL).Int("polls", attempt).Msg("event=ready")
			return nil
		}
		p.report(pollProgress(attempt))
		select {
		case <-ctx.Done():
			p.log.Warn().Err(ctx.Err()).Msg("event=ready_timeout")
			return fmt.Errorf("%s not ready: %w", p.cfg.Name, ctx.Err())
		case <-t.C:
		case <-p.exited:
		}
	}
}

func loggerOrNop(l *zerolog.Logger) *zerolog.Logger {
	if l == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return l
}

func pollProgress(attempt int) float64 {
	f := 0.2 + 0.05*float64(attempt)
	if f > 0.9 {
		f = 0.9
	}
	return f
}

func (p *Process) healthy(ctx context.Context) bool {
	paths := p.cfg.HealthPaths
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	for _, path := range paths {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		req, err := http.NewRequestWithContext(cctx, http.MethodGet, p.baseURL+path, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := p.client.Do(req)
		cancel()
		if err != nil {
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
	}
	return false
}

// Stop sends SIGTERM and kills the process if it has not exited within the
// stop timeout. Safe to call more than once.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.exited:
		case <-time.After(p.cfg.StopTimeout):
			_ = p.cmd.Process.Kill()
			<-p.exited
			p.log.Warn().Dur("timeout", p.cfg.StopTimeout).Msg("event=stop_killed")
		}
		p.log.Info().Msg("event=spawn_stop")
	})
	return nil
}

// Exited reports whether the process has terminated.
func (p *Process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Footprint returns the resident set size of the process from
// /proc/<pid>/statm.
func (p *Process) Footprint() (int64, error) {
	if p.Exited() {
		return 0, errors.New(p.cfg.Name + " has exited")
	}
	return residentBytes(p.PID())
}

func residentBytes(pid int) (int64, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(b))
	if len(fields) < 2 {
		return 0, fmt.Errorf("statm: unexpected format %q", string(b))
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("statm: %w", err)
	}
	return pages * int64(os.Getpagesize()), nil
}

func pickPortInRange(host string, start, end int) (int, error) {
	for port := start; port <= end; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
