// Package probe executes one check spec against one resolved target and
// reduces the observation to a pass/fail outcome with a short message.
package probe

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/carvectf/canary/internal/config"
)

// Outcome is the verdict of one probe against one target.
type Outcome struct {
	Success bool
	Message string
}

// MessageTimeout is reported when an HTTP, SSH, or shell probe exhausts
// its budget. An ICMP probe that gets no reply inside the budget reports
// "no reply" instead.
const MessageTimeout = "timeout"

// Evaluator runs probes. The zero value is not usable; use New.
type Evaluator struct {
	httpClient *http.Client
	pinger     Pinger
	sandbox    SandboxArgv
	lookupHost LookupHost
}

// Pinger sends one echo request and returns the round-trip time, or an
// error when no reply arrived inside timeout.
type Pinger func(ctx context.Context, host string, timeout time.Duration) (time.Duration, error)

// SandboxArgv builds the argv that runs a shell spec's script against
// one target address.
type SandboxArgv func(spec config.ShellSpec, addr string) []string

// LookupHost resolves a hostname to addresses.
type LookupHost func(ctx context.Context, host string) ([]string, error)

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Evaluator) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithPinger overrides the ICMP pinger.
func WithPinger(p Pinger) Option {
	return func(e *Evaluator) {
		if p != nil {
			e.pinger = p
		}
	}
}

// WithSandbox overrides the sandbox command builder for shell specs.
func WithSandbox(s SandboxArgv) Option {
	return func(e *Evaluator) {
		if s != nil {
			e.sandbox = s
		}
	}
}

// WithLookupHost overrides hostname resolution for shell specs.
func WithLookupHost(l LookupHost) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.lookupHost = l
		}
	}
}

// New constructs an Evaluator. Targets are intentionally weakly
// configured, so TLS verification stays disabled.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:   &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // scoring targets use throwaway certs
				DisableKeepAlives: true,
			},
		},
		pinger:     defaultPinger,
		sandbox:    nixShellArgv,
		lookupHost: net.DefaultResolver.LookupHost,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate runs the probe described by spec against hostname. It never
// blocks past the spec's budget; budget exhaustion reports a timeout
// outcome rather than an error.
func (e *Evaluator) Evaluate(ctx context.Context, spec config.ProbeSpec, hostname string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, spec.Budget())
	defer cancel()

	switch s := spec.(type) {
	case config.HTTPSpec:
		return e.evaluateHTTP(ctx, s, hostname)
	case config.ICMPSpec:
		return e.evaluateICMP(ctx, s, hostname)
	case config.SSHSpec:
		return e.evaluateSSH(ctx, s, hostname)
	case config.ShellSpec:
		return e.evaluateShell(ctx, s, hostname)
	default:
		return Outcome{Success: false, Message: "unknown probe family"}
	}
}
