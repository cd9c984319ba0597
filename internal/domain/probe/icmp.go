package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/carvectf/canary/internal/config"
)

// errNoReply marks an echo request that got no matching reply.
var errNoReply = errors.New("no reply")

// evaluateICMP sends one echo request. Code 0 expects a reply; a
// non-zero code expects the echo to fail, mirroring how checks encode
// "this box must be unreachable".
func (e *Evaluator) evaluateICMP(ctx context.Context, spec config.ICMPSpec, hostname string) Outcome {
	deadline, ok := ctx.Deadline()
	timeout := config.DefaultProbeTimeout
	if ok {
		timeout = time.Until(deadline)
	}

	rtt, err := e.pinger(ctx, hostname, timeout)
	replied := err == nil

	if spec.Code == 0 {
		if !replied {
			return Outcome{Success: false, Message: "no reply"}
		}
		return Outcome{Success: true, Message: fmt.Sprintf("rtt=%dms", rtt.Milliseconds())}
	}
	if replied {
		return Outcome{Success: false, Message: fmt.Sprintf("reply in %dms want none", rtt.Milliseconds())}
	}
	return Outcome{Success: true, Message: "no reply"}
}

// defaultPinger tries an unprivileged UDP echo first and shells out to
// the platform ping utility when sockets are gated.
func defaultPinger(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, err
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return execPing(ctx, host, timeout)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, errNoReply
	}
	return stats.AvgRtt, nil
}

// execPing matches the socket-based path's semantics: one echo, bounded
// wait. On success the elapsed time of the whole ping command stands in
// for the RTT.
func execPing(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", strconv.Itoa(secs), host)
	if err := cmd.Run(); err != nil {
		return 0, errNoReply
	}
	return time.Since(start), nil
}
