package probe

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/carvectf/canary/internal/config"
)

// evaluateSSH authenticates against the target and disconnects; no
// commands are executed.
func (e *Evaluator) evaluateSSH(ctx context.Context, spec config.SSHSpec, hostname string) Outcome {
	var auth []ssh.AuthMethod
	if spec.Password != "" {
		auth = append(auth, ssh.Password(spec.Password))
	}
	if spec.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(spec.PrivateKey))
		if err != nil {
			return Outcome{Success: false, Message: "bad private key"}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return Outcome{Success: false, Message: "auth fail"}
	}

	cfg := &ssh.ClientConfig{
		User:            spec.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // scoring targets regenerate host keys per reset
	}

	addr := fmt.Sprintf("%s:%d", hostname, spec.Port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Success: false, Message: MessageTimeout}
		}
		return Outcome{Success: false, Message: "connect fail"}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Success: false, Message: MessageTimeout}
		}
		return Outcome{Success: false, Message: "auth fail"}
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	_ = client.Close()

	return Outcome{Success: true, Message: "ok"}
}
