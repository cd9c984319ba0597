package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/model"
)

// maxBodyBytes bounds how much of a response body is read for regex
// matching.
const maxBodyBytes = 1 << 20

func (e *Evaluator) evaluateHTTP(ctx context.Context, spec config.HTTPSpec, hostname string) Outcome {
	url := spec.URL
	if !strings.Contains(url, "://") {
		url = "http://" + hostname + url
	}

	var req *http.Request
	var err error
	switch spec.Method {
	case config.MethodPost:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(spec.Forms))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	if err != nil {
		return Outcome{Success: false, Message: "bad request: " + err.Error()}
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Outcome{Success: false, Message: transportMessage(ctx, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != spec.Code {
		return Outcome{Success: false, Message: fmt.Sprintf("status=%d want %d", resp.StatusCode, spec.Code)}
	}

	if spec.Regex != "" {
		re, err := regexp.Compile(spec.Regex)
		if err != nil {
			return Outcome{Success: false, Message: "bad regex: " + err.Error()}
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return Outcome{Success: false, Message: transportMessage(ctx, err)}
		}
		if !re.Match(body) {
			return Outcome{Success: false, Message: "regex miss"}
		}
	}

	return Outcome{Success: true, Message: "ok"}
}

// transportMessage maps transport errors onto the short message set
// operators see in scoring events.
func transportMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return MessageTimeout
	}
	if strings.Contains(err.Error(), "connection refused") {
		return "connect refused"
	}
	return model.Truncate("connect fail: "+err.Error(), model.MaxMessageBytes)
}
