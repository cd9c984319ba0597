package probe_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/probe"
	"github.com/carvectf/canary/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func TestEvaluateHTTP(t *testing.T) {
	ctx := context.Background()

	Convey("Given a target serving a team page", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/index.html":
				fmt.Fprint(w, "hello team1")
			case "/login":
				if r.Method == http.MethodPost {
					_ = r.ParseForm()
					if r.PostForm.Get("user") == "admin" {
						fmt.Fprint(w, "welcome")
						return
					}
				}
				w.WriteHeader(http.StatusForbidden)
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		e := probe.New()
		host := strings.TrimPrefix(srv.URL, "http://")

		Convey("Status and regex both matching passes", func() {
			out := e.Evaluate(ctx, config.HTTPSpec{URL: "/index.html", Code: 200, Regex: "team1", Method: config.MethodGet}, host)
			So(out.Success, ShouldBeTrue)
			So(out.Message, ShouldEqual, "ok")
		})

		Convey("A status mismatch names both codes", func() {
			out := e.Evaluate(ctx, config.HTTPSpec{URL: "/missing", Code: 200, Method: config.MethodGet}, host)
			So(out.Success, ShouldBeFalse)
			So(out.Message, ShouldEqual, "status=404 want 200")
		})

		Convey("A regex miss is reported as such", func() {
			out := e.Evaluate(ctx, config.HTTPSpec{URL: "/index.html", Code: 200, Regex: "team2", Method: config.MethodGet}, host)
			So(out.Success, ShouldBeFalse)
			So(out.Message, ShouldEqual, "regex miss")
		})

		Convey("A form post carries the urlencoded body", func() {
			out := e.Evaluate(ctx, config.HTTPSpec{
				URL:    "/login",
				Code:   200,
				Regex:  "welcome",
				Method: config.MethodPost,
				Forms:  "user=admin&pass=hunter2",
			}, host)
			So(out.Success, ShouldBeTrue)
		})

		Convey("An absolute URL bypasses the hostname", func() {
			out := e.Evaluate(ctx, config.HTTPSpec{URL: srv.URL + "/index.html", Code: 200, Method: config.MethodGet}, "ignored.invalid")
			So(out.Success, ShouldBeTrue)
		})
	})

	Convey("Given no listener on the target port", t, func() {
		e := probe.New()

		out := e.Evaluate(ctx, config.HTTPSpec{URL: "/", Code: 200, Method: config.MethodGet, TimeoutSeconds: 2}, "127.0.0.1:1")
		So(out.Success, ShouldBeFalse)
		So(out.Message, ShouldEqual, "connect refused")
	})

	Convey("Given a target slower than the budget", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(1500 * time.Millisecond)
		}))
		defer srv.Close()

		e := probe.New()
		host := strings.TrimPrefix(srv.URL, "http://")

		out := e.Evaluate(ctx, config.HTTPSpec{URL: "/", Code: 200, Method: config.MethodGet, TimeoutSeconds: 1}, host)
		So(out.Success, ShouldBeFalse)
		So(out.Message, ShouldEqual, probe.MessageTimeout)
	})
}

func TestEvaluateICMP(t *testing.T) {
	ctx := context.Background()

	Convey("Given an injected pinger", t, func() {
		replies := func(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
			return 12 * time.Millisecond, nil
		}
		silent := func(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
			return 0, fmt.Errorf("no reply")
		}

		Convey("Code 0 with a reply passes and reports the RTT", func() {
			e := probe.New(probe.WithPinger(replies))
			out := e.Evaluate(ctx, config.ICMPSpec{Code: 0}, "web-server.team1.CarveCTF.hack")
			So(out.Success, ShouldBeTrue)
			So(out.Message, ShouldEqual, "rtt=12ms")
		})

		Convey("Code 0 without a reply fails", func() {
			e := probe.New(probe.WithPinger(silent))
			out := e.Evaluate(ctx, config.ICMPSpec{Code: 0}, "db-server.team1.CarveCTF.hack")
			So(out.Success, ShouldBeFalse)
			So(out.Message, ShouldEqual, "no reply")
		})

		Convey("A non-zero code inverts the expectation", func() {
			e := probe.New(probe.WithPinger(silent))
			out := e.Evaluate(ctx, config.ICMPSpec{Code: 3}, "db-server.team1.CarveCTF.hack")
			So(out.Success, ShouldBeTrue)

			e = probe.New(probe.WithPinger(replies))
			out = e.Evaluate(ctx, config.ICMPSpec{Code: 3}, "web-server.team1.CarveCTF.hack")
			So(out.Success, ShouldBeFalse)
		})
	})
}

func TestEvaluateSSH(t *testing.T) {
	ctx := context.Background()

	Convey("Given SSH specs", t, func() {
		e := probe.New()

		Convey("A closed port reports connect fail", func() {
			out := e.Evaluate(ctx, config.SSHSpec{Port: 1, Username: "root", Password: "toor", TimeoutSeconds: 2}, "127.0.0.1")
			So(out.Success, ShouldBeFalse)
			So(out.Message, ShouldEqual, "connect fail")
		})

		Convey("A spec without any auth method fails fast", func() {
			out := e.Evaluate(ctx, config.SSHSpec{Port: 22, Username: "root"}, "127.0.0.1")
			So(out.Success, ShouldBeFalse)
			So(out.Message, ShouldEqual, "auth fail")
		})

		Convey("A malformed private key is rejected", func() {
			out := e.Evaluate(ctx, config.SSHSpec{Port: 22, Username: "root", PrivateKey: "not a key"}, "127.0.0.1")
			So(out.Success, ShouldBeFalse)
			So(out.Message, ShouldEqual, "bad private key")
		})
	})
}

func TestEvaluateShell(t *testing.T) {
	ctx := context.Background()

	// Run scripts with plain sh instead of nix-shell so tests do not
	// need a nix store.
	sandbox := func(spec config.ShellSpec, addr string) []string {
		return []string{"sh", "-c", spec.Script, "canary", addr}
	}
	noResolve := func(ctx context.Context, host string) ([]string, error) {
		return nil, fmt.Errorf("no such host")
	}

	Convey("Given a sandboxed shell evaluator", t, func() {
		e := probe.New(probe.WithSandbox(sandbox), probe.WithLookupHost(noResolve))

		Convey("A zero exit passes with the last output line", func() {
			out := e.Evaluate(ctx, config.ShellSpec{Script: "echo first; echo last"}, "web.team1.c.hack")
			So(out.Success, ShouldBeTrue)
			So(out.Message, ShouldEqual, "last")
		})

		Convey("The target address arrives as $1", func() {
			out := e.Evaluate(ctx, config.ShellSpec{Script: `echo "target=$1"`}, "web.team1.c.hack")
			So(out.Success, ShouldBeTrue)
			So(out.Message, ShouldEqual, "target=web.team1.c.hack")
		})

		Convey("A non-zero exit fails with the last stderr line", func() {
			out := e.Evaluate(ctx, config.ShellSpec{Script: "echo oops >&2; exit 1"}, "web.team1.c.hack")
			So(out.Success, ShouldBeFalse)
			So(out.Message, ShouldEqual, "oops")
		})

		Convey("A silent success reports ok", func() {
			out := e.Evaluate(ctx, config.ShellSpec{Script: "true"}, "web.team1.c.hack")
			So(out.Success, ShouldBeTrue)
			So(out.Message, ShouldEqual, "ok")
		})

		Convey("A script overrunning its budget reports timeout", func() {
			out := e.Evaluate(ctx, config.ShellSpec{Script: "sleep 5", TimeoutSeconds: 1}, "web.team1.c.hack")
			So(out.Success, ShouldBeFalse)
			So(out.Message, ShouldEqual, probe.MessageTimeout)
		})
	})
}
