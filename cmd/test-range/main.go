// Command test-range stands up a fake target fleet for exercising the
// scoring engine locally: one HTTP listener per (team, box) serving a
// page that contains the team name, so an http check with
// regex "{{ team_name }}" passes against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
)

// Default configuration constants.
const (
	defaultBasePort = 18080
	defaultTeams    = "team1,team2"
	defaultBoxes    = "web,db,auth"
)

func main() {
	var (
		basePort = flag.Int("port", defaultBasePort, "First listen port; each (team, box) takes the next one")
		teams    = flag.String("teams", defaultTeams, "Comma-separated team names")
		boxes    = flag.String("boxes", defaultBoxes, "Comma-separated box names")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rangeID := uuid.NewString()
	port := *basePort
	var servers []*http.Server

	for _, team := range strings.Split(*teams, ",") {
		for _, box := range strings.Split(*boxes, ",") {
			team, box := strings.TrimSpace(team), strings.TrimSpace(box)
			addr := fmt.Sprintf("127.0.0.1:%d", port)
			port++

			mux := http.NewServeMux()
			mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "hello %s from %s (range %s)\n", team, box, rangeID)
			})

			srv := &http.Server{Addr: addr, Handler: mux}
			servers = append(servers, srv)

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				os.Stderr.WriteString("test-range: " + err.Error() + "\n")
				os.Exit(1)
			}
			fmt.Printf("%s/%s -> http://%s/index.html\n", team, box, addr)
			go func() {
				_ = srv.Serve(ln)
			}()
		}
	}

	<-ctx.Done()
	for _, srv := range servers {
		_ = srv.Close()
	}
}
