package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/carvectf/canary/internal/adapters/eventlog"
	service "github.com/carvectf/canary/internal/app"
	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/model"
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

type passingProber struct{}

func (passingProber) Evaluate(_ context.Context, _ config.ProbeSpec, _ string) probe.Outcome {
	return probe.Outcome{Success: true, Message: "ok"}
}

func competition() *config.Competition {
	return &config.Competition{
		Name:  "CarveCTF",
		Teams: []config.Team{{Name: "team1"}},
		Boxes: []config.BoxDef{{Name: "web", Labels: []string{"http"}, Hostname: "web-server"}},
		Checks: []config.CheckDef{
			{
				Name:            "http-example",
				IntervalSeconds: 1,
				Spec:            config.HTTPSpec{URL: "/", Code: 200, Method: config.MethodGet},
			},
		},
	}
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a supervisor over a one-check competition", t, func() {
		store := eventlog.NewMemoryStore()
		svc := service.New(competition(), store, service.WithEvaluator(passingProber{}))

		Convey("When started", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("Then it reports healthy", func() {
				So(svc.Health(ctx), ShouldBeNil)
			})

			Convey("Then it carries a replica id", func() {
				So(svc.ReplicaID(), ShouldNotBeEmpty)
			})

			Convey("Then events land on aligned ticks within one interval", func() {
				deadline := time.Now().Add(2500 * time.Millisecond)
				var entries []eventlog.Entry
				for time.Now().Before(deadline) {
					entries = store.Entries("CarveCTF:http-example:team1")
					if len(entries) > 0 {
						break
					}
					time.Sleep(50 * time.Millisecond)
				}
				So(entries, ShouldNotBeEmpty)

				ts, err := entries[0].ID.PrefixMS()
				So(err, ShouldBeNil)
				So(model.Aligned(ts, 1000), ShouldBeTrue)
				So(entries[0].Fields[model.FieldResult], ShouldEqual, "1")
				So(entries[0].Fields[model.FieldBox], ShouldEqual, "web")
			})
		})

		Convey("When the log store goes away", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			store.SetHealthy(false)

			Convey("Then health reports the failure", func() {
				So(svc.Health(ctx), ShouldNotBeNil)
			})
		})

		Convey("When stopped", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then stopping again is a no-op", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})

			Convey("Then stats reflect the stopped state", func() {
				So(svc.Stats()["started"], ShouldBeFalse)
			})
		})
	})
}
