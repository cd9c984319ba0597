package credentials_test

import (
	"context"
	"errors"
	"testing"

	"github.com/carvectf/canary/internal/domain/credentials"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()

	Convey("Given a static provider", t, func() {
		p := credentials.Static{
			"team1/web": {Username: "admin", Password: "hunter2"},
		}

		Convey("Known targets resolve", func() {
			c, err := p.Lookup(ctx, "team1", "web")
			So(err, ShouldBeNil)
			So(c.Username, ShouldEqual, "admin")
			So(c.Password, ShouldEqual, "hunter2")
		})

		Convey("Unknown targets return ErrNotFound", func() {
			_, err := p.Lookup(ctx, "team1", "db")
			So(errors.Is(err, credentials.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given the None provider", t, func() {
		_, err := credentials.None.Lookup(ctx, "team1", "web")
		So(errors.Is(err, credentials.ErrNotFound), ShouldBeTrue)
	})
}
