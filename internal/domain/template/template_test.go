package template_test

import (
	"context"
	"errors"
	"testing"

	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/template"
	"github.com/carvectf/canary/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func TestRender(t *testing.T) {
	ctx := context.Background()

	Convey("Given target values", t, func() {
		v := template.Values{
			TeamName: "team1",
			BoxName:  "web",
			IP:       "web-server.team1.CarveCTF.hack",
			Username: "admin",
			Password: "hunter2",
			HasCreds: true,
		}

		Convey("Recognized placeholders substitute", func() {
			out, err := template.Render(ctx, "c", "GET /{{ team_name }}/{{ box_name }} via {{ ip }}", v)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "GET /team1/web via web-server.team1.CarveCTF.hack")
		})

		Convey("Whitespace inside the braces is tolerated", func() {
			out, err := template.Render(ctx, "c", "{{team_name}}/{{  team_name  }}", v)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "team1/team1")
		})

		Convey("Credentials substitute when present", func() {
			out, err := template.Render(ctx, "c", "{{ username }}:{{ password }}", v)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "admin:hunter2")
		})

		Convey("Unknown placeholders are left literal", func() {
			out, err := template.Render(ctx, "c", "{{ flag }} for {{ team_name }}", v)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "{{ flag }} for team1")
		})

		Convey("Substitution is single pass", func() {
			v2 := v
			v2.TeamName = "{{ password }}"
			out, err := template.Render(ctx, "c", "{{ team_name }}", v2)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "{{ password }}")
		})
	})

	Convey("Given a target without credentials", t, func() {
		v := template.Values{TeamName: "team1", HasCreds: false}

		Convey("Credential placeholders fail with ErrNoCredentials", func() {
			_, err := template.Render(ctx, "c", "login {{ username }}", v)
			So(errors.Is(err, template.ErrNoCredentials), ShouldBeTrue)

			_, err = template.Render(ctx, "c", "pw {{ password }}", v)
			So(errors.Is(err, template.ErrNoCredentials), ShouldBeTrue)
		})

		Convey("Strings without credential placeholders still render", func() {
			out, err := template.Render(ctx, "c", "/index.html?t={{ team_name }}", v)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "/index.html?t=team1")
		})
	})
}

func TestResolveSpec(t *testing.T) {
	ctx := context.Background()

	Convey("Given target values with credentials", t, func() {
		v := template.Values{
			TeamName: "team1",
			BoxName:  "web",
			IP:       "10.0.0.5",
			Username: "admin",
			Password: "hunter2",
			HasCreds: true,
		}

		Convey("HTTP specs render url, regex, and forms", func() {
			spec := config.HTTPSpec{
				URL:    "/login?next={{ team_name }}",
				Code:   200,
				Regex:  "hello {{ team_name }}",
				Method: config.MethodPost,
				Forms:  "user={{ username }}&pass={{ password }}",
			}
			out, err := template.ResolveSpec(ctx, "c", spec, v)
			So(err, ShouldBeNil)
			http := out.(config.HTTPSpec)
			So(http.URL, ShouldEqual, "/login?next=team1")
			So(http.Regex, ShouldEqual, "hello team1")
			So(http.Forms, ShouldEqual, "user=admin&pass=hunter2")
		})

		Convey("SSH specs render username and password", func() {
			spec := config.SSHSpec{Port: 22, Username: "{{ username }}", Password: "{{ password }}"}
			out, err := template.ResolveSpec(ctx, "c", spec, v)
			So(err, ShouldBeNil)
			ssh := out.(config.SSHSpec)
			So(ssh.Username, ShouldEqual, "admin")
			So(ssh.Password, ShouldEqual, "hunter2")
		})

		Convey("Shell specs render the script", func() {
			spec := config.ShellSpec{Script: "curl -u {{ username }}:{{ password }} http://$1/"}
			out, err := template.ResolveSpec(ctx, "c", spec, v)
			So(err, ShouldBeNil)
			So(out.(config.ShellSpec).Script, ShouldEqual, "curl -u admin:hunter2 http://$1/")
		})

		Convey("ICMP specs pass through untouched", func() {
			spec := config.ICMPSpec{Code: 0}
			out, err := template.ResolveSpec(ctx, "c", spec, v)
			So(err, ShouldBeNil)
			So(out, ShouldResemble, spec)
		})
	})

	Convey("Given a target without credentials", t, func() {
		v := template.Values{TeamName: "team1"}

		Convey("A credentialed SSH spec fails with ErrNoCredentials", func() {
			spec := config.SSHSpec{Port: 22, Username: "{{ username }}", Password: "{{ password }}"}
			_, err := template.ResolveSpec(ctx, "c", spec, v)
			So(errors.Is(err, template.ErrNoCredentials), ShouldBeTrue)
		})

		Convey("A static SSH spec renders fine", func() {
			spec := config.SSHSpec{Port: 22, Username: "root", Password: "toor"}
			out, err := template.ResolveSpec(ctx, "c", spec, v)
			So(err, ShouldBeNil)
			So(out.(config.SSHSpec).Username, ShouldEqual, "root")
		})
	})
}
