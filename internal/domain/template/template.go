// Package template substitutes the closed placeholder set used by check
// specs and box hostname templates. Substitution is textual and single
// pass; there is no expression language and no recursion.
package template

import (
	"context"
	"regexp"
	"sync"

	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/pkg/logger"
)

// Recognized placeholder names.
const (
	PlaceholderTeamName = "team_name"
	PlaceholderBoxName  = "box_name"
	PlaceholderIP       = "ip"
	PlaceholderUsername = "username"
	PlaceholderPassword = "password"
)

var placeholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Values carries the substitutions available for one (team, box) target.
type Values struct {
	TeamName string
	BoxName  string
	IP       string // resolved hostname
	Username string
	Password string

	// HasCreds marks whether Username/Password are real credentials.
	// Rendering a string that references them without credentials fails
	// with ErrNoCredentials.
	HasCreds bool
}

// unknown placeholders are logged once per (check, placeholder).
var warned sync.Map

// Render substitutes the recognized placeholders in s. Unknown
// placeholders are left literal.
func Render(ctx context.Context, check, s string, v Values) (string, error) {
	var missingCreds bool
	out := placeholderRE.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRE.FindStringSubmatch(match)[1]
		switch name {
		case PlaceholderTeamName:
			return v.TeamName
		case PlaceholderBoxName:
			return v.BoxName
		case PlaceholderIP:
			return v.IP
		case PlaceholderUsername:
			if !v.HasCreds {
				missingCreds = true
				return match
			}
			return v.Username
		case PlaceholderPassword:
			if !v.HasCreds {
				missingCreds = true
				return match
			}
			return v.Password
		default:
			warnOnce(ctx, check, name)
			return match
		}
	})
	if missingCreds {
		return "", ErrNoCredentials
	}
	return out, nil
}

func warnOnce(ctx context.Context, check, name string) {
	key := check + "\x00" + name
	if _, loaded := warned.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	logger.Named("template").Warn(ctx, "unknown placeholder left literal",
		logger.String("check", check),
		logger.String("placeholder", name),
	)
}

// ResolveSpec returns a copy of spec with every templated field rendered
// for the target described by v.
func ResolveSpec(ctx context.Context, check string, spec config.ProbeSpec, v Values) (config.ProbeSpec, error) {
	switch s := spec.(type) {
	case config.HTTPSpec:
		var err error
		if s.URL, err = Render(ctx, check, s.URL, v); err != nil {
			return nil, err
		}
		if s.Regex, err = Render(ctx, check, s.Regex, v); err != nil {
			return nil, err
		}
		if s.Forms, err = Render(ctx, check, s.Forms, v); err != nil {
			return nil, err
		}
		return s, nil
	case config.ICMPSpec:
		// No templated fields.
		return s, nil
	case config.SSHSpec:
		var err error
		if s.Username, err = Render(ctx, check, s.Username, v); err != nil {
			return nil, err
		}
		if s.Password, err = Render(ctx, check, s.Password, v); err != nil {
			return nil, err
		}
		return s, nil
	case config.ShellSpec:
		var err error
		if s.Script, err = Render(ctx, check, s.Script, v); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return spec, nil
	}
}
