// Package target expands a check's label selector against the box
// inventory into the concrete probe targets for one team.
package target

import (
	"context"

	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/template"
)

// Domain suffix appended to every resolved hostname. Boxes live under
// <box>.<team>.<competition>.hack inside the competition fabric.
const hostnameSuffix = ".hack"

// Target is one (team, box, hostname) tuple resolved for a check firing.
type Target struct {
	Team     string
	Box      string
	Hostname string
}

// Resolve expands check against the competition's boxes for one team.
// Targets come back in competition box order; an unsatisfied selector
// yields an empty slice. Resolution is a pure function of (box, team).
func Resolve(ctx context.Context, comp *config.Competition, check config.CheckDef, team config.Team) ([]Target, error) {
	var targets []Target
	for _, box := range comp.Boxes {
		if !check.Selector.Matches(box) {
			continue
		}
		hostname, err := Hostname(ctx, comp, check.Name, box, team)
		if err != nil {
			return nil, err
		}
		targets = append(targets, Target{
			Team:     team.Name,
			Box:      box.Name,
			Hostname: hostname,
		})
	}
	return targets, nil
}

// Hostname renders a box's hostname template for one team and qualifies
// it with the competition domain.
func Hostname(ctx context.Context, comp *config.Competition, check string, box config.BoxDef, team config.Team) (string, error) {
	v := template.Values{
		TeamName: team.Name,
		BoxName:  box.Name,
	}
	rendered, err := template.Render(ctx, check, box.Hostname, v)
	if err != nil {
		return "", err
	}
	return rendered + "." + team.Name + "." + comp.Name + hostnameSuffix, nil
}
