package domain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Collision is a set of environments whose distinct releases resolve to
// the same full name in the same namespace.
type Collision struct {
	Namespace    string
	FullName     string
	Environments []string
	Releases     []string
}

// Finding converts the collision into a reportable finding.
func (c Collision) Finding() Finding {
	ns := c.Namespace
	if ns == "" {
		ns = "(default)"
	}
	return Finding{
		Kind:  FindingCollision,
		Field: "fullName",
		Message: fmt.Sprintf("releases %s in environments %s all resolve to %q in namespace %s",
			strings.Join(c.Releases, ", "), strings.Join(c.Environments, ", "), c.FullName, ns),
	}
}

// DetectCollisions groups identities by namespace and full name and
// returns each group that holds more than one distinct release. The
// resolution itself is left untouched; collisions are only reported.
func DetectCollisions(ids []EnvironmentIdentity) []Collision {
	groups := lo.GroupBy(ids, func(e EnvironmentIdentity) string {
		return e.Identity.Input.Release.Namespace + "/" + e.Identity.FullName
	})

	keys := lo.Keys(groups)
	slices.Sort(keys)

	var collisions []Collision
	for _, key := range keys {
		group := groups[key]
		releases := lo.Uniq(lo.Map(group, func(e EnvironmentIdentity, _ int) string {
			return e.Identity.Input.Release.Name
		}))
		if len(releases) < 2 {
			continue
		}
		slices.Sort(releases)
		collisions = append(collisions, Collision{
			Namespace: group[0].Identity.Input.Release.Namespace,
			FullName:  group[0].Identity.FullName,
			Environments: lo.Map(group, func(e EnvironmentIdentity, _ int) string {
				return e.Environment
			}),
			Releases: releases,
		})
	}
	return collisions
}
