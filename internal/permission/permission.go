// Package permission defines the fixed feature × action permission table carried by roles.
//
// Every cell holds a Scope. Scopes share one total order (none < own < all) across all
// features, so two tables can always be merged cell by cell without special cases.
package permission

import (
	"errors"
	"fmt"
	"strings"
)

type Feature uint8

const (
	FeatureAnalytics Feature = iota
	FeatureStores
	FeatureBrands
	FeatureUsers
	FeatureRoles
	FeatureBilling
	FeatureCampaigns

	featureCount
)

type Action uint8

const (
	ActionView Action = iota
	ActionCreate
	ActionEdit
	ActionDelete
	ActionManage

	actionCount
)

// Scope qualifies how far an allowed action reaches.
type Scope uint8

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeAll
)

var (
	ErrUnknownFeature = errors.New("unknown_feature")
	ErrUnknownAction  = errors.New("unknown_action")
	ErrUnknownScope   = errors.New("unknown_scope")
)

var featureNames = [featureCount]string{
	FeatureAnalytics: "analytics",
	FeatureStores:    "stores",
	FeatureBrands:    "brands",
	FeatureUsers:     "users",
	FeatureRoles:     "roles",
	FeatureBilling:   "billing",
	FeatureCampaigns: "campaigns",
}

var actionNames = [actionCount]string{
	ActionView:   "view",
	ActionCreate: "create",
	ActionEdit:   "edit",
	ActionDelete: "delete",
	ActionManage: "manage",
}

var scopeNames = [...]string{
	ScopeNone: "none",
	ScopeOwn:  "own",
	ScopeAll:  "all",
}

func (f Feature) String() string {
	if f >= featureCount {
		return fmt.Sprintf("feature(%d)", uint8(f))
	}
	return featureNames[f]
}

func (a Action) String() string {
	if a >= actionCount {
		return fmt.Sprintf("action(%d)", uint8(a))
	}
	return actionNames[a]
}

func (s Scope) String() string {
	if int(s) >= len(scopeNames) {
		return fmt.Sprintf("scope(%d)", uint8(s))
	}
	return scopeNames[s]
}

func (f Feature) Valid() bool { return f < featureCount }
func (a Action) Valid() bool  { return a < actionCount }
func (s Scope) Valid() bool   { return int(s) < len(scopeNames) }

// Allowed reports whether the scope grants anything at all.
func (s Scope) Allowed() bool { return s > ScopeNone }

// Covers reports whether s reaches at least as far as other.
func (s Scope) Covers(other Scope) bool { return s >= other }

// MaxScope returns the wider of two scopes.
func MaxScope(a, b Scope) Scope {
	if a > b {
		return a
	}
	return b
}

func Features() []Feature {
	out := make([]Feature, 0, featureCount)
	for f := Feature(0); f < featureCount; f++ {
		out = append(out, f)
	}
	return out
}

func Actions() []Action {
	out := make([]Action, 0, actionCount)
	for a := Action(0); a < actionCount; a++ {
		out = append(out, a)
	}
	return out
}

func ParseFeature(raw string) (Feature, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for f, n := range featureNames {
		if n == name {
			return Feature(f), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, raw)
}

func ParseAction(raw string) (Action, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for a, n := range actionNames {
		if n == name {
			return Action(a), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

func ParseScope(raw string) (Scope, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "allowed", "true":
		return ScopeAll, nil
	case "", "denied", "false":
		return ScopeNone, nil
	}
	for s, n := range scopeNames {
		if n == name {
			return Scope(s), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownScope, raw)
}

// ParsePermission reads the dotted form used by dashboards, e.g. "analytics.view_own"
// or "stores.manage". A bare action means ScopeAll.
func ParsePermission(raw string) (Feature, Action, Scope, error) {
	featurePart, actionPart, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
	feature, err := ParseFeature(featurePart)
	if err != nil {
		return 0, 0, 0, err
	}

	scope := ScopeAll
	actionName := actionPart
	if name, suffix, found := strings.Cut(actionPart, "_"); found {
		actionName = name
		if scope, err = ParseScope(suffix); err != nil {
			return 0, 0, 0, err
		}
	}
	action, err := ParseAction(actionName)
	if err != nil {
		return 0, 0, 0, err
	}
	return feature, action, scope, nil
}
