package permission

import (
	"encoding/json"
	"fmt"
)

// Permissions is the role permission bundle: one Scope per feature and action.
// The zero value denies everything.
type Permissions [featureCount][actionCount]Scope

// Set returns a copy of p with the given cell replaced.
func (p Permissions) Set(feature Feature, action Action, scope Scope) Permissions {
	if feature.Valid() && action.Valid() && scope.Valid() {
		p[feature][action] = scope
	}
	return p
}

// Check returns the scope p grants for feature/action. Unknown cells are ScopeNone.
func (p Permissions) Check(feature Feature, action Action) Scope {
	if !feature.Valid() || !action.Valid() {
		return ScopeNone
	}
	return p[feature][action]
}

func (p Permissions) Allows(feature Feature, action Action, min Scope) bool {
	got := p.Check(feature, action)
	return got.Allowed() && got.Covers(min)
}

// Grants reports whether any cell is allowed.
func (p Permissions) Grants() bool {
	for f := range p {
		for a := range p[f] {
			if p[f][a].Allowed() {
				return true
			}
		}
	}
	return false
}

// Merge returns the cell-wise maximum of p and other. It never narrows a scope.
func Merge(p, other Permissions) Permissions {
	var out Permissions
	for f := range p {
		for a := range p[f] {
			out[f][a] = MaxScope(p[f][a], other[f][a])
		}
	}
	return out
}

// Covers reports whether p reaches at least as far as other on every cell.
func (p Permissions) Covers(other Permissions) bool {
	for f := range p {
		for a := range p[f] {
			if p[f][a] < other[f][a] {
				return false
			}
		}
	}
	return true
}

// Grant lists every allowed cell as "feature.action_scope".
func (p Permissions) Grant() []string {
	var out []string
	for f := range p {
		for a := range p[f] {
			if p[f][a].Allowed() {
				out = append(out, fmt.Sprintf("%s.%s_%s", Feature(f), Action(a), p[f][a]))
			}
		}
	}
	return out
}

// FromGrants builds a table from dotted permission strings.
func FromGrants(grants ...string) (Permissions, error) {
	var p Permissions
	for _, raw := range grants {
		feature, action, scope, err := ParsePermission(raw)
		if err != nil {
			return Permissions{}, err
		}
		p[feature][action] = MaxScope(p[feature][action], scope)
	}
	return p, nil
}

// MustGrants is FromGrants for static tables.
func MustGrants(grants ...string) Permissions {
	p, err := FromGrants(grants...)
	if err != nil {
		panic(err)
	}
	return p
}

// MarshalJSON writes only allowed cells: {"analytics":{"view":"all"}}.
func (p Permissions) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]string)
	for f := range p {
		for a := range p[f] {
			if !p[f][a].Allowed() {
				continue
			}
			name := Feature(f).String()
			if out[name] == nil {
				out[name] = make(map[string]string)
			}
			out[name][Action(a).String()] = p[f][a].String()
		}
	}
	return json.Marshal(out)
}

func (p *Permissions) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var parsed Permissions
	for featureName, actions := range raw {
		feature, err := ParseFeature(featureName)
		if err != nil {
			return err
		}
		for actionName, scopeName := range actions {
			action, err := ParseAction(actionName)
			if err != nil {
				return err
			}
			scope, err := ParseScope(scopeName)
			if err != nil {
				return err
			}
			parsed[feature][action] = scope
		}
	}
	*p = parsed
	return nil
}
