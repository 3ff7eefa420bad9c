package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/permission"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidActor = errors.New("invalid_actor")
)

// Guard decides whether an actor may perform an administrative operation on a contract.
type Guard interface {
	Authorize(ctx context.Context, actorID, contractID snowflake.ID, feature permission.Feature, action permission.Action, min permission.Scope) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Seats    seatdomain.Repository
	Roles    roledomain.Repository
	Audit    auditdomain.Service `optional:"true"`
}

type guard struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	seats    seatdomain.Repository
	roles    roledomain.Repository
	audit    auditdomain.Service

	mirrorMu sync.Mutex
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewGuard(p Params) Guard {
	return &guard{
		log:      p.Log.Named("authorization.guard"),
		enforcer: p.Enforcer,
		seats:    p.Seats,
		roles:    p.Roles,
		audit:    p.Audit,
	}
}

func (g *guard) Authorize(ctx context.Context, actorID, contractID snowflake.ID, feature permission.Feature, action permission.Action, min permission.Scope) error {
	if actorID == 0 {
		return ErrInvalidActor
	}
	if !feature.Valid() {
		return permission.ErrUnknownFeature
	}
	if !action.Valid() {
		return permission.ErrUnknownAction
	}
	if min < permission.ScopeOwn {
		min = permission.ScopeOwn
	}
	object, act := feature.String(), actionKey(action, min)

	seat, err := g.seats.FindByUserAndContract(ctx, actorID, contractID)
	if err != nil {
		if errors.Is(err, seatdomain.ErrNotFound) {
			g.denied(ctx, actorID, contractID, object, act)
			return ErrForbidden
		}
		return err
	}
	if seat.Status != seatdomain.SeatStatusActive {
		g.denied(ctx, actorID, contractID, object, act)
		return ErrForbidden
	}

	role, err := g.roles.FindByID(ctx, seat.DefaultRoleID)
	if err != nil {
		return err
	}
	roleSubject := roleSubject(role.ID)
	if err := g.mirrorRole(roleSubject, role.Permissions); err != nil {
		return err
	}

	subject := fmt.Sprintf("user:%s", actorID)
	domain := fmt.Sprintf("contract:%s", contractID)
	if err := g.ensureGrouping(subject, roleSubject, domain); err != nil {
		return err
	}

	allowed, err := g.enforcer.Enforce(subject, domain, object, act)
	if err != nil {
		return err
	}
	if !allowed {
		g.denied(ctx, actorID, contractID, object, act)
		return ErrForbidden
	}
	return nil
}

// mirrorRole keeps the casbin policies for a role equal to its permission table.
// A cell granted at scope s yields one policy per scope up to s.
func (g *guard) mirrorRole(subject string, perms permission.Permissions) error {
	desired := rolePolicies(subject, perms)

	g.mirrorMu.Lock()
	defer g.mirrorMu.Unlock()

	existing, err := g.enforcer.GetFilteredPolicy(0, subject)
	if err != nil {
		return err
	}
	if samePolicies(existing, desired) {
		return nil
	}
	if len(existing) > 0 {
		if _, err := g.enforcer.RemoveFilteredPolicy(0, subject); err != nil {
			return err
		}
	}
	if len(desired) == 0 {
		return nil
	}
	_, err = g.enforcer.AddPolicies(desired)
	return err
}

func (g *guard) ensureGrouping(subject, roleName, domain string) error {
	existing, err := g.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := g.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := g.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil || has {
		return err
	}
	_, err = g.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (g *guard) denied(ctx context.Context, actorID, contractID snowflake.ID, object, act string) {
	g.log.Debug("authorization denied",
		zap.String("actor_id", actorID.String()),
		zap.String("contract_id", contractID.String()),
		zap.String("object", object),
		zap.String("action", act),
	)
	if g.audit == nil {
		return
	}
	target := "capability"
	err := g.audit.AuditLog(ctx, &contractID, auditdomain.ActionAuthorizationDenied, "authorization", &target, map[string]any{
		"object":  object,
		"action":  act,
		"subject": fmt.Sprintf("user:%s", actorID),
	})
	if err != nil {
		g.log.Warn("audit write failed", zap.Error(err))
	}
}

func roleSubject(id snowflake.ID) string {
	return fmt.Sprintf("role:%s", id)
}

func actionKey(action permission.Action, scope permission.Scope) string {
	return action.String() + ":" + scope.String()
}

func rolePolicies(subject string, perms permission.Permissions) [][]string {
	var out [][]string
	for _, f := range permission.Features() {
		for _, a := range permission.Actions() {
			granted := perms.Check(f, a)
			for s := permission.ScopeOwn; s <= granted; s++ {
				out = append(out, []string{subject, f.String(), actionKey(a, s)})
			}
		}
	}
	return out
}

func samePolicies(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(rules [][]string) []string {
		out := make([]string, 0, len(rules))
		for _, rule := range rules {
			out = append(out, strings.Join(rule, "|"))
		}
		sort.Strings(out)
		return out
	}
	ka, kb := key(a), key(b)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}
