package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/internal/permission"
)

// Fixed IDs keep system roles stable across environments.
const (
	SystemRoleOwnerID   snowflake.ID = 1
	SystemRoleAdminID   snowflake.ID = 2
	SystemRoleManagerID snowflake.ID = 3
	SystemRoleAnalystID snowflake.ID = 4
	SystemRoleViewerID  snowflake.ID = 5
)

func ownerPermissions() permission.Permissions {
	var p permission.Permissions
	for _, f := range permission.Features() {
		for _, a := range permission.Actions() {
			p = p.Set(f, a, permission.ScopeAll)
		}
	}
	return p
}

// SystemRoles returns the roles seeded at startup.
func SystemRoles() []Role {
	return []Role{
		{
			ID:          SystemRoleOwnerID,
			Name:        "owner",
			DisplayName: "Owner",
			Description: "Full control of the contract, its stores and billing.",
			Level:       LevelOwner,
			Permissions: ownerPermissions(),
		},
		{
			ID:          SystemRoleAdminID,
			Name:        "admin",
			DisplayName: "Admin",
			Description: "Manages stores, users and roles.",
			Level:       LevelAdmin,
			Permissions: permission.MustGrants(
				"analytics.view_all",
				"stores.view", "stores.create", "stores.edit", "stores.delete", "stores.manage",
				"brands.view", "brands.create", "brands.edit", "brands.delete",
				"users.view", "users.manage",
				"roles.view", "roles.manage",
				"campaigns.view", "campaigns.create", "campaigns.edit", "campaigns.delete",
				"billing.view",
			),
		},
		{
			ID:          SystemRoleManagerID,
			Name:        "manager",
			DisplayName: "Manager",
			Description: "Runs brands and campaigns on assigned stores.",
			Level:       LevelManager,
			Permissions: permission.MustGrants(
				"analytics.view_all",
				"stores.view",
				"brands.view", "brands.create", "brands.edit",
				"campaigns.view", "campaigns.create", "campaigns.edit",
				"users.view",
			),
		},
		{
			ID:          SystemRoleAnalystID,
			Name:        "analyst",
			DisplayName: "Analyst",
			Description: "Reads analytics across assigned stores.",
			Level:       LevelAnalyst,
			Permissions: permission.MustGrants(
				"analytics.view_all",
				"stores.view",
				"brands.view",
				"campaigns.view",
			),
		},
		{
			ID:          SystemRoleViewerID,
			Name:        "viewer",
			DisplayName: "Viewer",
			Description: "Reads its own analytics only.",
			Level:       LevelViewer,
			Permissions: permission.MustGrants(
				"analytics.view_own",
				"stores.view_own",
				"brands.view_own",
				"campaigns.view_own",
			),
		},
	}
}
