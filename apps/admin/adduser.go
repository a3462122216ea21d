package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// addUser creates a user.User directly at the repo, bypassing the
// actor checks of user.Service. Meant for bootstrapping the first
// SYSTEM_ADMIN account.
func (cli *commandLine) addUser(name, email, role, tenantID, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	role = core.CleanString(role)

	var known bool
	for _, r := range user.AllRoles {
		if r == role {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown role %q", role)
	}
	if role != user.RoleSystemAdmin && tenantID == "" {
		return fmt.Errorf("role %s requires -tenant", role)
	}
	if role == user.RoleSystemAdmin && tenantID != "" {
		return fmt.Errorf("system admins do not belong to a school")
	}

	if err := cli.usrRepo.CheckEmailUniqueness(ctx, email, nil); err != nil {
		return err
	}

	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		TenantID:  tenantID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.CreateUser(ctx, usr); err != nil {
		return err
	}
	logger.Printf("created %s %s (%s)", usr.Role, usr.Email, usr.ID)
	return nil
}
