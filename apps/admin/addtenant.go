package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tenant"
)

// addTenant registers a school directly at the repo, bypassing the
// actor checks of tenant.Service.
func (cli *commandLine) addTenant(name, taxID string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	taxID = core.CleanString(taxID, true /* lower */)

	if err := cli.tenantRepo.CheckTaxIDUniqueness(ctx, taxID); err != nil {
		return err
	}

	now := time.Now().UTC()
	t := tenant.Tenant{
		ID:        uuid.New().String(),
		Name:      name,
		TaxID:     taxID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := cli.tenantRepo.CreateTenant(ctx, t); err != nil {
		return err
	}
	logger.Printf("created tenant %s (%s)", t.Name, t.ID)
	return nil
}
