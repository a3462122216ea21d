package tenant

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
)

type Tenant struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"` // trade name
	LegalName  string    `json:"legal_name" db:"legal_name"`
	TaxID      string    `json:"tax_id" db:"tax_id"`
	Email      string    `json:"email" db:"email"`
	Phone      string    `json:"phone" db:"phone"`
	Address    string    `json:"address" db:"address"`
	City       string    `json:"city" db:"city"`
	State      string    `json:"state" db:"state"`
	PostalCode string    `json:"postal_code" db:"postal_code"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type NewTenant struct {
	Name       string `json:"name" validate:"required,max=100"`
	LegalName  string `json:"legal_name" validate:"omitempty,max=255"`
	TaxID      string `json:"tax_id" validate:"required,max=30,alphanum_"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	Address    string `json:"address" validate:"omitempty,max=255"`
	City       string `json:"city" validate:"omitempty,max=100"`
	State      string `json:"state" validate:"omitempty,max=50"`
	PostalCode string `json:"postal_code" validate:"omitempty,max=10"`
}

func (nt *NewTenant) Validate(ctx context.Context, svc *Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.LegalName = core.CleanString(nt.LegalName)
	nt.TaxID = core.CleanString(nt.TaxID, true)
	nt.Email = core.CleanString(nt.Email, true)
	nt.Phone = core.CleanString(nt.Phone)
	nt.Address = core.CleanString(nt.Address)
	nt.City = core.CleanString(nt.City)
	nt.State = core.CleanString(nt.State)
	nt.PostalCode = core.CleanString(nt.PostalCode)

	if err := core.Validate.StructCtx(ctx, nt); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return svc.checkTaxIDUniqueness(ctx, nt.TaxID)
}

type UpdateTenant struct {
	Name       string `json:"name" validate:"omitempty,max=100"`
	LegalName  string `json:"legal_name" validate:"omitempty,max=255"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	Address    string `json:"address" validate:"omitempty,max=255"`
	City       string `json:"city" validate:"omitempty,max=100"`
	State      string `json:"state" validate:"omitempty,max=50"`
	PostalCode string `json:"postal_code" validate:"omitempty,max=10"`
	IsActive   *bool  `json:"is_active"`
}

func (ut *UpdateTenant) Validate(ctx context.Context) error {
	ut.Name = core.CleanString(ut.Name)
	ut.LegalName = core.CleanString(ut.LegalName)
	ut.Email = core.CleanString(ut.Email, true)
	ut.Phone = core.CleanString(ut.Phone)
	ut.Address = core.CleanString(ut.Address)
	ut.City = core.CleanString(ut.City)
	ut.State = core.CleanString(ut.State)
	ut.PostalCode = core.CleanString(ut.PostalCode)

	if err := core.Validate.StructCtx(ctx, ut); err != nil {
		return core.NewValidationError(err, core.TranslateValidationErrors(err)...)
	}
	return nil
}

type QueryFilter struct {
	Search   string `query:"search"` // matches name, tax_id or city
	IsActive *bool  `query:"is_active"`
}
