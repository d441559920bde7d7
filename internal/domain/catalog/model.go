package catalog

import (
	"github.com/google/uuid"

	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/db"
)

// Kind names a reference list.
type Kind string

const (
	KindDiagnosis            Kind = "diagnosis"
	KindReceivingInstitution Kind = "receiving_institution"
	KindShift                Kind = "shift"
	KindSkinCondition        Kind = "skin_condition"
	KindHemodynamicStatus    Kind = "hemodynamic_status"
)

var kinds = map[Kind]struct{}{
	KindDiagnosis:            {},
	KindReceivingInstitution: {},
	KindShift:                {},
	KindSkinCondition:        {},
	KindHemodynamicStatus:    {},
}

// ParseKind accepts the singular kind or the plural path segment used by the
// HTTP routes ("diagnoses", "shifts", ...).
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kinds[k]; ok {
		return k, nil
	}
	if k, ok := plurals[s]; ok {
		return k, nil
	}
	return "", apperr.ValidationField("kind", "unknown catalog kind %q", s)
}

var plurals = map[string]Kind{
	"diagnoses":              KindDiagnosis,
	"receiving_institutions": KindReceivingInstitution,
	"shifts":                 KindShift,
	"skin_conditions":        KindSkinCondition,
	"hemodynamic_statuses":   KindHemodynamicStatus,
}

// Item is one entry of a reference catalog.
type Item struct {
	ID          uuid.UUID `json:"id"`
	Kind        Kind      `json:"kind"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Active      bool      `json:"active"`
	db.Audit
}

type CreateRequest struct {
	Code        string  `json:"code" validate:"required,max=40"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description"`
}

type Patch struct {
	Code        *string `json:"code" validate:"omitempty,min=1,max=40"`
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func (p *Patch) Apply(it *Item) {
	if p.Code != nil {
		it.Code = *p.Code
	}
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Description != nil {
		it.Description = p.Description
	}
	if p.Active != nil {
		it.Active = *p.Active
	}
}

type Filter struct {
	Active *bool
	Query  string
}
