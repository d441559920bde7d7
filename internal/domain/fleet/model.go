package fleet

import (
	"time"

	"github.com/google/uuid"

	"github.com/emsops/emsops/internal/platform/db"
)

const DateLayout = "2006-01-02"

type Ambulance struct {
	ID     uuid.UUID `json:"id"`
	Code   string    `json:"code"`
	Plate  string    `json:"plate"`
	Model  *string   `json:"model,omitempty"`
	Active bool      `json:"active"`
	db.Audit
}

type AmbulanceCreateRequest struct {
	Code  string  `json:"code" validate:"required,max=20"`
	Plate string  `json:"plate" validate:"required,max=20"`
	Model *string `json:"model" validate:"omitempty,max=100"`
}

type AmbulancePatch struct {
	Code   *string `json:"code" validate:"omitempty,min=1,max=20"`
	Plate  *string `json:"plate" validate:"omitempty,min=1,max=20"`
	Model  *string `json:"model" validate:"omitempty,max=100"`
	Active *bool   `json:"active"`
}

func (p *AmbulancePatch) Apply(a *Ambulance) {
	if p.Code != nil {
		a.Code = *p.Code
	}
	if p.Plate != nil {
		a.Plate = *p.Plate
	}
	if p.Model != nil {
		a.Model = p.Model
	}
	if p.Active != nil {
		a.Active = *p.Active
	}
}

// Inventory is the equipment check of one ambulance for one shift.
type Inventory struct {
	ID                 uuid.UUID       `json:"id"`
	AmbulanceID        uuid.UUID       `json:"ambulance_id"`
	InventoryDate      time.Time       `json:"inventory_date"`
	ShiftID            uuid.UUID       `json:"shift_id"`
	ResponsibleStaffID uuid.UUID       `json:"responsible_staff_id"`
	Notes              *string         `json:"notes,omitempty"`
	Items              []InventoryItem `json:"items"`
	db.Audit
}

type InventoryItem struct {
	ID          uuid.UUID `json:"id"`
	InventoryID uuid.UUID `json:"inventory_id"`
	Name        string    `json:"name"`
	Category    *string   `json:"category,omitempty"`
	ExpectedQty int       `json:"expected_qty"`
	ActualQty   int       `json:"actual_qty"`
	Notes       *string   `json:"notes,omitempty"`
}

// Shortage is an item counted below its expected quantity.
type Shortage struct {
	ItemID      uuid.UUID `json:"item_id"`
	Name        string    `json:"name"`
	Category    *string   `json:"category,omitempty"`
	ExpectedQty int       `json:"expected_qty"`
	ActualQty   int       `json:"actual_qty"`
	Missing     int       `json:"missing"`
}

// Shortages lists the items whose actual count is below the expected count.
func (inv *Inventory) Shortages() []Shortage {
	out := []Shortage{}
	for _, it := range inv.Items {
		if it.ActualQty < it.ExpectedQty {
			out = append(out, Shortage{
				ItemID:      it.ID,
				Name:        it.Name,
				Category:    it.Category,
				ExpectedQty: it.ExpectedQty,
				ActualQty:   it.ActualQty,
				Missing:     it.ExpectedQty - it.ActualQty,
			})
		}
	}
	return out
}

type InventoryCreateRequest struct {
	AmbulanceID        uuid.UUID          `json:"ambulance_id" validate:"required"`
	InventoryDate      string             `json:"inventory_date" validate:"required,datetime=2006-01-02"`
	ShiftID            uuid.UUID          `json:"shift_id" validate:"required"`
	ResponsibleStaffID uuid.UUID          `json:"responsible_staff_id"`
	Notes              *string            `json:"notes"`
	Items              []InventoryItemReq `json:"items" validate:"required,min=1,dive"`
}

type InventoryItemReq struct {
	Name        string  `json:"name" validate:"required,max=150"`
	Category    *string `json:"category" validate:"omitempty,max=60"`
	ExpectedQty int     `json:"expected_qty" validate:"gte=0"`
	ActualQty   int     `json:"actual_qty" validate:"gte=0"`
	Notes       *string `json:"notes"`
}

type InventoryFilter struct {
	AmbulanceID *uuid.UUID
	ShiftID     *uuid.UUID
	From        *time.Time
	To          *time.Time
}

// InventoryRecordedPayload is the body of the inventory.recorded event.
type InventoryRecordedPayload struct {
	AmbulanceID   uuid.UUID `json:"ambulance_id"`
	InventoryDate string    `json:"inventory_date"`
	ShiftID       uuid.UUID `json:"shift_id"`
	ItemCount     int       `json:"item_count"`
	ShortageCount int       `json:"shortage_count"`
}
