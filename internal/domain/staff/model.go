package staff

import (
	"github.com/google/uuid"

	"github.com/emsops/emsops/internal/platform/db"
)

type Type string

const (
	TypeParamedic  Type = "paramedic"
	TypeDriver     Type = "driver"
	TypeDoctor     Type = "doctor"
	TypeNurse      Type = "nurse"
	TypeDispatcher Type = "dispatcher"
	TypeAdmin      Type = "admin"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleCrew       Role = "crew"
)

// Staff is a crew member or back-office user. Every staff member can log in.
type Staff struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	DocumentNumber string    `json:"document_number"`
	StaffType      Type      `json:"staff_type"`
	Role           Role      `json:"role"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Active         bool      `json:"active"`
	Phone          *string   `json:"phone,omitempty"`
	Email          *string   `json:"email,omitempty"`
	db.Audit
}

func (s *Staff) FullName() string {
	return s.FirstName + " " + s.LastName
}

type CreateRequest struct {
	FirstName      string  `json:"first_name" validate:"required,max=100"`
	LastName       string  `json:"last_name" validate:"required,max=100"`
	DocumentNumber string  `json:"document_number" validate:"required,max=30"`
	StaffType      Type    `json:"staff_type" validate:"required,oneof=paramedic driver doctor nurse dispatcher admin"`
	Role           Role    `json:"role" validate:"required,oneof=admin supervisor crew"`
	Username       string  `json:"username" validate:"required,min=3,max=60"`
	Password       string  `json:"password" validate:"required,min=8,max=72"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
	Email          *string `json:"email" validate:"omitempty,email"`
}

// Patch updates only the fields that are present.
type Patch struct {
	FirstName      *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName       *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	DocumentNumber *string `json:"document_number" validate:"omitempty,min=1,max=30"`
	StaffType      *Type   `json:"staff_type" validate:"omitempty,oneof=paramedic driver doctor nurse dispatcher admin"`
	Role           *Role   `json:"role" validate:"omitempty,oneof=admin supervisor crew"`
	Active         *bool   `json:"active"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
	Email          *string `json:"email" validate:"omitempty,email"`
}

func (p *Patch) Apply(s *Staff) {
	if p.FirstName != nil {
		s.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		s.LastName = *p.LastName
	}
	if p.DocumentNumber != nil {
		s.DocumentNumber = *p.DocumentNumber
	}
	if p.StaffType != nil {
		s.StaffType = *p.StaffType
	}
	if p.Role != nil {
		s.Role = *p.Role
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
	if p.Phone != nil {
		s.Phone = p.Phone
	}
	if p.Email != nil {
		s.Email = p.Email
	}
}

type Filter struct {
	StaffType *Type
	Active    *bool
	Name      string
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	Staff       *Staff `json:"staff"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}
