package staff

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/auth"
	"github.com/emsops/emsops/pkg/pagination"
)

// TokenIssuer signs access tokens for authenticated staff.
type TokenIssuer interface {
	Issue(staffID uuid.UUID, roles ...string) (string, time.Time, error)
}

type Service struct {
	repo   Repository
	tokens TokenIssuer
	logger zerolog.Logger
	cost   int
	now    func() time.Time
}

func NewService(repo Repository, tokens TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		logger: logger.With().Str("component", "staff").Logger(),
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < 8 {
		return "", apperr.ValidationField("password", "password must be at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.ValidationField("password", "password must be at most 72 bytes")
		}
		return "", apperr.Internal(err, "hash password")
	}
	return string(h), nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Staff, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	st := &Staff{
		ID:             uuid.New(),
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		DocumentNumber: req.DocumentNumber,
		StaffType:      req.StaffType,
		Role:           req.Role,
		Username:       req.Username,
		PasswordHash:   hash,
		Active:         true,
		Phone:          req.Phone,
		Email:          req.Email,
	}
	st.StampCreate(actor, s.now())
	if err := s.repo.Create(ctx, st); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", st.ID.String()).Str("actor_id", actor.String()).Msg("staff created")
	return st, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (*Staff, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Apply(st)
	st.StampUpdate(actor, s.now())
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Deactivate keeps the record but blocks login and new report assignments.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*Staff, error) {
	inactive := false
	return s.Update(ctx, id, Patch{Active: &inactive})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id, actor, s.now())
}

func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) ([]*Staff, int, error) {
	return s.repo.List(ctx, f, p)
}

// IsActive reports whether id names a live, active staff member.
func (s *Service) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	st, err := s.repo.GetByID(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Active, nil
}

func (s *Service) IsActiveOfType(ctx context.Context, id uuid.UUID, t Type) (bool, error) {
	st, err := s.repo.GetByID(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Active && st.StaffType == t, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords get the
// same message.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Staff, error) {
	st, err := s.repo.GetByUsername(ctx, username)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Forbidden("invalid username or password")
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Forbidden("invalid username or password")
	}
	if !st.Active {
		return nil, apperr.ValidationField("username", "staff member %s is inactive", st.Username)
	}
	return st, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	st, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.Warn().Str("username", req.Username).Err(err).Msg("login rejected")
		return nil, err
	}
	token, exp, err := s.tokens.Issue(st.ID, string(st.Role))
	if err != nil {
		return nil, apperr.Internal(err, "issue token")
	}
	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp.Unix(),
		Staff:       st,
	}, nil
}

// ChangePassword lets the authenticated staff member rotate their password.
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	st, err := s.repo.GetByID(ctx, actor)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return apperr.ValidationField("current_password", "current password is incorrect")
	}
	hash, err := s.hash(req.NewPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, st.ID, hash, actor, s.now())
}

// EnsureAdmin creates the first administrator when the staff table is empty.
// It returns false when staff already exist.
func (s *Service) EnsureAdmin(ctx context.Context, req CreateRequest) (*Staff, bool, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		return nil, false, nil
	}
	req.Role = RoleAdmin
	if req.StaffType == "" {
		req.StaffType = TypeAdmin
	}
	st, err := s.Create(auth.WithActor(ctx, auth.DevUserID, auth.RoleAdmin), req)
	if err != nil {
		return nil, false, err
	}
	return st, true, nil
}
