package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// CreateUserInput carries the fields an administrator supplies for a new user
type CreateUserInput struct {
	Email             string
	Name              string
	Role              entity.Role
	ManagerID         *int64
	IsManagerApprover bool
	LarkOpenID        string
}

// UpdateUserInput carries the fields an administrator may change on an
// existing user. Nil fields are left as they are.
type UpdateUserInput struct {
	Name              *string
	Role              *entity.Role
	ManagerID         *int64
	IsManagerApprover *bool
	LarkOpenID        *string
}

// BootstrapInput describes the first company and its administrator
type BootstrapInput struct {
	CompanyName string
	Currency    string
	AdminEmail  string
	AdminName   string
}

// DirectoryService manages companies and their users
type DirectoryService interface {
	// Bootstrap creates the company and admin unless the admin email exists
	Bootstrap(ctx context.Context, input BootstrapInput) (*entity.User, error)
	CreateUser(ctx context.Context, actorID int64, input CreateUserInput) (*entity.User, error)
	// UpdateUser changes role, reporting line or approval eligibility.
	// Only administrators of the user's company may call it.
	UpdateUser(ctx context.Context, actorID, userID int64, input UpdateUserInput) (*entity.User, error)
	GetUser(ctx context.Context, id int64) (*entity.User, error)
	ListUsers(ctx context.Context, actorID int64) ([]*entity.User, error)
}

type directoryServiceImpl struct {
	users     port.UserRepository
	companies port.CompanyRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(
	users port.UserRepository,
	companies port.CompanyRepository,
	txManager port.TransactionManager,
	logger Logger,
) DirectoryService {
	return &directoryServiceImpl{
		users:     users,
		companies: companies,
		txManager: txManager,
		logger:    logger,
	}
}

func (s *directoryServiceImpl) Bootstrap(ctx context.Context, input BootstrapInput) (*entity.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.AdminEmail))
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	currency, err := utils.NormalizeCurrency(input.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	admin := &entity.User{
		Email:     email,
		Name:      utils.SanitizeString(input.AdminName),
		Role:      entity.RoleAdmin,
		CreatedAt: now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		company := &entity.Company{
			Name:      utils.SanitizeString(input.CompanyName),
			Currency:  currency,
			CreatedAt: now,
		}
		if err := s.companies.Create(txCtx, company); err != nil {
			return fmt.Errorf("create company: %w", err)
		}
		admin.CompanyID = company.ID
		if err := s.users.Create(txCtx, admin); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Bootstrap failed", "error", err, "email", email)
		return nil, err
	}

	s.logger.Info("Directory bootstrapped", "company_id", admin.CompanyID, "admin_id", admin.ID)
	return admin, nil
}

func (s *directoryServiceImpl) CreateUser(ctx context.Context, actorID int64, input CreateUserInput) (*entity.User, error) {
	actor, err := s.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators create users", ErrForbidden)
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !input.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, input.Role)
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", email, ErrEmailTaken)
	}

	managerID := input.ManagerID
	if managerID == nil && input.Role != entity.RoleAdmin {
		// unassigned staff report to the admin who created them
		id := actor.ID
		managerID = &id
	}
	if managerID != nil {
		manager, err := s.users.GetByID(ctx, *managerID)
		if err != nil {
			return nil, fmt.Errorf("get manager: %w", err)
		}
		if manager == nil || manager.CompanyID != actor.CompanyID {
			return nil, fmt.Errorf("%w: manager %d not found in company", ErrInvalidInput, *managerID)
		}
	}

	user := &entity.User{
		CompanyID:         actor.CompanyID,
		Email:             email,
		Name:              utils.SanitizeString(input.Name),
		Role:              input.Role,
		ManagerID:         managerID,
		IsManagerApprover: input.IsManagerApprover,
		LarkOpenID:        strings.TrimSpace(input.LarkOpenID),
		CreatedAt:         time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("Failed to create user", "error", err, "email", email)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("User created",
		"user_id", user.ID,
		"company_id", user.CompanyID,
		"role", user.Role,
		"created_by", actor.ID,
	)
	return user, nil
}

func (s *directoryServiceImpl) UpdateUser(ctx context.Context, actorID, userID int64, input UpdateUserInput) (*entity.User, error) {
	actor, err := s.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators update users", ErrForbidden)
	}

	current, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("%w: user %d belongs to another company", ErrForbidden, userID)
	}

	user := *current
	if input.Name != nil {
		user.Name = utils.SanitizeString(*input.Name)
	}
	if input.LarkOpenID != nil {
		user.LarkOpenID = strings.TrimSpace(*input.LarkOpenID)
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *input.Role)
		}
		if user.ID == actor.ID && *input.Role != entity.RoleAdmin {
			return nil, fmt.Errorf("%w: administrators cannot demote themselves", ErrInvalidInput)
		}
		user.Role = *input.Role
	}
	if input.IsManagerApprover != nil {
		user.IsManagerApprover = *input.IsManagerApprover
	}
	if input.ManagerID != nil {
		if err := s.checkManager(ctx, &user, *input.ManagerID); err != nil {
			return nil, err
		}
		id := *input.ManagerID
		user.ManagerID = &id
	}

	if err := s.users.Update(ctx, &user); err != nil {
		s.logger.Error("Failed to update user", "error", err, "user_id", user.ID)
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("User updated",
		"user_id", user.ID,
		"role", user.Role,
		"is_manager_approver", user.IsManagerApprover,
		"updated_by", actor.ID,
	)
	return &user, nil
}

// checkManager rejects a manager outside the user's company and any
// assignment that would make the reporting line loop back to the user.
func (s *directoryServiceImpl) checkManager(ctx context.Context, user *entity.User, managerID int64) error {
	if managerID == user.ID {
		return fmt.Errorf("%w: user %d cannot manage themselves", ErrInvalidInput, user.ID)
	}

	seen := map[int64]bool{user.ID: true}
	next := &managerID
	for next != nil {
		manager, err := s.users.GetByID(ctx, *next)
		if err != nil {
			return fmt.Errorf("get manager: %w", err)
		}
		if manager == nil || manager.CompanyID != user.CompanyID {
			if *next == managerID {
				return fmt.Errorf("%w: manager %d not found in company", ErrInvalidInput, managerID)
			}
			return nil
		}
		if seen[manager.ID] {
			if manager.ID == user.ID {
				return fmt.Errorf("%w: manager %d reports to user %d", ErrInvalidInput, managerID, user.ID)
			}
			return nil
		}
		seen[manager.ID] = true
		next = manager.ManagerID
	}
	return nil
}

func (s *directoryServiceImpl) GetUser(ctx context.Context, id int64) (*entity.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	return user, nil
}

func (s *directoryServiceImpl) ListUsers(ctx context.Context, actorID int64) ([]*entity.User, error) {
	actor, err := s.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators list users", ErrForbidden)
	}
	return s.users.ListByCompany(ctx, actor.CompanyID)
}
