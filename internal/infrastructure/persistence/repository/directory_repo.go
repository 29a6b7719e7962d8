package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// CompanyRepository implements port.CompanyRepository
type CompanyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sql.DB, logger *zap.Logger) port.CompanyRepository {
	return &CompanyRepository{db: db, logger: logger}
}

func (r *CompanyRepository) Create(ctx context.Context, company *entity.Company) error {
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now()
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`INSERT INTO companies (name, currency, created_at) VALUES (?, ?, ?)`,
		company.Name, company.Currency, company.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create company", zap.String("name", company.Name), zap.Error(err))
		return fmt.Errorf("failed to create company: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	company.ID = id
	return nil
}

func (r *CompanyRepository) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	var company entity.Company
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, currency, created_at FROM companies WHERE id = ?`, id,
	).Scan(&company.ID, &company.Name, &company.Currency, &company.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get company", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &company, nil
}

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{db: db, logger: logger}
}

const userColumns = `id, company_id, email, name, role, manager_id, is_manager_approver, lark_open_id, created_at`

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	var managerID sql.NullInt64
	if user.ManagerID != nil {
		managerID = sql.NullInt64{Int64: *user.ManagerID, Valid: true}
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO users (
			company_id, email, name, role, manager_id, is_manager_approver, lark_open_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		user.CompanyID,
		user.Email,
		user.Name,
		user.Role,
		managerID,
		user.IsManagerApprover,
		user.LarkOpenID,
		user.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	var managerID sql.NullInt64
	if user.ManagerID != nil {
		managerID = sql.NullInt64{Int64: *user.ManagerID, Valid: true}
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE users
		SET name = ?, role = ?, manager_id = ?, is_manager_approver = ?, lark_open_id = ?
		WHERE id = ?
	`,
		user.Name,
		user.Role,
		managerID,
		user.IsManagerApprover,
		user.LarkOpenID,
		user.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update user", zap.Int64("id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update user %d: %w", user.ID, sql.ErrNoRows)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanOne(row, zap.Int64("id", id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	row := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return r.scanOne(row, zap.String("email", email))
}

func (r *UserRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) scanOne(row *sql.Row, field zap.Field) (*entity.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", field, zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*entity.User, error) {
	var user entity.User
	var managerID sql.NullInt64
	if err := s.Scan(
		&user.ID,
		&user.CompanyID,
		&user.Email,
		&user.Name,
		&user.Role,
		&managerID,
		&user.IsManagerApprover,
		&user.LarkOpenID,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	if managerID.Valid {
		id := managerID.Int64
		user.ManagerID = &id
	}
	return &user, nil
}

var (
	_ port.CompanyRepository = (*CompanyRepository)(nil)
	_ port.UserRepository    = (*UserRepository)(nil)
)
