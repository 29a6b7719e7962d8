package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func (f *fixture) directoryService() DirectoryService {
	return NewDirectoryService(f.users, f.companies, mockTxManager{}, nopLogger{})
}

func TestDirectoryService_CreateUserDefaultsManagerToAdmin(t *testing.T) {
	f := newFixture()
	svc := f.directoryService()

	user, err := svc.CreateUser(context.Background(), adminID, CreateUserInput{
		Email: "  New.Hire@Acme.test ",
		Name:  "New Hire",
		Role:  entity.RoleEmployee,
	})
	require.NoError(t, err)

	assert.Equal(t, "new.hire@acme.test", user.Email)
	assert.Equal(t, int64(1), user.CompanyID)
	require.NotNil(t, user.ManagerID)
	assert.Equal(t, adminID, *user.ManagerID)
}

func TestDirectoryService_CreateUserExplicitManager(t *testing.T) {
	f := newFixture()
	svc := f.directoryService()

	user, err := svc.CreateUser(context.Background(), adminID, CreateUserInput{
		Email:     "dev@acme.test",
		Role:      entity.RoleEmployee,
		ManagerID: int64Ptr(managerID),
	})
	require.NoError(t, err)
	assert.Equal(t, managerID, *user.ManagerID)
}

func TestDirectoryService_CreateUserErrors(t *testing.T) {
	tests := []struct {
		name    string
		actor   int64
		input   CreateUserInput
		wantErr error
	}{
		{"non-admin actor", managerID, CreateUserInput{Email: "x@acme.test", Role: entity.RoleEmployee}, ErrForbidden},
		{"unknown actor", 404, CreateUserInput{Email: "x@acme.test", Role: entity.RoleEmployee}, ErrUserNotFound},
		{"bad email", adminID, CreateUserInput{Email: "not-an-email", Role: entity.RoleEmployee}, ErrInvalidInput},
		{"bad role", adminID, CreateUserInput{Email: "x@acme.test", Role: "OWNER"}, ErrInvalidInput},
		{"email taken", adminID, CreateUserInput{Email: "EMP@acme.test", Role: entity.RoleEmployee}, ErrEmailTaken},
		{
			name:    "manager in another company",
			actor:   adminID,
			input:   CreateUserInput{Email: "x@acme.test", Role: entity.RoleEmployee, ManagerID: int64Ptr(outsiderID)},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.directoryService().CreateUser(context.Background(), tt.actor, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDirectoryService_ListUsers(t *testing.T) {
	f := newFixture()
	svc := f.directoryService()

	_, err := svc.ListUsers(context.Background(), employeeID)
	assert.ErrorIs(t, err, ErrForbidden)

	users, err := svc.ListUsers(context.Background(), adminID)
	require.NoError(t, err)
	assert.Len(t, users, 5)
}

func TestDirectoryService_BootstrapIsIdempotent(t *testing.T) {
	f := newFixture()
	svc := f.directoryService()
	input := BootstrapInput{
		CompanyName: "Initech",
		Currency:    "gbp",
		AdminEmail:  "root@initech.test",
		AdminName:   "Root",
	}

	admin, err := svc.Bootstrap(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, admin.Role)

	company, err := f.companies.GetByID(context.Background(), admin.CompanyID)
	require.NoError(t, err)
	require.NotNil(t, company)
	assert.Equal(t, "GBP", company.Currency)

	again, err := svc.Bootstrap(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
	assert.Len(t, f.companies.companies, 3)
}

func TestDirectoryService_UpdateUser(t *testing.T) {
	f := newFixture()
	svc := f.directoryService()
	ctx := context.Background()

	role := entity.RoleManager
	approver := true
	updated, err := svc.UpdateUser(ctx, adminID, orphanID, UpdateUserInput{
		Role:              &role,
		ManagerID:         int64Ptr(managerID),
		IsManagerApprover: &approver,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleManager, updated.Role)
	assert.Equal(t, managerID, *updated.ManagerID)
	assert.True(t, updated.IsManagerApprover)
	assert.Equal(t, "orphan@acme.test", updated.Email)

	stored, err := svc.GetUser(ctx, orphanID)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleManager, stored.Role)
	assert.Equal(t, managerID, *stored.ManagerID)

	// untouched fields survive a partial update
	name := "Orphan Annie"
	updated, err = svc.UpdateUser(ctx, adminID, orphanID, UpdateUserInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Orphan Annie", updated.Name)
	assert.Equal(t, entity.RoleManager, updated.Role)
	assert.True(t, updated.IsManagerApprover)
}

func TestDirectoryService_UpdateUserErrors(t *testing.T) {
	employee := entity.RoleEmployee
	bogus := entity.Role("OWNER")

	tests := []struct {
		name    string
		actor   int64
		target  int64
		input   UpdateUserInput
		wantErr error
	}{
		{"non-admin actor", managerID, employeeID, UpdateUserInput{Role: &employee}, ErrForbidden},
		{"unknown actor", 404, employeeID, UpdateUserInput{}, ErrUserNotFound},
		{"unknown user", adminID, 404, UpdateUserInput{}, ErrUserNotFound},
		{"user in another company", adminID, outsiderID, UpdateUserInput{}, ErrForbidden},
		{"admin of another company", 50, employeeID, UpdateUserInput{}, ErrForbidden},
		{"bad role", adminID, employeeID, UpdateUserInput{Role: &bogus}, ErrInvalidInput},
		{"self demotion", adminID, adminID, UpdateUserInput{Role: &employee}, ErrInvalidInput},
		{"manages themselves", adminID, employeeID, UpdateUserInput{ManagerID: int64Ptr(employeeID)}, ErrInvalidInput},
		{"manager in another company", adminID, employeeID, UpdateUserInput{ManagerID: int64Ptr(outsiderID)}, ErrInvalidInput},
		{"reporting loop", adminID, adminID, UpdateUserInput{ManagerID: int64Ptr(employeeID)}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.users.users[50] = &entity.User{ID: 50, CompanyID: 2, Email: "admin@other.test", Role: entity.RoleAdmin}

			_, err := f.directoryService().UpdateUser(context.Background(), tt.actor, tt.target, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
