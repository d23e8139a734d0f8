package credentials

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/rootgate/model"
	"gorm.io/gorm"
)

const mysqlErrDuplicateEntry = 1062

// DBChecker checks credentials against the root_admin table.
type DBChecker struct {
	adminRepo AdminRepository
}

func (c *DBChecker) CheckCredentials(ctx context.Context, email, password string) error {
	admin, err := c.adminRepo.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return compareHash("", password)
	}
	if err != nil {
		return err
	}
	if admin.Disabled {
		compareHash("", password)
		return ErrInvalidCredentials
	}
	return compareHash(admin.PasswordHash, password)
}

// AddAdmin creates a root admin with a bcrypt hash of password.
func (c *DBChecker) AddAdmin(ctx context.Context, email, password string) (*model.RootAdmin, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	admin := &model.RootAdmin{
		Email:        email,
		PasswordHash: hash,
	}
	err = c.adminRepo.Create(ctx, admin)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		return nil, ErrAdminExists
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAdminExists
	}
	if err != nil {
		return nil, err
	}
	return admin, nil
}

func NewDBChecker(adminRepo AdminRepository) *DBChecker {
	return &DBChecker{
		adminRepo: adminRepo,
	}
}
