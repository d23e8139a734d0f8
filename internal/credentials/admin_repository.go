package credentials

import (
	"context"

	"github.com/khanghh/rootgate/model"
	"gorm.io/gorm"
)

type AdminRepository interface {
	GetByEmail(ctx context.Context, email string) (*model.RootAdmin, error)
	Create(ctx context.Context, admin *model.RootAdmin) error
}

type adminRepository struct {
	db *gorm.DB
}

func (r *adminRepository) GetByEmail(ctx context.Context, email string) (*model.RootAdmin, error) {
	var admin model.RootAdmin
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&admin).Error
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *adminRepository) Create(ctx context.Context, admin *model.RootAdmin) error {
	return r.db.WithContext(ctx).Create(admin).Error
}

func NewAdminRepository(db *gorm.DB) AdminRepository {
	return &adminRepository{db}
}
