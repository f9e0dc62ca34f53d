package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/wavechat/wavechat-backend/internal/domain"
)

// UserRepository user data access
type UserRepository interface {
	FindByID(id uint64) (*domain.User, error)
	FindByIDs(ids []uint64) ([]*domain.User, error)
	List() ([]*domain.User, error)
	SetOnline(id uint64, online bool, lastSeen time.Time) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(id uint64) (*domain.User, error) {
	var user domain.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByIDs(ids []uint64) ([]*domain.User, error) {
	var users []*domain.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *userRepository) List() ([]*domain.User, error) {
	var users []*domain.User
	err := r.db.Order("nickname ASC").Find(&users).Error
	return users, err
}

func (r *userRepository) SetOnline(id uint64, online bool, lastSeen time.Time) error {
	return r.db.Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_online": online, "last_seen_at": lastSeen}).Error
}
