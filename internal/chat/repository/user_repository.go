package repository

import (
	"context"
	"errors"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/apperr"

	"gorm.io/gorm"
)

// UserRepository definition get marketplace user identity
type UserRepository interface {
	AutoMigrate() error
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	// GetByIDs loads a batch of users keyed by id; missing ids are absent.
	GetByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository create a UserRepository backed by PostgreSQL
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.User{})
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.StoreUnavailable(err)
	}
	return &user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	if len(userIDs) == 0 {
		return map[string]domain.User{}, nil
	}

	var users []domain.User
	if err := r.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, apperr.StoreUnavailable(err)
	}

	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}
