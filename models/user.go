package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Username   string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	Name       string    `gorm:"size:100" json:"name"`
	Role       string    `gorm:"size:20;not null" json:"role"`
	AgencyId   string    `gorm:"index;size:100" json:"agency_id"`
	BusinessId string    `gorm:"index" json:"business_id"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	AgencyId   string `json:"agency_id"`
	BusinessId string `json:"business_id"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if input == nil || strings.TrimSpace(input.Username) == "" {
		return nil, errors.New("username is required")
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = UserRoleStaff
	}
	user := &User{
		Username:   strings.TrimSpace(input.Username),
		Password:   string(hashed),
		Name:       strings.TrimSpace(input.Name),
		Role:       role,
		AgencyId:   strings.TrimSpace(input.AgencyId),
		BusinessId: strings.TrimSpace(input.BusinessId),
	}
	if err := config.GetDB().WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := config.GetDB().WithContext(ctx).
		Where("username = ?", username).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}
