package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Business struct {
	ID          uuid.UUID `gorm:"primary_key" json:"id"`
	AgencyId    string    `gorm:"index;size:100;not null" json:"agency_id"`
	Name        string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName string    `gorm:"size:100" json:"contact_name"`
	Email       string    `gorm:"size:255" json:"email"`
	Phone       string    `gorm:"size:20" json:"phone"`
	Website     string    `gorm:"size:255" json:"website"`
	Industry    string    `gorm:"size:100" json:"industry"`
	About       string    `gorm:"type:text" json:"about"`
	Address     string    `gorm:"type:text" json:"address"`
	City        string    `gorm:"size:100" json:"city"`
	Country     string    `gorm:"size:100" json:"country"`
	Timezone    string    `gorm:"size:50" json:"timezone"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	AgencyId    string `json:"agency_id"`
	Name        string `json:"name" binding:"required" validate:"required"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone"`
	Website     string `json:"website" validate:"omitempty,url"`
	Industry    string `json:"industry"`
	About       string `json:"about"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Timezone    string `json:"timezone"`
}

// CreateBusiness provisions a business plus one disconnected PlatformSource
// per supported platform, in a single transaction.
func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	if input == nil || strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("business name is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	phone, err := utils.NormalizePhone(input.Phone, "")
	if err != nil {
		return nil, err
	}

	business := &Business{
		ID:          uuid.New(),
		AgencyId:    strings.TrimSpace(input.AgencyId),
		Name:        strings.TrimSpace(input.Name),
		ContactName: strings.TrimSpace(input.ContactName),
		Email:       strings.TrimSpace(input.Email),
		Phone:       phone,
		Website:     strings.TrimSpace(input.Website),
		Industry:    strings.TrimSpace(input.Industry),
		About:       input.About,
		Address:     input.Address,
		City:        strings.TrimSpace(input.City),
		Country:     strings.TrimSpace(input.Country),
		Timezone:    strings.TrimSpace(input.Timezone),
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(business).Error; err != nil {
			return err
		}
		for _, platform := range SupportedPlatforms {
			source := PlatformSource{
				BusinessId: business.ID.String(),
				Platform:   platform,
				Status:     SourceStatusDisconnected,
			}
			if err := tx.Create(&source).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return business, nil
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	var business Business
	err := config.GetDB().WithContext(ctx).
		Where("id = ?", businessId).
		Take(&business).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &business, nil
}
