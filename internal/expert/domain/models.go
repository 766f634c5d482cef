package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const StatusActive = "active"

type Expert struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	ExpertID    string       `gorm:"column:expert_id;type:varchar(64);not null;uniqueIndex"`
	Email       string       `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name        string       `gorm:"type:varchar(255);not null"`
	Team        string       `gorm:"type:varchar(255);not null"`
	TeamSlug    string       `gorm:"type:varchar(255);not null;index"`
	Status      string       `gorm:"type:varchar(32);not null"`
	LastLoginAt time.Time    `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

func (Expert) TableName() string { return "experts" }
