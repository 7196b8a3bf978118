package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SearchHistory is one finished search of a user.
type SearchHistory struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID   string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	OwnerID     string         `gorm:"type:varchar(128);not null;index:idx_search_history_owner_created,priority:1" json:"owner_id"`
	Query       string         `gorm:"type:varchar(500);not null" json:"query"`
	Route       string         `gorm:"type:varchar(20)" json:"route"`
	Status      string         `gorm:"type:varchar(20);not null" json:"status"`
	ResultCount int            `gorm:"default:0" json:"result_count"`
	ErrorCode   string         `gorm:"type:varchar(50)" json:"error_code,omitempty"`
	Meta        datatypes.JSON `gorm:"type:jsonb" json:"meta,omitempty"`
	CreatedAt   time.Time      `gorm:"default:CURRENT_TIMESTAMP;index:idx_search_history_owner_created,priority:2" json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (SearchHistory) TableName() string {
	return "search_histories"
}
