package requests

import (
	"time"

	"rentmarket/pkg/models"
)

type CreateInput struct {
	TenantID    string
	City        string
	Budget      float64
	MoveInDate  time.Time
	Description string
}

type RequestList struct {
	Items []models.RentalRequest `json:"items"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}
