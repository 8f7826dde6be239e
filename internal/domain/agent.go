package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Agent is the field-collection profile of a user with the AGENT role
type Agent struct {
	ID             int32           `json:"id"`
	UserID         uuid.UUID       `json:"userId"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type AgentRepository interface {
	GetByID(ctx context.Context, id int32) (*Agent, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Agent, error)
}
