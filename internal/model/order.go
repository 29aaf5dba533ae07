package model

import "github.com/google/uuid"

// OrderItem assigns a 1-based position to one sibling.
type OrderItem struct {
	ID    uuid.UUID `json:"id" binding:"required"`
	Order int       `json:"order" binding:"min=1"`
}

// UpdateOrderRequest carries the complete order assignment of a sibling set.
type UpdateOrderRequest struct {
	Items []OrderItem `json:"items" binding:"required,min=1,dive"`
}
