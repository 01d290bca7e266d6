package models

import (
	"time"

	"exto/internal/images"
)

// Product is a classified listing. Images are kept in display order.
type Product struct {
	ID          int64                    `json:"id"`
	UserID      int64                    `json:"user_id"`
	Category    string                   `json:"category"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Price       int64                    `json:"price"`
	Images      []images.ImageDescriptor `json:"images"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Category is a node of the static taxonomy.
type Category struct {
	Slug     string     `json:"slug"`
	Name     string     `json:"name"`
	Children []Category `json:"children,omitempty"`
}
