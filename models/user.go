package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name      string               `bson:"name" json:"name"`
	Role      string               `bson:"role" json:"role"`
	Groups    []primitive.ObjectID `bson:"groups" json:"groups"`
	CreatedAt time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at" json:"updated_at"`
}

// Identity is what the session provider yields for a request.
type Identity struct {
	ID   primitive.ObjectID `json:"id"`
	Role string             `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

func (i Identity) IsAnonymous() bool {
	return i.ID.IsZero()
}
