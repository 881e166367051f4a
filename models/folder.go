package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Folder struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name         string               `bson:"name" json:"name"`
	Path         string               `bson:"path" json:"path"` // Full slash separated path, unique
	ParentID     *primitive.ObjectID  `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	OwnerID      primitive.ObjectID   `bson:"owner_id" json:"owner_id"`
	IsPublic     bool                 `bson:"is_public" json:"is_public"`
	AllowedUsers []primitive.ObjectID `bson:"allowed_users" json:"allowed_users"`
	CreatedAt    time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at" json:"updated_at"`
}

// IsAllowed reports whether userID is on the folder's explicit allow-list.
func (f *Folder) IsAllowed(userID primitive.ObjectID) bool {
	for _, id := range f.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
