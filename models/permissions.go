package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessAdmin AccessLevel = "admin"
)

// Rank orders access levels: admin includes write includes read.
// Unknown levels rank 0 and never satisfy a check.
func (a AccessLevel) Rank() int {
	switch a {
	case AccessRead:
		return 1
	case AccessWrite:
		return 2
	case AccessAdmin:
		return 3
	default:
		return 0
	}
}

func (a AccessLevel) Valid() bool {
	return a.Rank() > 0
}

// Satisfies reports whether a grant at level a covers the required level.
func (a AccessLevel) Satisfies(required AccessLevel) bool {
	return a.Valid() && required.Valid() && a.Rank() >= required.Rank()
}

type PrincipalType string

const (
	PrincipalUser  PrincipalType = "user"
	PrincipalGroup PrincipalType = "group"
)

func (p PrincipalType) Valid() bool {
	return p == PrincipalUser || p == PrincipalGroup
}

type PermissionEntry struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ResourceID    primitive.ObjectID  `bson:"resource_id" json:"resource_id"`
	PrincipalType PrincipalType       `bson:"principal_type" json:"principal_type"`
	UserID        *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	GroupID       *primitive.ObjectID `bson:"group_id,omitempty" json:"group_id,omitempty"`
	Access        AccessLevel         `bson:"access" json:"access"`
	GrantedBy     primitive.ObjectID  `bson:"granted_by,omitempty" json:"granted_by,omitempty"`
	GrantedAt     time.Time           `bson:"granted_at" json:"granted_at"`
}

// Principal returns the user or group id the entry grants to.
func (p *PermissionEntry) Principal() primitive.ObjectID {
	switch p.PrincipalType {
	case PrincipalUser:
		if p.UserID != nil {
			return *p.UserID
		}
	case PrincipalGroup:
		if p.GroupID != nil {
			return *p.GroupID
		}
	}
	return primitive.NilObjectID
}

// NewPermissionEntry builds an entry with the principal stored in the field
// matching its type.
func NewPermissionEntry(resourceID, principalID primitive.ObjectID, principalType PrincipalType, access AccessLevel) PermissionEntry {
	entry := PermissionEntry{
		ResourceID:    resourceID,
		PrincipalType: principalType,
		Access:        access,
		GrantedAt:     time.Now(),
	}
	id := principalID
	if principalType == PrincipalGroup {
		entry.GroupID = &id
	} else {
		entry.UserID = &id
	}
	return entry
}
