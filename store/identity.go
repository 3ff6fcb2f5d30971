package store

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IdentityEncoding is one historical way an order document names its owner.
// Orders written by older checkout versions use different field names and
// value types; all of them are accepted.
type IdentityEncoding int

const (
	UserIDString IdentityEncoding = iota
	UserIDObjectID
	UserUnderscoreIDString
	UserUnderscoreIDObjectID
	EmbeddedUnderscoreIDString
	EmbeddedUnderscoreIDObjectID
	EmbeddedIDString
)

// IdentityEncodings lists every supported encoding.
var IdentityEncodings = []IdentityEncoding{
	UserIDString,
	UserIDObjectID,
	UserUnderscoreIDString,
	UserUnderscoreIDObjectID,
	EmbeddedUnderscoreIDString,
	EmbeddedUnderscoreIDObjectID,
	EmbeddedIDString,
}

// Field is the document path the encoding stores the user id under.
func (e IdentityEncoding) Field() string {
	switch e {
	case UserIDString, UserIDObjectID:
		return "userId"
	case UserUnderscoreIDString, UserUnderscoreIDObjectID:
		return "user_id"
	case EmbeddedUnderscoreIDString, EmbeddedUnderscoreIDObjectID:
		return "user._id"
	default:
		return "user.id"
	}
}

// NeedsObjectID reports whether the encoding stores an ObjectID.
func (e IdentityEncoding) NeedsObjectID() bool {
	return e == UserIDObjectID || e == UserUnderscoreIDObjectID || e == EmbeddedUnderscoreIDObjectID
}

// Clause builds the equality clause for userID, or ok=false when userID
// cannot be represented in this encoding.
func (e IdentityEncoding) Clause(userID string) (bson.M, bool) {
	if !e.NeedsObjectID() {
		return bson.M{e.Field(): userID}, true
	}
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, false
	}
	return bson.M{e.Field(): oid}, true
}

// IdentityFilter matches orders owned by userID under any encoding.
func IdentityFilter(userID string) bson.M {
	var or bson.A
	for _, e := range IdentityEncodings {
		if c, ok := e.Clause(userID); ok {
			or = append(or, c)
		}
	}
	return bson.M{"$or": or}
}
