package owner

import "strings"

// Kind tags an Owner as a signed-in user or the shared anonymous bucket.
type Kind string

const (
	KindAnonymous Kind = "anonymous"
	KindUser      Kind = "user"
)

const (
	anonymousKey = "anonymous"
	userPrefix   = "user:"
)

// Owner identifies whose cart is being read or mutated.
// The zero value is the anonymous owner.
type Owner struct {
	kind   Kind
	userID string
}

// Anonymous returns the shared owner used when no identity is presented.
func Anonymous() Owner {
	return Owner{kind: KindAnonymous}
}

// User returns the owner for an authenticated user. An empty id yields the
// anonymous owner.
func User(userID string) Owner {
	if userID == "" {
		return Anonymous()
	}
	return Owner{kind: KindUser, userID: userID}
}

func (o Owner) Kind() Kind {
	if o.kind == "" {
		return KindAnonymous
	}
	return o.kind
}

func (o Owner) UserID() string {
	return o.userID
}

func (o Owner) IsAnonymous() bool {
	return o.Kind() == KindAnonymous
}

// Key is the storage and routing key for the owner's cart.
func (o Owner) Key() string {
	if o.IsAnonymous() {
		return anonymousKey
	}
	return userPrefix + o.userID
}

func (o Owner) String() string {
	return o.Key()
}

// FromKey parses a value produced by Key. Unknown keys map to anonymous.
func FromKey(key string) Owner {
	if id, ok := strings.CutPrefix(key, userPrefix); ok {
		return User(id)
	}
	return Anonymous()
}
