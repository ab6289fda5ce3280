package auth

import (
	"slices"

	"github.com/tobylas-w/ThaiTable-sub000/models"
)

// Identity is who is making a request: either Anonymous or an
// authenticated user loaded fresh from the store.
type Identity struct {
	user *models.User
}

func Anonymous() Identity { return Identity{} }

func Authenticated(u *models.User) Identity { return Identity{user: u} }

// User returns the authenticated user, or false for Anonymous.
func (i Identity) User() (*models.User, bool) {
	return i.user, i.user != nil
}

func (i Identity) IsAuthenticated() bool { return i.user != nil }

// UserID is 0 for Anonymous.
func (i Identity) UserID() uint {
	if i.user == nil {
		return 0
	}
	return i.user.ID
}

func (i Identity) HasRole(roles ...models.UserRole) bool {
	return i.user != nil && slices.Contains(roles, i.user.Role)
}

// CanAccessRestaurant reports whether the identity belongs to restaurantID.
func (i Identity) CanAccessRestaurant(restaurantID uint) bool {
	return i.user != nil && restaurantID != 0 && i.user.RestaurantID == restaurantID
}
