package tenant

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UserIDKey is the fiber.Ctx locals key the identity middleware writes.
const UserIDKey = "user_id"

var ErrNoUser = errors.New("user id missing from context")

// GetUserID returns the caller's user id as resolved by the identity middleware.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals(UserIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoUser
	}
	return id, nil
}

// SetUserID stores the resolved user id on the request.
func SetUserID(c *fiber.Ctx, id uuid.UUID) {
	c.Locals(UserIDKey, id)
}
