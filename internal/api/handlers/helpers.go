package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/publora/publora/internal/models"
)

// GetScope resolves the owner scope from the session claims: the team
// when the session carries one, otherwise the personal scope.
func GetScope(c *fiber.Ctx) models.Scope {
	userID, _ := strconv.ParseInt(localString(c, "user_id"), 10, 64)

	if teamStr := localString(c, "team_id"); teamStr != "" {
		if teamID, err := strconv.ParseInt(teamStr, 10, 64); err == nil {
			return models.TeamScope(userID, teamID)
		}
	}
	return models.UserScope(userID)
}

func localString(c *fiber.Ctx, key string) string {
	if v, ok := c.Locals(key).(string); ok {
		return v
	}
	return ""
}
