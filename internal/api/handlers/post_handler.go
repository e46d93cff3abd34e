package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/publora/publora/internal/service"
	"github.com/publora/publora/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(s service.PostService) *PostHandler {
	return &PostHandler{s: s}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	scope := GetScope(c)

	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.Create(c.Context(), scope, &pc)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	scope := GetScope(c)
	postID := c.Query("id")

	if postID != "" {
		post, err := h.s.Get(c.Context(), scope, postID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), scope)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	scope := GetScope(c)

	var req transfer.PostActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.Cancel(c.Context(), scope, req.PostID); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) ReschedulePost(c *fiber.Ctx) error {
	scope := GetScope(c)

	var req transfer.RescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	scheduledFor, err := time.Parse("2006-01-02T15:04", req.ScheduledFor)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid scheduled time format",
		})
	}

	if err := h.s.Reschedule(c.Context(), scope, req.PostID, scheduledFor); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	scope := GetScope(c)

	var req transfer.PostActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.Delete(c.Context(), scope, req.PostID); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func errorResponse(c *fiber.Ctx, err error) error {
	var validationErr *service.ValidationError
	var creditsErr *service.InsufficientCreditsError
	var connectionErr *service.MissingConnectionError
	var platformErr *service.PlatformError

	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Error()})
	case errors.As(err, &creditsErr):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":     creditsErr.Error(),
			"available": creditsErr.Available,
		})
	case errors.As(err, &connectionErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": connectionErr.Error()})
	case errors.As(err, &platformErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":     platformErr.Error(),
			"platform":  platformErr.Platform,
			"reconnect": platformErr.ReconnectRequired(),
		})
	case errors.Is(err, service.ErrChainTooLong):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrPostNotCancellable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "POST_NOT_CANCELLABLE"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
