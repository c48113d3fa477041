package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/rubrix-app/rubrix-api/internal/dto"
	"github.com/rubrix-app/rubrix-api/internal/service"
	"github.com/rubrix-app/rubrix-api/internal/utils"
)

// RubricHandler wires rubric template endpoints.
type RubricHandler struct {
	service service.RubricService
	logger  zerolog.Logger
}

// NewRubricHandler constructs the handler.
func NewRubricHandler(service service.RubricService, logger zerolog.Logger) *RubricHandler {
	return &RubricHandler{
		service: service,
		logger:  logger.With().Str("component", "rubric_handler").Logger(),
	}
}

// Register attaches rubric endpoints to the router group.
func (h *RubricHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
}

func (h *RubricHandler) list(c *fiber.Ctx) error {
	rubrics, err := h.service.List(c.UserContext(), currentUser(c))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list rubrics")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list rubrics")
	}

	responses := make([]dto.RubricResponse, 0, len(rubrics))
	for _, rubric := range rubrics {
		responses = append(responses, dto.NewRubricResponse(rubric))
	}
	return utils.SendSuccess(c, "rubrics fetched", responses)
}

func (h *RubricHandler) create(c *fiber.Ctx) error {
	var payload dto.RubricSaveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	rubric, err := h.service.Create(c.UserContext(), payload, currentUser(c))
	if err != nil {
		return h.writeError(c, err, "failed to create rubric")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "rubric created", dto.NewRubricResponse(rubric))
}

func (h *RubricHandler) get(c *fiber.Ctx) error {
	rubric, err := h.service.Get(c.UserContext(), rubricIDParam(c))
	if err != nil {
		return h.writeError(c, err, "failed to fetch rubric")
	}
	return utils.SendSuccess(c, "rubric fetched", dto.NewRubricResponse(rubric))
}

func (h *RubricHandler) update(c *fiber.Ctx) error {
	var payload dto.RubricSaveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	rubric, err := h.service.Update(c.UserContext(), rubricIDParam(c), payload, currentUser(c))
	if err != nil {
		return h.writeError(c, err, "failed to update rubric")
	}
	return utils.SendSuccess(c, "rubric updated", dto.NewRubricResponse(rubric))
}

func (h *RubricHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), rubricIDParam(c)); err != nil {
		return h.writeError(c, err, "failed to delete rubric")
	}
	return utils.SendSuccess(c, "rubric deleted", fiber.Map{"deleted": true})
}

func (h *RubricHandler) writeError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrRubricNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "rubric not found")
	case errors.Is(err, service.ErrInvalidRubric):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
