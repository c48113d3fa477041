package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/rubrix-app/rubrix-api/internal/dto"
	"github.com/rubrix-app/rubrix-api/internal/service"
	"github.com/rubrix-app/rubrix-api/internal/store"
	"github.com/rubrix-app/rubrix-api/internal/utils"
)

// ResultHandler wires stored result and self-assessment endpoints.
type ResultHandler struct {
	service service.ResultService
	logger  zerolog.Logger
}

// NewResultHandler constructs the handler.
func NewResultHandler(service service.ResultService, logger zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		service: service,
		logger:  logger.With().Str("component", "result_handler").Logger(),
	}
}

// Register attaches result endpoints to the router group.
func (h *ResultHandler) Register(router fiber.Router) {
	router.Get("/:id/results", h.fetch)
	router.Put("/:id/results", h.save)
	router.Post("/:id/self-assessment", h.selfAssessment)
}

func (h *ResultHandler) fetch(c *fiber.Ctx) error {
	results, err := h.service.Fetch(c.UserContext(), rubricIDParam(c))
	if err != nil {
		return h.writeError(c, err, "failed to fetch results")
	}
	return utils.SendSuccess(c, "results fetched", results)
}

func (h *ResultHandler) save(c *fiber.Ctx) error {
	var payload dto.ResultSaveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.Save(c.UserContext(), rubricIDParam(c), payload)
	if err != nil {
		return h.writeError(c, err, "failed to save result")
	}
	return utils.SendSuccess(c, "result saved", student)
}

func (h *ResultHandler) selfAssessment(c *fiber.Ctx) error {
	var payload dto.SelfAssessmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.SubmitSelfAssessment(c.UserContext(), rubricIDParam(c), payload)
	if err != nil {
		return h.writeError(c, err, "failed to submit self-assessment")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "self-assessment submitted", student)
}

func (h *ResultHandler) writeError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrRubricNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "rubric not found")
	case errors.Is(err, store.ErrPrivacyKeyMissing):
		return utils.SendError(c, fiber.StatusPreconditionRequired, "privacy key required")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Str("rubric_id", rubricIDParam(c)).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
