package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/rubrix-app/rubrix-api/internal/dto"
	"github.com/rubrix-app/rubrix-api/internal/service"
	"github.com/rubrix-app/rubrix-api/internal/session"
	"github.com/rubrix-app/rubrix-api/internal/store"
	"github.com/rubrix-app/rubrix-api/internal/utils"
)

// SessionHandler wires the bulk grading session workflow endpoints.
type SessionHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service service.GradingService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register attaches session endpoints to the router group. All routes are
// keyed by rubric: one active session per rubric and evaluator.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Post("/:id/session", h.start)
	router.Get("/:id/session", h.progress)
	router.Post("/:id/session/commit", h.commit)
	router.Post("/:id/session/complete-first-unit", h.completeFirstUnit)
	router.Post("/:id/session/back", h.back)
	router.Post("/:id/session/clear-not-made", h.clearNotMade)
	router.Post("/:id/session/finish", h.finish)
	router.Delete("/:id/session", h.abandon)
}

func (h *SessionHandler) start(c *fiber.Ctx) error {
	progress, err := h.service.Start(c.UserContext(), rubricIDParam(c))
	if err != nil {
		return h.writeError(c, err, "failed to start grading session")
	}
	return utils.SendSuccess(c, "grading session started", progress)
}

func (h *SessionHandler) progress(c *fiber.Ctx) error {
	progress, err := h.service.Progress(c.UserContext(), rubricIDParam(c))
	if err != nil {
		return h.writeError(c, err, "failed to fetch session progress")
	}
	return utils.SendSuccess(c, "session progress fetched", progress)
}

func (h *SessionHandler) commit(c *fiber.Ctx) error {
	var payload dto.CommitUnitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	progress, err := h.service.Commit(c.UserContext(), rubricIDParam(c), payload)
	if err != nil {
		return h.writeError(c, err, "failed to commit unit")
	}
	return utils.SendSuccess(c, "unit committed", progress)
}

func (h *SessionHandler) completeFirstUnit(c *fiber.Ctx) error {
	progress, err := h.service.CompleteFirstUnit(c.UserContext(), rubricIDParam(c))
	if err != nil {
		return h.writeError(c, err, "failed to complete first unit")
	}
	return utils.SendSuccess(c, "first unit completed", progress)
}

func (h *SessionHandler) back(c *fiber.Ctx) error {
	progress, err := h.service.Back(c.UserContext(), rubricIDParam(c))
	if err != nil {
		return h.writeError(c, err, "failed to step back")
	}
	return utils.SendSuccess(c, "stepped back", progress)
}

func (h *SessionHandler) clearNotMade(c *fiber.Ctx) error {
	var payload dto.ClearNotMadeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	progress, err := h.service.ClearNotMade(c.UserContext(), rubricIDParam(c), payload)
	if err != nil {
		return h.writeError(c, err, "failed to clear not-made flag")
	}
	return utils.SendSuccess(c, "not-made flag cleared", progress)
}

func (h *SessionHandler) finish(c *fiber.Ctx) error {
	result, err := h.service.Finish(c.UserContext(), rubricIDParam(c))
	if err != nil {
		return h.writeError(c, err, "failed to finish grading session")
	}
	return utils.SendSuccess(c, "grading session finished", result)
}

func (h *SessionHandler) abandon(c *fiber.Ctx) error {
	if err := h.service.Abandon(c.UserContext(), rubricIDParam(c)); err != nil {
		return h.writeError(c, err, "failed to abandon grading session")
	}
	return utils.SendSuccess(c, "grading session abandoned", fiber.Map{"abandoned": true})
}

func (h *SessionHandler) writeError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrRubricNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "rubric not found")
	case errors.Is(err, service.ErrNoActiveSession):
		return utils.SendError(c, fiber.StatusNotFound, "no active grading session")
	case errors.Is(err, service.ErrNoStudents):
		return utils.SendError(c, fiber.StatusConflict, "no students graded yet")
	case errors.Is(err, session.ErrCannotProceed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrSessionCompleted):
		return utils.SendError(c, fiber.StatusConflict, "grading session already completed")
	case errors.Is(err, session.ErrRosterEmpty):
		return utils.SendError(c, fiber.StatusConflict, "no students on the roster")
	case errors.Is(err, store.ErrPrivacyKeyMissing):
		return utils.SendError(c, fiber.StatusPreconditionRequired, "privacy key required")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Str("rubric_id", rubricIDParam(c)).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
