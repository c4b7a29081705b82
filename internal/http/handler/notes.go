package handler

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"svcboot/internal/model"
	"svcboot/internal/repository"
	"svcboot/internal/service"
)

// NoteController exposes the notes API.
type NoteController struct {
	svc service.NoteService
}

func NewNoteController(svc service.NoteService) *NoteController {
	return &NoteController{svc: svc}
}

// Routes registers the notes endpoints under /notes.
func (h *NoteController) Routes(r fiber.Router) {
	g := r.Group("/notes")
	g.Get("/", ListNotes(h.svc))
	g.Post("/", CreateNote(h.svc))
	g.Get("/count", CountNotes(h.svc))
	g.Put("/by-title/:title", EnsureNote(h.svc))
	g.Get("/:id", GetNote(h.svc))
	g.Patch("/:id", PatchNote(h.svc))
	g.Delete("/:id", DeleteNote(h.svc))
	g.Get("/:id/:field", NoteField(h.svc))
}

// serviceError translates service and repository errors into HTTP errors.
// Unknown errors pass through and are rendered as 500 by ErrorHandler.
func serviceError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return NewError(fiber.StatusNotFound, "NOT_FOUND", "note not found")
	case errors.Is(err, service.ErrIDRequired):
		return NewError(fiber.StatusBadRequest, "ID_REQUIRED", "id is required")
	case errors.Is(err, service.ErrInvalidInput):
		return NewError(fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, repository.ErrInvalidPage):
		return NewError(fiber.StatusBadRequest, "INVALID_PER_PAGE", "invalid per_page")
	case errors.Is(err, repository.ErrInvalidField):
		return NewError(fiber.StatusBadRequest, "INVALID_FIELD", "invalid field")
	default:
		return err
	}
}

// ListNotes godoc
// @Summary List notes
// @Tags    notes
// @Produce json
// @Param   page     query int    false "1-based page"     default(1)
// @Param   per_page query int    false "items per page"   default(10)
// @Param   q        query string false "title search"
// @Success 200 {object} service.NoteListResult
// @Failure 400 {object} errorPayload
// @Router  /notes [get]
func ListNotes(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := strconv.Atoi(c.Query("page", "1"))
		if err != nil {
			return NewError(fiber.StatusBadRequest, "INVALID_PAGE", "invalid page")
		}
		perPage, err := strconv.Atoi(c.Query("per_page", strconv.Itoa(service.DefaultPerPage)))
		if err != nil {
			return NewError(fiber.StatusBadRequest, "INVALID_PER_PAGE", "invalid per_page")
		}

		res, err := svc.List(c.UserContext(), page, perPage, c.Query("q"))
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(res)
	}
}

// CreateNote godoc
// @Summary Create a note
// @Tags    notes
// @Accept  json
// @Produce json
// @Param   note body     model.Note true "note"
// @Success 201  {object} model.Note
// @Failure 400  {object} errorPayload
// @Router  /notes [post]
func CreateNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in model.Note
		if err := c.BodyParser(&in); err != nil {
			return NewError(fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		n, err := svc.Create(c.UserContext(), &in)
		if err != nil {
			return serviceError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(n)
	}
}

// GetNote godoc
// @Summary Get a note
// @Tags    notes
// @Produce json
// @Param   id  path     string true "note id"
// @Success 200 {object} model.Note
// @Failure 404 {object} errorPayload
// @Router  /notes/{id} [get]
func GetNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(n)
	}
}

// PatchNote godoc
// @Summary Update fields of a note
// @Tags    notes
// @Accept  json
// @Produce json
// @Param   id    path     string          true "note id"
// @Param   patch body     model.NotePatch true "fields to change"
// @Success 200   {object} model.Note
// @Failure 400   {object} errorPayload
// @Failure 404   {object} errorPayload
// @Router  /notes/{id} [patch]
func PatchNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p model.NotePatch
		if err := c.BodyParser(&p); err != nil {
			return NewError(fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		n, err := svc.Patch(c.UserContext(), c.Params("id"), p)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(n)
	}
}

// DeleteNote godoc
// @Summary Delete a note
// @Description Returns the note as it was before deletion.
// @Tags    notes
// @Produce json
// @Param   id  path     string true "note id"
// @Success 200 {object} model.Note
// @Failure 404 {object} errorPayload
// @Router  /notes/{id} [delete]
func DeleteNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := svc.Delete(c.UserContext(), c.Params("id"))
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(n)
	}
}

// NoteField godoc
// @Summary Read one field of a note
// @Tags    notes
// @Produce json
// @Param   id    path     string true "note id"
// @Param   field path     string true "field name"
// @Success 200   {object} map[string]any
// @Failure 400   {object} errorPayload
// @Failure 404   {object} errorPayload
// @Router  /notes/{id}/{field} [get]
func NoteField(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, field := c.Params("id"), c.Params("field")
		v, err := svc.Field(c.UserContext(), id, field)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{"id": id, field: v})
	}
}

// CountNotes godoc
// @Summary Count notes
// @Tags    notes
// @Produce json
// @Param   q   query    string false "title search"
// @Success 200 {object} map[string]int64
// @Router  /notes/count [get]
func CountNotes(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := svc.Count(c.UserContext(), c.Query("q"))
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{"count": n})
	}
}

// EnsureNote godoc
// @Summary Find or create a note by title
// @Tags    notes
// @Produce json
// @Param   title path     string true "note title"
// @Success 200   {object} model.Note
// @Failure 400   {object} errorPayload
// @Router  /notes/by-title/{title} [put]
func EnsureNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		title, err := url.PathUnescape(c.Params("title"))
		if err != nil {
			return NewError(fiber.StatusBadRequest, "INVALID_TITLE", "invalid title")
		}
		n, err := svc.EnsureByTitle(c.UserContext(), title)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(n)
	}
}
