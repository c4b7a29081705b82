package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"svcboot/internal/model"
	"svcboot/internal/service"
	serviceMocks "svcboot/internal/service/mocks"
)

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := newApp()
	app.Get("/health", HealthCheck(PingFunc(db.PingContext)))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})

	t.Run("no store", func(t *testing.T) {
		app := newApp()
		app.Get("/health", HealthCheck(nil))
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := newApp()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorHandler(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})

	app.Get("/internal", func(c *fiber.Ctx) error {
		return errors.New("pq: password authentication failed")
	})
	app.Get("/coded", func(c *fiber.Ctx) error {
		return NewError(fiber.StatusConflict, "DUPLICATE", "already exists")
	})
	app.Get("/wrapped", func(c *fiber.Ctx) error {
		return fmtWrap(fiber.ErrRequestEntityTooLarge)
	})
	app.Get("/unavailable", func(c *fiber.Ctx) error {
		return fiber.ErrServiceUnavailable
	})

	t.Run("internal error hides details", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/internal", nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		body := decodeError(t, resp)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.Equal(t, "internal server error", body.Error.Message)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	})

	t.Run("coded error", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/coded", nil))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "DUPLICATE", body.Error.Code)
		assert.Equal(t, "already exists", body.Error.Message)
		assert.Empty(t, logs.TakeAll())
	})

	t.Run("wrapped fiber error", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/wrapped", nil))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "REQUEST_ENTITY_TOO_LARGE", decodeError(t, resp).Error.Code)
	})

	t.Run("service unavailable", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/unavailable", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
		logs.TakeAll()
	})

	t.Run("request id is echoed", func(t *testing.T) {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("request_id", "rid-1")
			return c.Next()
		})
		app.Use(NotFound())

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "rid-1", body.RequestID)
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
	})
}

func TestErrorHandler_LogsTraceID(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(trace.ContextWithSpanContext(c.UserContext(), sc))
		return c.Next()
	})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, traceID.String(), entries[0].ContextMap()["trace_id"])
}

type wrapped struct{ err error }

func (w wrapped) Error() string { return "handler: " + w.err.Error() }
func (w wrapped) Unwrap() error { return w.err }

func fmtWrap(err error) error { return wrapped{err: err} }

func TestListNotes(t *testing.T) {
	mockSvc := new(serviceMocks.MockNoteService)
	app := newApp()
	app.Get("/notes", ListNotes(mockSvc))

	t.Run("success", func(t *testing.T) {
		expectedRes := &service.NoteListResult{
			Items:   []model.Note{{ID: uuid.New().String(), Title: "first"}},
			Total:   1,
			Page:    2,
			PerPage: 5,
		}
		mockSvc.On("List", mock.Anything, 2, 5, "fir").Return(expectedRes, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/notes?page=2&per_page=5&q=fir", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.NoteListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, int64(1), result.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, 1, service.DefaultPerPage, "").
			Return(&service.NoteListResult{Items: []model.Note{}}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/notes", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid page", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/notes?page=abc", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PAGE", decodeError(t, resp).Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, 1, service.DefaultPerPage, "").Return(nil, errors.New("service error")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/notes", nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestCreateNote(t *testing.T) {
	mockSvc := new(serviceMocks.MockNoteService)
	app := newApp()
	app.Post("/notes", CreateNote(mockSvc))

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		return resp
	}

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(n *model.Note) bool {
			return n.Title == "hello" && n.Content == "world"
		})).Return(&model.Note{ID: "gen-id", Title: "hello"}, nil).Once()

		resp := post(`{"title":"hello","content":"world"}`)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result model.Note
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, "gen-id", result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid body", func(t *testing.T) {
		resp := post(`{"title":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("validation error", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, mock.Anything).
			Return(nil, errors.Join(service.ErrInvalidInput, errors.New("title is required"))).Once()

		resp := post(`{"content":"no title"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, resp).Error.Code)
	})
}

func TestGetNote(t *testing.T) {
	mockSvc := new(serviceMocks.MockNoteService)
	app := newApp()
	app.Get("/notes/:id", GetNote(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).Return(&model.Note{ID: id, Title: "t"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/notes/"+id, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result model.Note
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "missing").Return(nil, service.ErrNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/notes/missing", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "boom").Return(nil, sql.ErrConnDone).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/notes/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestPatchNote(t *testing.T) {
	mockSvc := new(serviceMocks.MockNoteService)
	app := newApp()
	app.Patch("/notes/:id", PatchNote(mockSvc))

	patch := func(id, body string) *http.Response {
		req := httptest.NewRequest(http.MethodPatch, "/notes/"+id, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		return resp
	}

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Patch", mock.Anything, "1", model.NotePatch{Title: "renamed"}).
			Return(&model.Note{ID: "1", Title: "renamed"}, nil).Once()

		resp := patch("1", `{"title":"renamed"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Patch", mock.Anything, "2", mock.Anything).Return(nil, service.ErrNotFound).Once()

		resp := patch("2", `{"title":"x"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDeleteNote(t *testing.T) {
	mockSvc := new(serviceMocks.MockNoteService)
	app := newApp()
	app.Delete("/notes/:id", DeleteNote(mockSvc))

	t.Run("success returns prior state", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, "1").Return(&model.Note{ID: "1", Title: "gone"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/notes/1", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result model.Note
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, "gone", result.Title)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, "2").Return(nil, service.ErrNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/notes/2", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestNoteField(t *testing.T) {
	mockSvc := new(serviceMocks.MockNoteService)
	app := newApp()
	app.Get("/notes/:id/:field", NoteField(mockSvc))

	mockSvc.On("Field", mock.Anything, "1", "owner").Return("ann", nil).Once()
	mockSvc.On("Field", mock.Anything, "1", "secret").Return(nil, service.ErrInvalidInput).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/notes/1/owner", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"id":"1","owner":"ann"}`, string(b))

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/notes/1/secret", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	mockSvc.AssertExpectations(t)
}

func TestNoteController_Routes(t *testing.T) {
	mockSvc := new(serviceMocks.MockNoteService)
	app := newApp()
	NewNoteController(mockSvc).Routes(app)
	app.Use(NotFound())

	t.Run("count is not an id", func(t *testing.T) {
		mockSvc.On("Count", mock.Anything, "x").Return(int64(3), nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/notes/count?q=x", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"count":3}`, string(b))
	})

	t.Run("ensure by title unescapes", func(t *testing.T) {
		mockSvc.On("EnsureByTitle", mock.Anything, "shopping list").
			Return(&model.Note{ID: "9", Title: "shopping list"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPut, "/notes/by-title/shopping%20list", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/non-existent", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestRegisterBuiltins(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "svcboot_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	app := newApp()
	RegisterBuiltins(app, Builtins{
		Pinger:   PingFunc(func(context.Context) error { return nil }),
		Gatherer: reg,
	})

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "svcboot_test_total 1")

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("method not allowed", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})
}
