package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/smartmessage"
	"github.com/JRI98/smartchat/internal/thread"
	"github.com/JRI98/smartchat/server/services"
	"github.com/labstack/echo/v4"
)

type ThreadStore interface {
	CreateThread(ctx context.Context, params services.CreateThreadParams) (thread.Record, error)
	FindThread(ctx context.Context, address identity.Identity) (thread.Record, error)
	ListThreads(ctx context.Context, member identity.Identity) ([]thread.Record, error)
	DeleteThread(ctx context.Context, address identity.Identity) error
	SendMessage(ctx context.Context, params services.SendMessageParams) error
	ListMessages(ctx context.Context, address identity.Identity, limit int) ([]services.Message, error)
}

type Handler struct {
	Threads ThreadStore
}

func NewHandler(threads ThreadStore) *Handler {
	return &Handler{
		Threads: threads,
	}
}

func validateData[T any](c echo.Context) (*T, error) {
	res := new(T)

	if err := c.Bind(res); err != nil {
		return nil, err
	}

	if err := c.Validate(res); err != nil {
		return nil, err
	}

	return res, nil
}

func getIdentity(c echo.Context) identity.Identity {
	id, ok := c.Get(identityKey).(identity.Identity)
	if !ok {
		panic(errors.New("could not get identity from context"))
	}

	return id
}

func newEchoHTTPError(code int, message string, err *error) *echo.HTTPError {
	if err != nil {
		return echo.NewHTTPError(code, message).SetInternal(*err)
	}
	return echo.NewHTTPError(code, message)
}

// loadThread resolves the :address param and checks that the caller is a
// member of the thread.
func (h *Handler) loadThread(c echo.Context) (thread.Record, thread.Thread, error) {
	address, err := identity.Parse(c.Param("address"))
	if err != nil {
		return thread.Record{}, thread.Thread{}, newEchoHTTPError(http.StatusBadRequest, "Invalid thread address", &err)
	}

	record, err := h.Threads.FindThread(c.Request().Context(), address)
	if err != nil {
		if errors.Is(err, services.ErrThreadNotFound) {
			return thread.Record{}, thread.Thread{}, newEchoHTTPError(http.StatusNotFound, "Thread not found", &err)
		}
		return thread.Record{}, thread.Thread{}, newEchoHTTPError(http.StatusInternalServerError, "Could not find thread", &err)
	}

	view, err := record.View(getIdentity(c))
	if err != nil {
		return thread.Record{}, thread.Thread{}, newEchoHTTPError(http.StatusForbidden, "Not a thread member", &err)
	}

	return record, view, nil
}

type CreateThreadData struct {
	OtherMembers []identity.Identity `json:"other_members" validate:"required,min=1"`
	Encrypted    bool                `json:"encrypted"`
}

func (h *Handler) CreateThread(c echo.Context) error {
	me := getIdentity(c)

	data, err := validateData[CreateThreadData](c)
	if err != nil {
		return fmt.Errorf("could not validate data: %w", err)
	}

	record, err := h.Threads.CreateThread(c.Request().Context(), services.CreateThreadParams{
		Creator:      me,
		OtherMembers: data.OtherMembers,
		Encrypted:    data.Encrypted,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidThread) {
			return newEchoHTTPError(http.StatusBadRequest, err.Error(), &err)
		}
		return newEchoHTTPError(http.StatusInternalServerError, "Could not create thread", &err)
	}

	view, err := record.View(me)
	if err != nil {
		return newEchoHTTPError(http.StatusInternalServerError, "Could not create thread", &err)
	}

	return c.JSON(http.StatusCreated, view)
}

type Summary struct {
	Thread        thread.Thread   `json:"thread"`
	LatestMessage *thread.Message `json:"latest_message,omitempty"`
}

func (h *Handler) ListThreads(c echo.Context) error {
	me := getIdentity(c)
	ctx := c.Request().Context()

	records, err := h.Threads.ListThreads(ctx, me)
	if err != nil {
		return newEchoHTTPError(http.StatusInternalServerError, "Could not list threads", &err)
	}

	views := make([]thread.Thread, 0, len(records))
	encrypted := make(map[string]bool, len(records))
	for _, record := range records {
		view, err := record.View(me)
		if err != nil {
			continue
		}
		views = append(views, view)
		encrypted[record.Address.String()] = record.Encrypted
	}
	thread.SortByActivity(views)

	summaries := make([]Summary, 0, len(views))
	for _, view := range views {
		latest, err := h.Threads.ListMessages(ctx, view.ID.Address, 1)
		if err != nil {
			return newEchoHTTPError(http.StatusInternalServerError, "Could not get latest message", &err)
		}

		summary := Summary{Thread: view}
		if len(latest) > 0 {
			message := toThreadMessage(latest[0], encrypted[view.ID.Address.String()])
			summary.LatestMessage = &message
		}
		summaries = append(summaries, summary)
	}

	return c.JSON(http.StatusOK, summaries)
}

func (h *Handler) GetThread(c echo.Context) error {
	_, view, err := h.loadThread(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DeleteThread(c echo.Context) error {
	record, view, err := h.loadThread(c)
	if err != nil {
		return err
	}

	if !view.IsAdminable() {
		return newEchoHTTPError(http.StatusForbidden, "Only thread admins can delete a thread", nil)
	}

	err = h.Threads.DeleteThread(c.Request().Context(), record.Address)
	if err != nil {
		if errors.Is(err, services.ErrThreadNotFound) {
			return newEchoHTTPError(http.StatusNotFound, "Thread not found", &err)
		}
		return newEchoHTTPError(http.StatusInternalServerError, "Could not delete thread", &err)
	}

	return c.NoContent(http.StatusNoContent)
}

func toThreadMessage(message services.Message, encrypted bool) thread.Message {
	out := thread.Message{
		Author:    message.Author,
		Timestamp: message.CreatedAt,
	}
	if encrypted {
		out.Ciphertext = message.Data
	} else {
		out.Text = string(message.Data)
	}
	return out
}

func (h *Handler) ListMessages(c echo.Context) error {
	record, _, err := h.loadThread(c)
	if err != nil {
		return err
	}

	limit := services.DefaultMessageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return newEchoHTTPError(http.StatusBadRequest, "Invalid limit", nil)
		}
	}

	messages, err := h.Threads.ListMessages(c.Request().Context(), record.Address, limit)
	if err != nil {
		return newEchoHTTPError(http.StatusInternalServerError, "Could not list messages", &err)
	}

	response := make([]thread.Message, 0, len(messages))
	for _, message := range messages {
		response = append(response, toThreadMessage(message, record.Encrypted))
	}

	return c.JSON(http.StatusOK, response)
}

type SendMessageData struct {
	Text       string `json:"text"`
	Ciphertext []byte `json:"ciphertext"`
}

func (h *Handler) SendMessage(c echo.Context) error {
	record, view, err := h.loadThread(c)
	if err != nil {
		return err
	}

	if !view.IsWritable() {
		return newEchoHTTPError(http.StatusForbidden, "No write access to thread", nil)
	}

	data, err := validateData[SendMessageData](c)
	if err != nil {
		return fmt.Errorf("could not validate data: %w", err)
	}

	var payload []byte
	if record.Encrypted {
		if data.Text != "" || len(data.Ciphertext) == 0 {
			return newEchoHTTPError(http.StatusBadRequest, "Encrypted threads only accept ciphertext", nil)
		}
		payload = data.Ciphertext
	} else {
		if len(data.Ciphertext) != 0 {
			return newEchoHTTPError(http.StatusBadRequest, "Thread is not encrypted", nil)
		}
		if err := thread.ValidateText(data.Text); err != nil {
			return newEchoHTTPError(http.StatusBadRequest, err.Error(), &err)
		}
		payload = []byte(data.Text)
	}

	err = h.Threads.SendMessage(c.Request().Context(), services.SendMessageParams{
		Address: record.Address,
		Author:  view.Me.Identity,
		Data:    payload,
	})
	if err != nil {
		return newEchoHTTPError(http.StatusInternalServerError, "Could not send message", &err)
	}

	return c.NoContent(http.StatusNoContent)
}

type ClassifyData struct {
	Text string `json:"text"`
}

func (h *Handler) Classify(c echo.Context) error {
	data, err := validateData[ClassifyData](c)
	if err != nil {
		return fmt.Errorf("could not validate data: %w", err)
	}

	parsed, err := smartmessage.Parse(data.Text, getIdentity(c))
	if err != nil {
		if errors.Is(err, smartmessage.ErrInvalidStructuredPayload) {
			return newEchoHTTPError(http.StatusUnprocessableEntity, err.Error(), &err)
		}
		return newEchoHTTPError(http.StatusInternalServerError, "Could not classify message", &err)
	}

	return c.JSON(http.StatusOK, parsed)
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
