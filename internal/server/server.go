// Package server exposes scheduling, listing, deletion and chat over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"eduplanner/internal/models"
	"eduplanner/internal/scheduler"
	"eduplanner/internal/store"
)

// Scheduler validates and records a new event.
type Scheduler interface {
	Schedule(ctx context.Context, name, date, clock string) (scheduler.Confirmation, error)
}

// EventStore is the persisted event list the routes read and prune.
type EventStore interface {
	Events() []models.Event
	List() string
	Delete(name string) (string, error)
}

// Chat answers a free-form message.
type Chat interface {
	Reply(ctx context.Context, message string) string
}

// Handlers holds the collaborators every route needs.
type Handlers struct {
	Logger    *slog.Logger
	Scheduler Scheduler
	Store     EventStore
	Chat      Chat
}

type scheduleRequest struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type eventResponse struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

// New builds the fiber app with every route registered.
func New(h Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "eduplanner",
		UnescapePath:          true,
		DisableStartupMessage: true,
	})
	app.Use(h.logRequests)

	app.Get("/events", h.ListEvents)
	app.Post("/events", h.ScheduleEvent)
	app.Delete("/events", h.DeleteEvent)
	app.Delete("/events/:name", h.DeleteEvent)
	app.Post("/chat", h.ChatHandler)
	return app
}

func (h Handlers) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	h.Logger.Info("HTTP request", "method", c.Method(), "path", c.Path(), "status", c.Response().StatusCode(), "duration", time.Since(start))
	return err
}

// ListEvents returns the stored events both as records and as the rendered listing.
func (h Handlers) ListEvents(c *fiber.Ctx) error {
	events := h.Store.Events()
	out := make([]eventResponse, len(events))
	for i, ev := range events {
		out[i] = eventResponse{Name: ev.Name, Time: ev.FormattedTime()}
	}
	return c.JSON(fiber.Map{"events": out, "text": store.Render(events)})
}

// ScheduleEvent schedules the event in the JSON body and answers 201 with the
// confirmation, or an error status chosen by the failure kind.
func (h Handlers) ScheduleEvent(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Error: " + err.Error(), "kind": scheduler.KindValidation.String()})
	}

	conf, err := h.Scheduler.Schedule(c.UserContext(), req.Name, req.Date, req.Time)
	if err != nil {
		return c.Status(statusFor(scheduler.KindOf(err))).JSON(fiber.Map{
			"error": scheduler.Describe(err),
			"kind":  scheduler.KindOf(err).String(),
		})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": conf.String(),
		"link":    conf.Link,
		"text":    h.Store.List(),
	})
}

// DeleteEvent removes every event with the exact name given in the path or, for names
// containing a slash, in the "name" query parameter.
func (h Handlers) DeleteEvent(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		name = c.Query("name")
		if name == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "Error: Event name cannot be empty.",
				"kind":  scheduler.KindValidation.String(),
			})
		}
	}

	msg, err := h.Store.Delete(name)
	if err != nil {
		h.Logger.Error("Failed to delete event", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error saving events: " + err.Error(),
			"kind":  scheduler.KindPersistence.String(),
		})
	}
	return c.JSON(fiber.Map{"message": msg, "text": h.Store.List()})
}

// ChatHandler replies to the "message" in the JSON body.
func (h Handlers) ChatHandler(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Error: " + err.Error()})
	}
	return c.JSON(fiber.Map{"reply": h.Chat.Reply(c.UserContext(), req.Message)})
}

func statusFor(k scheduler.Kind) int {
	switch k {
	case scheduler.KindValidation:
		return http.StatusBadRequest
	case scheduler.KindRemote:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
