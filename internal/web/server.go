// Package web provides the HTTP control plane for the button-monitor daemon:
// the attribute group, press history and a status page.
package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sweeney/button-monitor/internal/attr"
	"github.com/sweeney/button-monitor/internal/history"
	"github.com/sweeney/button-monitor/internal/monitor"
	"github.com/sweeney/button-monitor/internal/status"
)

// Attributes is the attribute group served under /<group>.
// *attr.Surface implements it.
type Attributes interface {
	Group() string
	Attributes() []attr.Info
	Read(name string) (string, error)
	ReadAll() (map[string]string, error)
	Write(name, value string) error
}

// History lists recent presses. *history.Store implements it.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Count(ctx context.Context) (int, error)
}

// Options configures a Server.
type Options struct {
	Tracker    *status.Tracker
	Attributes Attributes

	// History may be nil when the press log is disabled.
	History History

	Version string
	Logger  *zap.SugaredLogger
}

// Server serves the control plane over HTTP.
type Server struct {
	app     *fiber.App
	tracker *status.Tracker
	attrs   Attributes
	history History
	version string
	log     *zap.SugaredLogger
}

// New creates a Server and registers its routes.
func New(o Options) *Server {
	log := o.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
		}),
		tracker: o.Tracker,
		attrs:   o.Attributes,
		history: o.History,
		version: o.Version,
		log:     log,
	}

	// Fixed routes first so they are not taken for a group name.
	s.app.Get("/", s.handleIndex)
	s.app.Get("/index.html", s.handleIndex)
	s.app.Get("/index.json", s.handleJSON)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/version", s.handleVersion)

	s.app.Get("/:group", s.handleGroup)
	s.app.Get("/:group/history", s.handleHistory)
	s.app.Get("/:group/:attr", s.handleRead)
	s.app.Put("/:group/:attr", s.handleWrite)
	s.app.Post("/:group/:attr", s.handleWrite)
	return s
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr. It blocks until the server is shut down.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	snap := s.tracker.Snapshot()
	// Values stay empty once the monitor is torn down.
	values, _ := s.attrs.ReadAll()
	var buf bytes.Buffer
	if err := renderHTML(&buf, snap, s.attrs.Group(), s.attrs.Attributes(), values); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

func (s *Server) handleJSON(c *fiber.Ctx) error {
	c.Type("json")
	return c.Send(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	host, _ := os.Hostname()

	snap := s.tracker.Snapshot()
	return c.JSON(HealthJSON{
		Active:             snap.Active,
		MQTTConnected:      snap.MQTTConnected,
		NumGoroutines:      runtime.NumGoroutine(),
		HeapAllocatedBytes: m.Alloc,
		SysMemoryBytes:     m.Sys,
		ProgLang:           runtime.Version(),
		Version:            s.version,
		HostName:           host,
		Time:               snap.Now.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleVersion(c *fiber.Ctx) error {
	return c.SendString(s.version + "\n")
}

// checkGroup answers 404 for any group but ours.
func (s *Server) checkGroup(c *fiber.Ctx) bool {
	if c.Params("group") != s.attrs.Group() {
		c.Status(http.StatusNotFound)
		return false
	}
	return true
}

func (s *Server) handleGroup(c *fiber.Ctx) error {
	if !s.checkGroup(c) {
		return c.SendString("unknown group\n")
	}
	values, err := s.attrs.ReadAll()
	if err != nil {
		return s.sendError(c, err)
	}
	return c.JSON(GroupJSON{Group: s.attrs.Group(), Attributes: values})
}

func (s *Server) handleRead(c *fiber.Ctx) error {
	if !s.checkGroup(c) {
		return c.SendString("unknown group\n")
	}
	value, err := s.attrs.Read(c.Params("attr"))
	if err != nil {
		return s.sendError(c, err)
	}
	return c.SendString(value)
}

func (s *Server) handleWrite(c *fiber.Ctx) error {
	if !s.checkGroup(c) {
		return c.SendString("unknown group\n")
	}
	name := c.Params("attr")
	value := string(c.Body())
	if err := s.attrs.Write(name, value); err != nil {
		s.log.Infof("web: write %s/%s rejected: %v", s.attrs.Group(), name, err)
		return s.sendError(c, err)
	}
	s.log.Infof("web: write %s/%s=%q", s.attrs.Group(), name, value)
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if !s.checkGroup(c) {
		return c.SendString("unknown group\n")
	}
	if s.history == nil {
		return c.Status(http.StatusServiceUnavailable).SendString("history disabled\n")
	}
	limit := history.DefaultLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return c.Status(http.StatusBadRequest).SendString("invalid limit\n")
		}
		limit = history.ClampLimit(n)
	}
	entries, err := s.history.Recent(c.UserContext(), limit)
	if err != nil {
		s.log.Errorf("web: history: %v", err)
		return c.Status(http.StatusInternalServerError).SendString("history unavailable\n")
	}
	total, err := s.history.Count(c.UserContext())
	if err != nil {
		s.log.Errorf("web: history: %v", err)
		return c.Status(http.StatusInternalServerError).SendString("history unavailable\n")
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(HistoryJSON{Group: s.attrs.Group(), Total: total, Entries: entries})
}

func (s *Server) sendError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).SendString(err.Error() + "\n")
}

// statusFor maps control plane errors to HTTP status codes.
func statusFor(err error) int {
	var verr *attr.ValidationError
	switch {
	case errors.Is(err, attr.ErrUnknownAttribute):
		return http.StatusNotFound
	case errors.Is(err, attr.ErrReadOnly):
		return http.StatusMethodNotAllowed
	case errors.Is(err, attr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, monitor.ErrInactive):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
