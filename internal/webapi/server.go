// Package webapi is the HTTP adapter used by the external web client.
//
// Writes go through the engine tagged OriginExternal and never run side
// effects in this process: the reconciler picks them up from the change feed
// and replays them, exactly as it does for writes made by any other client.
package webapi

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/bountyboard/internal/domain"
	"github.com/roach88/bountyboard/internal/engine"
)

// DefaultClientID labels activity entries written through the web API.
const DefaultClientID = "bounty-web"

// Applier applies one activity. Implemented by engine.Engine.
type Applier interface {
	Apply(ctx context.Context, req domain.Request) (*engine.Result, error)
}

// Reader serves bounty reads. Implemented by store.Store.
type Reader interface {
	Get(ctx context.Context, id string) (*domain.Bounty, error)
	Query(ctx context.Context, f domain.Filter, limit int) ([]*domain.Bounty, error)
}

// Server routes web-client requests to the engine and store.
type Server struct {
	app      *fiber.App
	engine   Applier
	store    Reader
	clientID string
	token    string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithClientID sets the clientId recorded on activity entries.
func WithClientID(id string) Option {
	return func(s *Server) { s.clientID = id }
}

// WithToken requires every request to carry the shared service token, as a
// bearer token or in X-Service-Token. Empty disables the check.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server with its routes installed.
func New(e Applier, r Reader, opts ...Option) *Server {
	s := &Server{
		engine:   e,
		store:    r,
		clientID: DefaultClientID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "bountyboard",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Get("/bounties", s.authenticate, s.listBounties)
	s.app.Post("/bounties", s.authenticate, s.createBounty)
	s.app.Get("/bounties/:id", s.authenticate, s.getBounty)
	s.app.Post("/bounties/:id/:activity", s.authenticate, s.applyActivity)
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("web api listening", "addr", addr)
		errc <- s.app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithContext(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) authenticate(c *fiber.Ctx) error {
	if s.token == "" {
		return c.Next()
	}
	token := c.Get("X-Service-Token")
	if token == "" {
		token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	}
	if token != s.token {
		s.logger.Warn("rejected web api request", "path", c.Path())
		return fiber.NewError(fiber.StatusUnauthorized, "invalid service token")
	}
	return c.Next()
}

// activityBody is the JSON body of a write request.
type activityBody struct {
	CustomerID string          `json:"customerId"`
	Actor      domain.ActorRef `json:"actor"`
	Payload    domain.Payload  `json:"payload"`
}

func (s *Server) listBounties(c *fiber.Ctx) error {
	customer := c.Query("customer")
	if customer == "" {
		return fiber.NewError(fiber.StatusBadRequest, "customer is required")
	}
	f := domain.Filter{CustomerID: customer}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := domain.Status(strings.TrimSpace(part))
			if !st.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "unknown status "+strconv.Quote(string(st)))
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must not be negative")
	}

	bounties, err := s.store.Query(c.UserContext(), f, limit)
	if err != nil {
		return err
	}
	if bounties == nil {
		bounties = []*domain.Bounty{}
	}
	return c.JSON(fiber.Map{"bounties": bounties})
}

func (s *Server) getBounty(c *fiber.Ctx) error {
	id := c.Params("id")
	b, err := s.store.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if customer := c.Query("customer"); customer != "" && customer != b.CustomerID {
		return domain.NewNotFound(id)
	}
	return c.JSON(b)
}

func (s *Server) createBounty(c *fiber.Ctx) error {
	var body activityBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body: "+err.Error())
	}
	return s.apply(c, domain.Request{
		Activity:   domain.ActivityCreate,
		CustomerID: body.CustomerID,
		Actor:      body.Actor,
		Payload:    body.Payload,
	}, fiber.StatusCreated)
}

func (s *Server) applyActivity(c *fiber.Ctx) error {
	activity, err := domain.ParseActivity(c.Params("activity"))
	if err != nil {
		return err
	}
	if activity == domain.ActivityCreate {
		return fiber.NewError(fiber.StatusMethodNotAllowed, "use POST /bounties to create")
	}

	var body activityBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "malformed body: "+err.Error())
		}
	}
	return s.apply(c, domain.Request{
		Activity:   activity,
		BountyID:   c.Params("id"),
		CustomerID: body.CustomerID,
		Actor:      body.Actor,
		Payload:    body.Payload,
	}, fiber.StatusOK)
}

func (s *Server) apply(c *fiber.Ctx, req domain.Request, status int) error {
	req.Origin = domain.OriginExternal
	req.ClientID = s.clientID

	res, err := s.engine.Apply(c.UserContext(), req)
	if err != nil {
		return err
	}
	s.logger.Info("web activity applied",
		"bounty_id", res.Bounty.ID,
		"activity", req.Activity,
		"actor", req.Actor.ID,
	)
	return c.Status(status).JSON(res.Bounty)
}

// handleError maps domain errors to HTTP statuses.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := StatusOf(err)
	code := string(domain.CodeOf(err))
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		code = ""
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("web api request failed", "path", c.Path(), "error", err)
	}

	body := fiber.Map{"error": err.Error()}
	if code != "" {
		body["code"] = code
	}
	return c.Status(status).JSON(body)
}

// StatusOf returns the HTTP status for an engine or store error.
func StatusOf(err error) int {
	switch domain.CodeOf(err) {
	case domain.ErrCodeValidation, domain.ErrCodeUnrecognizedActivity:
		return fiber.StatusBadRequest
	case domain.ErrCodePrecondition, domain.ErrCodeConcurrentModification:
		return fiber.StatusConflict
	case domain.ErrCodeNotFound:
		return fiber.StatusNotFound
	case domain.ErrCodeDependencyUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
