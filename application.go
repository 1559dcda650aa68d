package main

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/auth"
	"github.com/cgreenhalgh/timed-ticket-server/config"
	"github.com/cgreenhalgh/timed-ticket-server/infra"
	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

type Application struct {
	config        *config.Config
	key           SigningKey
	hub           *Hub
	authenticator *auth.Authenticator
	stats         *Stats
	wsUpgrader    *websocket.Upgrader
	logger        *zap.SugaredLogger
}

func ProvideApplication(cfg *config.Config, key SigningKey, hub *Hub, authenticator *auth.Authenticator, stats *Stats, loggerFactory *infra.LoggerFactory) *Application {
	return &Application{
		config:        cfg,
		key:           key,
		hub:           hub,
		authenticator: authenticator,
		stats:         stats,
		wsUpgrader:    &websocket.Upgrader{},
		logger:        loggerFactory.Create("Application").Sugar(),
	}
}

func (a *Application) Run() {
	go a.hub.Run()
	go a.stats.Run()
	a.logDefaultTickets()
}

func (a *Application) HandleWs(c echo.Context) error {
	id := c.Response().Header().Get(echo.HeaderXRequestID)
	conn, err := a.wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(id, conn, a.hub,
		time.Duration(*a.config.PingIntervalSeconds)*time.Second,
		a.logger)
	go client.Run()

	return nil
}

type MintTicketRequest struct {
	StartTime       string  `json:"startTime"`
	DurationSeconds float64 `json:"durationSeconds"`
	Seat            string  `json:"seat"`
	ServerURL       string  `json:"serverUrl"`
}

type MintTicketResponse struct {
	Ticket string `json:"ticket"`
}

// HandleMintTicket mints a signed ticket for the configured event.
// The issuer role: only useful on a server actually holding the key.
func (a *Application) HandleMintTicket(c echo.Context) error {
	if a.key == "" {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no signing secret configured"})
	}

	request := &MintTicketRequest{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	start, err := time.Parse(ticket.DateFormat, request.StartTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad startTime: " + err.Error()})
	}
	if request.Seat == "" || request.DurationSeconds <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "seat and durationSeconds are required"})
	}

	var serverURL *url.URL
	if request.ServerURL != "" {
		if serverURL, err = url.Parse(request.ServerURL); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad serverUrl: " + err.Error()})
		}
	}

	minted := ticket.MakeTicket(*a.config.EventName, start, request.DurationSeconds, request.Seat, serverURL, string(a.key))
	a.logger.Infof("minted ticket for seat[%v]", request.Seat)
	return c.JSON(http.StatusOK, &MintTicketResponse{Ticket: minted})
}

type EvictWildcardsRequest struct {
	Count int `json:"count"`
}

type EvictWildcardsResponse struct {
	Evicted  int  `json:"evicted"`
	Achieved bool `json:"achieved"`
}

// HandleEvictWildcards force-frees wildcard seats, longest remaining
// window first. Operator escape hatch for over-admitted events.
func (a *Application) HandleEvictWildcards(c echo.Context) error {
	request := &EvictWildcardsRequest{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if request.Count <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "count must be positive"})
	}

	evicted, achieved := a.authenticator.ShedWildcards(request.Count)
	a.logger.Infof("admin evicted %v wildcard seat(s), achieved[%v]", evicted, achieved)
	return c.JSON(http.StatusOK, &EvictWildcardsResponse{Evicted: evicted, Achieved: achieved})
}

// logDefaultTickets mints and logs one ticket per default seat at
// startup, when configured. Handy for small events run straight off
// the server.
func (a *Application) logDefaultTickets() {
	if *a.config.DefaultSeats <= 0 || a.key == "" {
		return
	}

	start, err := time.Parse(ticket.DateFormat, *a.config.DefaultStartTime)
	if err != nil {
		a.logger.Errorf("default start time format error %v", err)
		return
	}

	a.logger.Infof("default tickets:")
	for i := 1; i <= *a.config.DefaultSeats; i++ {
		a.logger.Infof("%v", ticket.MakeTicket(*a.config.EventName, start, *a.config.DefaultDurationSeconds, strconv.Itoa(i), nil, string(a.key)))
	}
}
