package realtime

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// Client frame events.
const (
	ClientJoinClinic  = "join-clinic"
	ClientJoinDoctor  = "join-doctor"
	ClientLeaveClinic = "leave-clinic"
	ClientLeaveDoctor = "leave-doctor"
)

// ClientMessage is an inbound frame from a session.
type ClientMessage struct {
	Event string `json:"event"`
	ID    string `json:"id"`
}

const sendBuffer = 256

// Handler serves the WebSocket endpoint and the internal event hooks used by
// other parts of the system to push lifecycle events.
type Handler struct {
	broadcaster *Broadcaster
	logger      zerolog.Logger
	upgrader    gorillawebsocket.Upgrader
}

// NewHandler creates a Handler. An empty origins list, or one containing "*",
// accepts any origin.
func NewHandler(b *Broadcaster, logger zerolog.Logger, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return &Handler{
		broadcaster: b,
		logger:      logger.With().Str("component", "realtime-ws").Logger(),
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
	}
}

// RegisterRoutes mounts /ws on root and the event hooks on api.
func (h *Handler) RegisterRoutes(api *echo.Group, root *echo.Group) {
	root.GET("/ws", h.HandleConnect)

	hooks := api.Group("/realtime", auth.RequireRole("service"))
	hooks.POST("/clinics/:id/events", h.PostClinicEvent)
	hooks.POST("/appointments/:id/events", h.PostAppointmentEvent)
}

// HandleConnect upgrades the connection and starts the read/write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session := NewSession(uuid.New().String(), sendBuffer)
	h.broadcaster.Connect(session)

	go h.writePump(session, ws)
	go h.readPump(session, ws)
	return nil
}

func (h *Handler) readPump(s *Session, ws *gorillawebsocket.Conn) {
	defer func() {
		h.broadcaster.Disconnect(s)
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.process(s, msg)
	}
}

func (h *Handler) process(s *Session, msg ClientMessage) {
	if msg.ID == "" {
		return
	}
	switch msg.Event {
	case ClientJoinClinic:
		h.broadcaster.JoinClinic(s, msg.ID)
	case ClientJoinDoctor:
		h.broadcaster.JoinDoctor(s, msg.ID)
	case ClientLeaveClinic:
		h.broadcaster.LeaveClinic(s, msg.ID)
	case ClientLeaveDoctor:
		h.broadcaster.LeaveDoctor(s, msg.ID)
	default:
		h.logger.Debug().Str("session", s.ID).Str("event", msg.Event).Msg("ignoring unknown client event")
	}
}

func (h *Handler) writePump(s *Session, ws *gorillawebsocket.Conn) {
	defer ws.Close()
	for frame := range s.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, frame); err != nil {
			return
		}
	}
	ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
}

type clinicEventRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type appointmentEventRequest struct {
	ClinicID string          `json:"clinic_id"`
	Payload  json.RawMessage `json:"payload"`
}

// PostClinicEvent emits an arbitrary event to a clinic room.
func (h *Handler) PostClinicEvent(c echo.Context) error {
	var req clinicEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Event == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event is required")
	}
	if err := h.broadcaster.NotifyClinic(c.Request().Context(), c.Param("id"), req.Event, req.Payload); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// PostAppointmentEvent emits appointment-<id>. With clinic_id the event goes to
// that clinic's room; without it every session receives it.
func (h *Handler) PostAppointmentEvent(c echo.Context) error {
	var req appointmentEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	id := c.Param("id")

	var err error
	if req.ClinicID != "" {
		err = h.broadcaster.EmitAppointmentUpdateToClinic(ctx, req.ClinicID, id, req.Payload)
	} else {
		err = h.broadcaster.EmitAppointmentUpdate(ctx, id, req.Payload)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
