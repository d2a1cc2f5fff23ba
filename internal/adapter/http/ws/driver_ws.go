package wshandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
	"github.com/aqylbek/ambulance-dispatch/pkg/validator"
	ws "github.com/aqylbek/ambulance-dispatch/pkg/wsHub"
)

const msgTypeLocationUpdate = "location_update"

type SessionService interface {
	UpdateLocation(ctx context.Context, driverID uuid.UUID, loc models.Location) error
	Heartbeat(ctx context.Context, driverID uuid.UUID) error
}

// DriverGateway holds driver WebSocket connections. Inbound messages are
// GPS pushes; outbound messages are assignment offers forwarded from the
// broker.
type DriverGateway struct {
	connections *ws.ConnectionHub
	sessions    SessionService
	upgrader    websocket.Upgrader
	l           logger.Logger
}

func NewDriverGateway(connHub *ws.ConnectionHub, sessions SessionService, l logger.Logger) *DriverGateway {
	return &DriverGateway{
		connections: connHub,
		sessions:    sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		l: l,
	}
}

// HandleWS upgrades the request and serves the driver connection until
// the peer disconnects.
func (g *DriverGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_ws")

	driverID, err := uuid.Parse(r.PathValue("driver_id"))
	if err != nil {
		http.Error(w, "invalid driver uuid format", http.StatusBadRequest)
		return
	}

	caller := models.UserFromContext(ctx)
	if caller != nil && !caller.IsAnonymous() && caller.ID != driverID {
		http.Error(w, "cannot connect on behalf of another driver", http.StatusForbidden)
		return
	}

	ctx = wrap.WithDriverID(ctx, driverID.String())

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.l.Error(wrap.ErrorCtx(ctx, err), "websocket upgrade failed", err)
		return
	}

	wsConn := ws.NewConn(context.Background(), driverID, conn)
	if err := g.connections.Add(wsConn); err != nil {
		g.l.Error(wrap.ErrorCtx(ctx, err), "failed to register ws connection", err)
		conn.Close()
		return
	}

	g.l.Info(ctx, "driver connected", "driver_id", driverID)

	// Listen blocks until the peer goes away or a handler fails.
	if err := wsConn.Listen(func(msg map[string]any) error {
		return g.handleInbound(ctx, driverID, msg)
	}); err != nil {
		g.l.Debug(ctx, "driver ws listen finished", "driver_id", driverID, "reason", err.Error())
	}

	if err := g.connections.Delete(driverID); err != nil && !errors.Is(err, ws.ErrConnIsNotFound) {
		g.l.Warn(ctx, "failed to drop ws connection", "driver_id", driverID, "err", err.Error())
	}

	g.l.Info(ctx, "driver disconnected", "driver_id", driverID)
}

func (g *DriverGateway) handleInbound(ctx context.Context, driverID uuid.UUID, msg map[string]any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var update models.DriverLocationUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return err
	}

	if update.Type != msgTypeLocationUpdate {
		g.l.Debug(ctx, "ignoring unknown ws message type", "type", update.Type)
		return nil
	}

	v := validator.New()
	v.Check(validator.ValidLatitude(update.Latitude), "latitude", "must be between -90 and 90")
	v.Check(validator.ValidLongitude(update.Longitude), "longitude", "must be between -180 and 180")
	if !v.Valid() {
		g.l.Warn(ctx, "dropping invalid location update", "errors", v.Errors)
		return nil
	}

	loc := models.Location{Latitude: update.Latitude, Longitude: update.Longitude}
	if err := g.sessions.UpdateLocation(ctx, driverID, loc); err != nil {
		// A closed session is not a protocol error; keep the socket open
		// so the driver can start a new shift without reconnecting.
		g.l.Debug(ctx, "location update not applied", "driver_id", driverID, "reason", err.Error())
	}
	return nil
}

// ForwardOffer pushes an assignment offer to the driver's socket. A driver
// without a live connection is not an error: the offer still times out on
// its own and the sweep re-dispatches.
func (g *DriverGateway) ForwardOffer(ctx context.Context, offer models.AssignmentOfferMessage) error {
	ctx = wrap.WithAction(ctx, "forward_assignment_offer")

	err := g.connections.SendTo(offer.DriverID, offer)
	if err != nil {
		if errors.Is(err, ws.ErrConnIsNotFound) {
			g.l.Debug(ctx, "driver has no live ws connection, offer not pushed", "driver_id", offer.DriverID)
			return nil
		}
		g.l.Warn(ctx, "failed to push offer", "driver_id", offer.DriverID, "err", err.Error())
		return err
	}

	g.l.Info(ctx, "offer pushed to driver", "driver_id", offer.DriverID, "assignment_id", offer.AssignmentID)
	return nil
}

// Close terminates every driver connection.
func (g *DriverGateway) Close() {
	g.connections.Close()
}
