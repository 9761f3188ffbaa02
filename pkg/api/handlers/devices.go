package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
	"github.com/wheelseye/devicegateway/pkg/session"
)

// CommandSender delivers a command to a connected device. Implemented by the
// GT06 adapter.
type CommandSender interface {
	SendCommand(ctx context.Context, imei string, cmd *gt06.Command) (uint16, error)
}

// DevicesHandler handles session inspection and command delivery endpoints.
type DevicesHandler struct {
	registry *session.Registry
	sender   CommandSender

	// isOffline classifies a delivery error as "device offline". Injected
	// so the adapter's sentinel error stays in the adapter package.
	isOffline func(error) bool
}

// NewDevicesHandler creates the devices handler. sender may be nil, in which
// case command delivery answers 503.
func NewDevicesHandler(registry *session.Registry, sender CommandSender, isOffline func(error) bool) *DevicesHandler {
	if isOffline == nil {
		isOffline = func(error) bool { return false }
	}
	return &DevicesHandler{registry: registry, sender: sender, isOffline: isOffline}
}

// ListSessions handles GET /api/v1/devices/sessions.
func (h *DevicesHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.registry.List(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	}))
}

// GetSession handles GET /api/v1/devices/{imei}/session.
func (h *DevicesHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	imei := chi.URLParam(r, "imei")

	s, err := h.registry.GetByIMEI(r.Context(), imei)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			NotFound(w, "No session for device")
			return
		}
		InternalServerError(w, "Failed to look up session")
		return
	}

	writeJSON(w, http.StatusOK, okResponse(s))
}

// commandRequest is the POST body for command delivery.
type commandRequest struct {
	Kind   string `json:"kind"`
	Enable bool   `json:"enable"`
	Text   string `json:"text"`
}

// commandResponse reports the serial assigned to a delivered command frame.
type commandResponse struct {
	IMEI   string `json:"imei"`
	Kind   string `json:"kind"`
	Serial uint16 `json:"serial"`
}

// SendCommand handles POST /api/v1/devices/{imei}/commands.
//
// The command is written synchronously on the device's live connection. The
// device's own reply arrives later on the telemetry bus; the returned serial
// correlates the two.
func (h *DevicesHandler) SendCommand(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("Command delivery not available"))
		return
	}

	imei := chi.URLParam(r, "imei")

	var req commandRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd, ok := buildCommand(req)
	if !ok {
		BadRequest(w, "Unknown command kind: "+req.Kind)
		return
	}

	serial, err := h.sender.SendCommand(r.Context(), imei, cmd)
	if err != nil {
		if h.isOffline(err) {
			NotFound(w, "Device is not connected")
			return
		}
		BadGateway(w, "Command delivery failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, okResponse(commandResponse{
		IMEI:   imei,
		Kind:   string(cmd.Kind),
		Serial: serial,
	}))
}

func buildCommand(req commandRequest) (*gt06.Command, bool) {
	switch gt06.CommandKind(req.Kind) {
	case gt06.CommandImmobilize:
		return &gt06.Command{Kind: gt06.CommandImmobilize, Enable: req.Enable}, true
	case gt06.CommandSiren:
		return &gt06.Command{Kind: gt06.CommandSiren, Enable: req.Enable}, true
	case gt06.CommandLocate:
		return &gt06.Command{Kind: gt06.CommandLocate}, true
	case gt06.CommandGeneric:
		if req.Text == "" {
			return nil, false
		}
		return &gt06.Command{Kind: gt06.CommandGeneric, Text: req.Text}, true
	default:
		return nil, false
	}
}
