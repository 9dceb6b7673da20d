package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/breatheroute/navcore/internal/api/models"
	"github.com/breatheroute/navcore/internal/api/response"
	"github.com/breatheroute/navcore/internal/export"
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/internal/session"
)

// maxBodyBytes bounds request bodies. A full fix batch fits comfortably.
const maxBodyBytes = 1 << 20

// rateLimitRetryAfter is sent with 429s caused by the routing provider.
const rateLimitRetryAfter = 60

// SessionService is the session surface the API drives.
// *session.Service implements it.
type SessionService interface {
	Create(ctx context.Context, owner string, req routing.Request) (*session.Status, error)
	Get(ctx context.Context, owner, id string) (*session.Status, error)
	List(ctx context.Context, owner string) ([]session.Status, error)
	Instructions(ctx context.Context, owner, id string) ([]session.InstructionView, error)
	MarkSeen(ctx context.Context, owner, id string, index int) error
	PushFixes(ctx context.Context, owner, id string, fixes []session.Fix) (*session.FixResult, error)
	Track(ctx context.Context, owner, id string) (*session.Track, error)
	Delete(ctx context.Context, owner, id string) error
}

var _ SessionService = (*session.Service)(nil)

// SessionHandler handles the navigation session endpoints.
type SessionHandler struct {
	sessions SessionService
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateSession handles POST /v1/sessions - fetch a route and start navigating it.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input models.CreateSessionRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := models.Validate(input); errs != nil {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	req := toRoutingRequest(input, r.Header.Get("Accept-Language"))
	st, err := h.sessions.Create(r.Context(), owner(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, r, "/v1/sessions/"+st.SessionID, st)
}

// ListSessions handles GET /v1/sessions - the caller's sessions, oldest first.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.sessions.List(r.Context(), owner(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.SessionList{Items: statuses, Count: len(statuses)})
}

// GetSession handles GET /v1/sessions/{sessionID} - status snapshot.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Get(r.Context(), owner(r), sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	response.JSON(w, r, http.StatusOK, st)
}

// GetInstructions handles GET /v1/sessions/{sessionID}/instructions.
func (h *SessionHandler) GetInstructions(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	views, err := h.sessions.Instructions(r.Context(), owner(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.InstructionList{SessionID: id, Items: views})
}

// MarkInstructionSeen handles POST /v1/sessions/{sessionID}/instructions/{index}/seen.
func (h *SessionHandler) MarkInstructionSeen(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		response.BadRequest(w, r, "instruction index must be an integer", []models.FieldError{
			{Field: "index", Message: "must be an integer", Code: "INVALID_VALUE"},
		})
		return
	}

	err = h.sessions.MarkSeen(r.Context(), owner(r), sessionID(r), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// PushFixes handles POST /v1/sessions/{sessionID}/fixes. The body is either
// one fix object or {"fixes": [...]}.
func (h *SessionHandler) PushFixes(w http.ResponseWriter, r *http.Request) {
	batch, err := decodeFixes(w, r)
	if err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := models.Validate(batch); errs != nil {
		response.BadRequest(w, r, "fix validation failed", errs)
		return
	}

	now := h.now()
	fixes := make([]session.Fix, 0, len(batch.Fixes))
	for _, in := range batch.Fixes {
		fixes = append(fixes, toFix(in, now))
	}

	result, err := h.sessions.PushFixes(r.Context(), owner(r), sessionID(r), fixes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// ExportKML handles GET /v1/sessions/{sessionID}/route.kml.
func (h *SessionHandler) ExportKML(w http.ResponseWriter, r *http.Request) {
	track, err := h.sessions.Track(r.Context(), owner(r), sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, export.Route(*track)); err != nil {
		h.logger.Error().Err(err).Msg("failed to render KML")
		response.InternalError(w, r, "failed to render route")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="route.kml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// DeleteSession handles DELETE /v1/sessions/{sessionID}.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), owner(r), sessionID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// writeError maps session and routing errors to problem responses.
func (h *SessionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var routeErr *session.RouteError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		response.NotFound(w, r, "session not found")
	case errors.Is(err, session.ErrStaleFix):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, session.ErrInvalidFix), errors.Is(err, session.ErrNoFixes),
		errors.Is(err, session.ErrUnknownInstruction):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, routing.ErrInvalidCoordinates), errors.Is(err, routing.ErrInvalidRequest):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, session.ErrTooManySessions):
		response.TooManyRequests(w, r, "too many active sessions; end one before starting another", 0)
	case errors.As(err, &routeErr):
		h.writeRouteError(w, r, routeErr)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request cancelled before a route was found")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("session request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func (h *SessionHandler) writeRouteError(w http.ResponseWriter, r *http.Request, err *session.RouteError) {
	switch code := err.StatusCode; {
	case code == routing.StatusNoRoute:
		response.NoRoute(w, r, err.Error())
	case code == routing.StatusInvalidRequest:
		response.BadRequest(w, r, err.Error(), nil)
	case code == routing.StatusRateLimited:
		response.TooManyRequests(w, r, err.Error(), rateLimitRetryAfter)
	case code == routing.StatusUnavailable, code == routing.StatusCancelled:
		response.ServiceUnavailable(w, r, err.Error())
	default:
		h.logger.Warn().Int("status_code", code).Msg("routing provider failed")
		response.BadGateway(w, r, fmt.Sprintf("%s (status %d)", err.Error(), code))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeFixes reads a single fix or a batch.
func decodeFixes(w http.ResponseWriter, r *http.Request) (models.FixBatchRequest, error) {
	var batch models.FixBatchRequest
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return batch, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return batch, err
	}
	if _, ok := fields["fixes"]; ok {
		err = json.Unmarshal(data, &batch)
		return batch, err
	}

	var single models.FixInput
	if err := json.Unmarshal(data, &single); err != nil {
		return batch, err
	}
	batch.Fixes = []models.FixInput{single}
	return batch, nil
}

// toRoutingRequest converts the API body. Without an explicit language the
// first Accept-Language tag is used.
func toRoutingRequest(in models.CreateSessionRequest, acceptLanguage string) routing.Request {
	locations := make([]routing.Location, 0, len(in.Via)+2)
	locations = append(locations, toLocation(*in.Origin))
	for _, via := range in.Via {
		locations = append(locations, toLocation(via))
	}
	locations = append(locations, toLocation(*in.Destination))

	lang := in.Language
	if lang == "" && acceptLanguage != "" {
		if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(tags) > 0 {
			lang = tags[0].String()
		}
	}

	return routing.Request{
		Locations: locations,
		Costing:   routing.Costing(in.Costing),
		Units:     route.Units(in.Units),
		Language:  lang,
	}
}

func toLocation(in models.LocationInput) routing.Location {
	return routing.Location{
		Lat:     in.Lat,
		Lon:     in.Lon,
		Heading: in.Heading,
		Name:    in.Name,
	}
}

func toFix(in models.FixInput, now time.Time) session.Fix {
	ts := now
	if in.Timestamp != nil {
		ts = in.Timestamp.Time()
	}
	return session.Fix{
		Lat:       in.Lat,
		Lon:       in.Lon,
		Bearing:   in.Bearing,
		Timestamp: ts,
	}
}
