package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/breatheroute/navcore/internal/engine"
	"github.com/breatheroute/navcore/internal/format"
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/internal/telemetry"
	"github.com/breatheroute/navcore/pkg/geodesic"
)

// Default session settings.
const (
	DefaultIdleTTL         = 30 * time.Minute
	DefaultRerouteCooldown = 10 * time.Second
	DefaultRerouteTimeout  = 15 * time.Second
)

// RouteFetcher delivers routes through the routing callback contract.
// *routing.Service implements it.
type RouteFetcher interface {
	Fetch(ctx context.Context, req routing.Request, cb routing.Callback)
}

var _ RouteFetcher = (*routing.Service)(nil)

// Config configures the session service.
type Config struct {
	Fetcher    RouteFetcher
	Repository Repository

	// Engine holds the radii and milestones of every session engine.
	Engine engine.Config

	// IdleTTL is how long a session survives without fixes.
	IdleTTL time.Duration

	// Reroute enables automatic route recalculation when a session is lost.
	Reroute bool
	// RerouteCooldown is the minimum time between two recalculations of a session.
	RerouteCooldown time.Duration
	// RerouteTimeout bounds one recalculation.
	RerouteTimeout time.Duration

	// MaxPerOwner caps the sessions one owner may hold. Zero means no cap.
	MaxPerOwner int

	Metrics *telemetry.NavigationMetrics
	Logger  zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// navigator is the live part of a session. Every field is guarded by mu.
type navigator struct {
	mu        sync.Mutex
	route     *route.Route
	engine    *engine.Engine
	rec       *recorder
	formatter format.Formatter

	lastFix     time.Time
	hasFix      bool
	rerouting   bool
	lastReroute time.Time
	reroutes    int
	completed   bool
	closed      bool
}

// Service manages navigation sessions.
type Service struct {
	cfg    Config
	repo   Repository
	logger zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewService creates a new session service.
func NewService(cfg Config) *Service {
	if cfg.Repository == nil {
		cfg.Repository = NewInMemoryRepository()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.RerouteCooldown <= 0 {
		cfg.RerouteCooldown = DefaultRerouteCooldown
	}
	if cfg.RerouteTimeout <= 0 {
		cfg.RerouteTimeout = DefaultRerouteTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:    cfg,
		repo:   cfg.Repository,
		logger: cfg.Logger.With().Str("component", "session").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Create fetches a route for req and starts a session on it for owner.
// Without explicit units the request takes the unit system of its language.
func (s *Service) Create(ctx context.Context, owner string, req routing.Request) (*Status, error) {
	if s.cfg.MaxPerOwner > 0 {
		existing, err := s.repo.List(ctx, owner)
		if err != nil {
			return nil, err
		}
		if len(existing) >= s.cfg.MaxPerOwner {
			return nil, ErrTooManySessions
		}
	}

	req, formatter := localize(req)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r, err := s.fetchRoute(ctx, req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	engineCfg := s.cfg.Engine
	engineCfg.Logger = s.logger.With().Str("session_id", id).Logger()

	n := &navigator{
		route:     r,
		engine:    engine.New(engineCfg),
		rec:       &recorder{},
		formatter: formatter,
	}
	n.engine.SetListener(n.rec)
	if err := n.engine.SetRoute(r); err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	sess := &Session{
		ID:         id,
		Owner:      owner,
		Request:    req,
		CreatedAt:  now,
		LastActive: now,
		nav:        n,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.cfg.Metrics.SessionOpened(ctx)

	s.logger.Info().
		Str("session_id", id).
		Str("owner", owner).
		Str("costing", string(req.Costing)).
		Int("distance_m", r.TotalDistance()).
		Int("instructions", len(r.Instructions())).
		Msg("navigation session created")

	n.mu.Lock()
	defer n.mu.Unlock()
	st := n.status(sess)
	return &st, nil
}

// localize fills the units and language of req and returns the matching
// distance formatter.
func localize(req routing.Request) (routing.Request, format.Formatter) {
	if req.Language == "" {
		req.Language = "en-US"
	}
	f := format.ForLocale(language.Make(req.Language))
	switch req.Units {
	case "":
		req.Units = route.Kilometers
		if f.System == format.Imperial {
			req.Units = route.Miles
		}
	case route.Miles:
		f = f.WithSystem(format.Imperial)
	default:
		f = f.WithSystem(format.Metric)
	}
	return req, f
}

// fetchRoute waits for the callback of one Fetch.
func (s *Service) fetchRoute(ctx context.Context, req routing.Request) (*route.Route, error) {
	type outcome struct {
		route  *route.Route
		status int
	}
	done := make(chan outcome, 1)

	s.cfg.Fetcher.Fetch(ctx, req, routing.CallbackFuncs{
		OnSuccess: func(r *route.Route) { done <- outcome{route: r} },
		OnFailure: func(code int) { done <- outcome{status: code} },
	})

	select {
	case o := <-done:
		if o.route == nil {
			return nil, &RouteError{StatusCode: o.status}
		}
		return o.route, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) load(ctx context.Context, owner, id string) (*Session, error) {
	sess, err := s.repo.GetByOwnerAndID(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if sess.nav == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// PushFix feeds one fix to a session.
func (s *Service) PushFix(ctx context.Context, owner, id string, fix Fix) (*FixResult, error) {
	return s.PushFixes(ctx, owner, id, []Fix{fix})
}

// PushFixes feeds fixes to a session in order and returns the events they
// produced together with the resulting status. The batch is rejected as a
// whole when a fix is invalid or older than the fix before it. A fix without
// a timestamp is taken as received now.
func (s *Service) PushFixes(ctx context.Context, owner, id string, fixes []Fix) (*FixResult, error) {
	if len(fixes) == 0 {
		return nil, ErrNoFixes
	}
	sess, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()

	n := sess.nav
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	prev, hasPrev := n.lastFix, n.hasFix
	for i := range fixes {
		if !fixes[i].Valid() {
			n.mu.Unlock()
			return nil, ErrInvalidFix
		}
		if fixes[i].Timestamp.IsZero() {
			fixes[i].Timestamp = now
		}
		if hasPrev && fixes[i].Timestamp.Before(prev) {
			n.mu.Unlock()
			return nil, ErrStaleFix
		}
		prev, hasPrev = fixes[i].Timestamp, true
	}

	for _, fix := range fixes {
		if err := n.engine.OnLocationChanged(fix.Location()); err != nil {
			n.mu.Unlock()
			return nil, err
		}
		s.cfg.Metrics.RecordFix(ctx, n.engine.State() != engine.StateLost)
	}
	n.lastFix, n.hasFix = prev, true

	if n.rec.completed && !n.completed {
		n.completed = true
		s.cfg.Metrics.RecordCompleted(ctx)
		s.logger.Info().Str("session_id", id).Msg("route completed")
	}

	var reroute *routing.Request
	if fix, lost := n.rec.takeRecalculate(); lost && s.shouldReroute(n, now) {
		n.rerouting = true
		n.lastReroute = now
		req := rerouteRequest(sess.Request, fix)
		reroute = &req
	}

	sess.LastActive = now
	result := &FixResult{Events: n.rec.drain(), Status: n.status(sess)}
	n.mu.Unlock()

	if err := s.repo.Touch(ctx, id, now); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	if reroute != nil {
		s.startReroute(id, n, *reroute)
	}
	return result, nil
}

func (s *Service) shouldReroute(n *navigator, now time.Time) bool {
	if !s.cfg.Reroute || n.rerouting {
		return false
	}
	return n.lastReroute.IsZero() || now.Sub(n.lastReroute) >= s.cfg.RerouteCooldown
}

// rerouteRequest asks for a route from the lost fix to the final destination.
func rerouteRequest(orig routing.Request, fix geodesic.Location) routing.Request {
	origin := routing.Location{Lat: fix.Lat, Lon: fix.Lon}
	if fix.HasBearing {
		heading := int(math.Round(fix.Bearing)) % 360
		origin.Heading = &heading
	}
	return routing.Request{
		Locations: []routing.Location{origin, orig.Destination()},
		Costing:   orig.Costing,
		Units:     orig.Units,
		Language:  orig.Language,
	}
}

func (s *Service) startReroute(id string, n *navigator, req routing.Request) {
	s.logger.Info().Str("session_id", id).Msg("recalculating route")

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RerouteTimeout)
	s.inflight.Add(1)
	s.cfg.Fetcher.Fetch(ctx, req, routing.CallbackFuncs{
		OnSuccess: func(r *route.Route) {
			defer s.inflight.Done()
			defer cancel()
			s.installRoute(ctx, id, n, r)
		},
		OnFailure: func(code int) {
			defer s.inflight.Done()
			defer cancel()
			s.rerouteFailed(ctx, id, n, code)
		},
	})
}

// installRoute replaces the route of a session that is still lost. A session
// that found its way back in the meantime keeps its route.
func (s *Service) installRoute(ctx context.Context, id string, n *navigator, r *route.Route) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.rerouting = false
	s.cfg.Metrics.RecordReroute(ctx, true)
	if n.closed {
		return
	}
	if n.engine.State() != engine.StateLost {
		s.logger.Debug().Str("session_id", id).Msg("back on route, discarding recalculated route")
		return
	}

	n.route = r
	n.completed = false
	n.rec.completed = false
	if err := n.engine.SetRoute(r); err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Msg("failed to install recalculated route")
		return
	}
	n.reroutes++
	n.rec.add(Event{Type: EventRerouted})

	s.logger.Info().
		Str("session_id", id).
		Int("distance_m", r.TotalDistance()).
		Int("reroutes", n.reroutes).
		Msg("route recalculated")
}

func (s *Service) rerouteFailed(ctx context.Context, id string, n *navigator, code int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.rerouting = false
	s.cfg.Metrics.RecordReroute(ctx, false)
	if n.closed {
		return
	}
	n.rec.add(Event{Type: EventRerouteFailed, StatusCode: code})
	s.logger.Warn().Str("session_id", id).Int("status", code).Msg("route recalculation failed")
}

// Get returns the status of a session.
func (s *Service) Get(ctx context.Context, owner, id string) (*Status, error) {
	sess, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	n := sess.nav
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrSessionNotFound
	}
	st := n.status(sess)
	return &st, nil
}

// List returns the status of every session of owner, oldest first.
func (s *Service) List(ctx context.Context, owner string) ([]Status, error) {
	sessions, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(sessions))
	for _, sess := range sessions {
		if sess.nav == nil {
			continue
		}
		sess.nav.mu.Lock()
		if !sess.nav.closed {
			statuses = append(statuses, sess.nav.status(sess))
		}
		sess.nav.mu.Unlock()
	}
	return statuses, nil
}

// Instructions returns the instructions of a session's current route.
func (s *Service) Instructions(ctx context.Context, owner, id string) ([]InstructionView, error) {
	sess, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	n := sess.nav
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrSessionNotFound
	}

	instructions := n.route.Instructions()
	views := make([]InstructionView, 0, len(instructions))
	for _, in := range instructions {
		views = append(views, n.view(in))
	}
	return views, nil
}

// MarkSeen records that a client displayed an instruction.
func (s *Service) MarkSeen(ctx context.Context, owner, id string, index int) error {
	sess, err := s.load(ctx, owner, id)
	if err != nil {
		return err
	}
	n := sess.nav
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrSessionNotFound
	}
	if index < 0 || index >= len(n.route.Instructions()) {
		return ErrUnknownInstruction
	}
	n.route.AddSeenInstruction(index)
	return nil
}

// Track returns the geometry, instructions and snapped trail of a session.
func (s *Service) Track(ctx context.Context, owner, id string) (*Track, error) {
	sess, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	n := sess.nav
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrSessionNotFound
	}

	instructions := n.route.Instructions()
	track := &Track{
		Name:         routeName(sess.Request),
		Shape:        n.route.Geometry(),
		Instructions: make([]route.Instruction, 0, len(instructions)),
		Trail:        append([]geodesic.Location(nil), n.rec.trail...),
	}
	for _, in := range instructions {
		cpy := *in
		cpy.StreetNames = append([]string(nil), in.StreetNames...)
		track.Instructions = append(track.Instructions, cpy)
	}
	return track, nil
}

func routeName(req routing.Request) string {
	if name := req.Destination().Name; name != "" {
		return name
	}
	d := req.Destination()
	return geodesic.NewLocation(d.Lat, d.Lon).String()
}

// Delete ends a session.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	sess, err := s.load(ctx, owner, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, sess, "deleted")
}

func (s *Service) remove(ctx context.Context, sess *Session, reason string) error {
	n := sess.nav
	n.mu.Lock()
	wasOpen := !n.closed
	n.closed = true
	n.mu.Unlock()

	if err := s.repo.Delete(ctx, sess.ID); err != nil {
		return err
	}
	if wasOpen {
		s.cfg.Metrics.SessionClosed(ctx)
		s.logger.Info().Str("session_id", sess.ID).Str("reason", reason).Msg("navigation session ended")
	}
	return nil
}

// ExpireIdle ends every session without activity for longer than the idle
// TTL and returns how many were ended.
func (s *Service) ExpireIdle(ctx context.Context, now time.Time) (int, error) {
	idle, err := s.repo.IdleSince(ctx, now.Add(-s.cfg.IdleTTL))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sess := range idle {
		if sess.nav == nil {
			continue
		}
		if err := s.remove(ctx, sess, "idle"); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// Count returns the number of live sessions.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Close cancels pending recalculations and waits for their callbacks.
func (s *Service) Close() {
	s.cancel()
	s.inflight.Wait()
}

// status builds the snapshot of a session. Callers hold n.mu.
func (n *navigator) status(sess *Session) Status {
	r := n.route
	st := Status{
		SessionID:       sess.ID,
		State:           n.engine.State().String(),
		Units:           r.Units(),
		CurrentLeg:      r.CurrentLeg(),
		TotalDistance:   r.TotalDistance(),
		Travelled:       r.TotalDistanceTravelled(),
		Lost:            r.IsLost(),
		RotationBearing: r.CurrentRotationBearing(),
		Rerouting:       n.rerouting,
		Reroutes:        n.reroutes,
		CreatedAt:       sess.CreatedAt,
		LastActive:      sess.LastActive,
	}

	if n.engine.State() != engine.StateComplete {
		st.DistanceToNext = max(r.DistanceToNextInstruction(), 0)
		st.RemainingDistance = max(r.RemainingDistanceToDestination(), 0)
	}
	st.DistanceToNextText = n.formatter.Format(st.DistanceToNext, true)
	st.RemainingDistanceText = n.formatter.Format(st.RemainingDistance, false)

	if in := r.CurrentInstruction(); in != nil {
		v := n.view(in)
		st.CurrentInstruction = &v
	}
	if in := r.NextInstruction(); in != nil {
		v := n.view(in)
		st.NextInstruction = &v
	}
	return st
}

func (n *navigator) view(in *route.Instruction) InstructionView {
	live := max(in.LiveDistanceToNext, 0)
	streets := in.StreetNames
	if streets == nil {
		streets = []string{}
	}
	return InstructionView{
		Index:            in.Index,
		Turn:             in.Turn.String(),
		Text:             in.Text,
		StreetNames:      streets,
		Distance:         in.Distance,
		DistanceText:     n.formatter.Format(in.Distance, false),
		LiveDistance:     live,
		LiveDistanceText: n.formatter.Format(live, true),
		Bearing:          in.Bearing,
		Location:         Point{Lat: in.Location.Lat, Lon: in.Location.Lon},
		Seen:             n.route.HasSeenInstruction(in.Index),
	}
}
