// Command navsim replays a drive along a route through the navigation
// engine and prints every event. It can also mint access tokens for manual
// calls against navd.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/breatheroute/navcore/internal/auth"
	"github.com/breatheroute/navcore/internal/config"
	"github.com/breatheroute/navcore/internal/engine"
	"github.com/breatheroute/navcore/internal/export"
	"github.com/breatheroute/navcore/internal/format"
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/internal/routing/valhalla"
	"github.com/breatheroute/navcore/pkg/geodesic"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("NAVCORE_CONFIG"), "path to the YAML config file")
		routeFile  = flag.String("route", "", "Valhalla route JSON file to replay")
		from       = flag.String("from", "", "origin as lat,lon when fetching a route")
		to         = flag.String("to", "", "destination as lat,lon when fetching a route")
		costing    = flag.String("costing", "auto", "costing for fetched routes")
		lang       = flag.String("lang", "en-US", "language of formatted distances")
		step       = flag.Float64("step", 10, "meters between simulated fixes")
		offset     = flag.Float64("offset", 0, "lateral offset of fixes in meters, positive to the right")
		kmlPath    = flag.String("kml", "", "write the route and snapped trail to this KML file")
		dump       = flag.Bool("dump", false, "print the parsed instructions")
		token      = flag.String("token", "", "mint an access token for this user ID and exit")
		verbose    = flag.Bool("v", false, "log engine state changes")
	)
	flag.Parse()

	if err := run(runOptions{
		configPath: *configPath,
		routeFile:  *routeFile,
		from:       *from,
		to:         *to,
		costing:    *costing,
		lang:       *lang,
		step:       *step,
		offset:     *offset,
		kmlPath:    *kmlPath,
		dump:       *dump,
		token:      *token,
		verbose:    *verbose,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "navsim:", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configPath string
	routeFile  string
	from, to   string
	costing    string
	lang       string
	step       float64
	offset     float64
	kmlPath    string
	dump       bool
	token      string
	verbose    bool
}

func run(opts runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if opts.token != "" {
		return mintToken(cfg, opts.token)
	}

	logger := zerolog.Nop()
	if opts.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	r, err := loadRoute(cfg, opts, logger)
	if err != nil {
		return err
	}

	if opts.dump {
		instructions := make([]route.Instruction, 0, len(r.Instructions()))
		for _, in := range r.Instructions() {
			instructions = append(instructions, *in)
		}
		pretty.Println(instructions)
	}

	f := format.ForLocale(language.Make(opts.lang))
	if r.Units() == route.Miles {
		f = f.WithSystem(format.Imperial)
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.ApproachRadius = cfg.Engine.ApproachRadius
	engineCfg.AlertRadius = cfg.Engine.AlertRadius
	engineCfg.DestinationRadius = cfg.Engine.DestinationRadius
	engineCfg.Logger = logger

	fmt.Printf("route: %s over %d instructions\n", f.Format(r.TotalDistance(), false), len(r.Instructions()))
	res, err := replay{Step: opts.step, Offset: opts.offset, Formatter: f, Engine: engineCfg}.run(r, os.Stdout)
	if err != nil {
		return err
	}

	if opts.kmlPath != "" {
		return writeKML(opts.kmlPath, r, res.Trail)
	}
	return nil
}

func mintToken(cfg *config.Config, userID string) error {
	svc := auth.NewService(auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		Expiry:     cfg.Auth.TokenTTL,
	}))
	tok, err := svc.IssueToken(userID)
	if err != nil {
		return err
	}
	fmt.Println(tok.AccessToken)
	fmt.Fprintf(os.Stderr, "expires at %s\n", tok.ExpiresAt.Format(time.RFC3339))
	return nil
}

func loadRoute(cfg *config.Config, opts runOptions, logger zerolog.Logger) (*route.Route, error) {
	if opts.routeFile != "" {
		data, err := os.ReadFile(opts.routeFile)
		if err != nil {
			return nil, err
		}
		return route.Parse(data)
	}

	if opts.from == "" || opts.to == "" {
		return nil, errors.New("either -route or both -from and -to are required")
	}
	origin, err := parseLatLon(opts.from)
	if err != nil {
		return nil, fmt.Errorf("-from: %w", err)
	}
	dest, err := parseLatLon(opts.to)
	if err != nil {
		return nil, fmt.Errorf("-to: %w", err)
	}

	svc := routing.NewService(routing.ServiceConfig{
		Provider: valhalla.NewClient(valhalla.ClientConfig{
			BaseURL: cfg.Routing.Valhalla.BaseURL,
			APIKey:  cfg.Routing.Valhalla.APIKey,
			Timeout: cfg.Routing.Timeout,
			Logger:  logger,
		}),
		Logger:   logger,
		CacheTTL: -1,
	})

	c, err := routing.ParseCosting(opts.costing)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Routing.Timeout)
	defer cancel()

	doc, err := svc.GetRoute(ctx, routing.Request{
		Locations: []routing.Location{origin, dest},
		Costing:   c,
		Language:  opts.lang,
	})
	if err != nil {
		return nil, err
	}
	return route.New(doc)
}

func parseLatLon(s string) (routing.Location, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return routing.Location{}, fmt.Errorf("expected lat,lon, got %q", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return routing.Location{}, err
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return routing.Location{}, err
	}
	return routing.Location{Lat: la, Lon: lo}, nil
}

func writeKML(path string, r *route.Route, trail []geodesic.Location) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc := export.Route{Name: "navsim", Shape: r.Geometry(), Trail: trail}
	for _, in := range r.Instructions() {
		doc.Instructions = append(doc.Instructions, *in)
	}
	if err := export.Write(f, doc); err != nil {
		return err
	}
	return f.Close()
}
