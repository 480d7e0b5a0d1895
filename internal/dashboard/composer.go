// Package dashboard assembles weather, market, alerts and per-crop health
// into one response, fanning out to the underlying services concurrently and
// degrading per section on partial failure.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/krushirakshak/crop-advisory/internal/alerts"
	"github.com/krushirakshak/crop-advisory/internal/fusion"
	"github.com/krushirakshak/crop-advisory/internal/market"
	"github.com/krushirakshak/crop-advisory/internal/ndvi"
	"github.com/krushirakshak/crop-advisory/internal/observability"
	"github.com/krushirakshak/crop-advisory/internal/weather"
)

// ErrUnknownCrop is returned when a crop is not part of the configured crop
// set.
var ErrUnknownCrop = errors.New("unknown crop")

// Request identifies what the dashboard should cover.
type Request struct {
	Crop     string
	State    string
	District string
	Location weather.Location
}

// CropHealth summarizes one crop's advisory for the dashboard.
type CropHealth struct {
	Crop      string   `json:"crop"`
	Priority  string   `json:"priority"`
	RiskScore float64  `json:"risk_score"`
	NDVI      *float64 `json:"ndvi,omitempty"`
}

// Summary carries dashboard-level aggregates.
type Summary struct {
	HighPriorityCount int `json:"high_priority_count"`
}

// Dashboard is the composed response. Sections that could not be populated
// are listed in Unavailable rather than failing the whole response.
type Dashboard struct {
	Weather     *weather.Snapshot     `json:"weather"`
	Market      []market.PriceQuote   `json:"market"`
	Alerts      []alerts.Alert        `json:"alerts"`
	CropHealth  map[string]CropHealth `json:"crop_health"`
	Summary     Summary               `json:"summary"`
	Unavailable []string              `json:"unavailable,omitempty"`
}

// Composer invokes the advisory engine and the time-series pipeline per crop
// and coordinate of interest.
type Composer struct {
	weather *weather.Service
	market  *market.Client
	alerts  *alerts.Client
	ndvi    *ndvi.Pipeline
	rules   *fusion.Store
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
	crops   map[string]struct{}
}

// NewComposer wires the composer. crops is the closed set of crops the
// service can advise on.
func NewComposer(
	ws *weather.Service,
	mc *market.Client,
	ac *alerts.Client,
	np *ndvi.Pipeline,
	rules *fusion.Store,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *slog.Logger,
	crops []string,
) *Composer {
	set := make(map[string]struct{}, len(crops))
	for _, c := range crops {
		set[strings.ToLower(c)] = struct{}{}
	}
	return &Composer{
		weather: ws,
		market:  mc,
		alerts:  ac,
		ndvi:    np,
		rules:   rules,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		crops:   set,
	}
}

// KnownCrop reports whether crop is part of the configured crop set.
func (c *Composer) KnownCrop(crop string) bool {
	_, ok := c.crops[strings.ToLower(crop)]
	return ok
}

// Advisory builds the full advisory for one crop at one coordinate. The
// three observation domains are fetched concurrently; any of them failing
// leaves its features absent rather than failing the advisory.
func (c *Composer) Advisory(ctx context.Context, crop, state, district string, loc weather.Location) (fusion.Advisory, error) {
	if !c.KnownCrop(crop) {
		return fusion.Advisory{}, ErrUnknownCrop
	}

	weatherObs, marketObs, vegObs := c.gatherObservations(ctx, crop, state, district, loc)

	features, sources := fusion.BuildFeatures(weatherObs, marketObs, vegObs, c.clock.Now())

	c.metrics.RuleEvaluations.Inc()
	results := fusion.EvaluateAll(c.rules, features)
	for _, cat := range fusion.CategoryOrder {
		if n := len(results[cat].Fired); n > 0 {
			c.metrics.RulesFired.WithLabelValues(string(cat)).Add(float64(n))
		}
	}

	advisory := fusion.BuildAdvisory(crop, results, sources)
	c.metrics.AdvisoriesBuilt.Inc()
	return advisory, nil
}

func (c *Composer) gatherObservations(ctx context.Context, crop, state, district string, loc weather.Location) (*fusion.WeatherObs, *fusion.MarketObs, *fusion.VegetationObs) {
	var (
		wg         sync.WaitGroup
		weatherObs *fusion.WeatherObs
		marketObs  *fusion.MarketObs
		vegObs     *fusion.VegetationObs
	)

	wg.Add(3)

	go func() {
		defer wg.Done()
		snap, err := c.weather.Current(ctx, loc)
		if err != nil {
			c.logger.Warn("weather unavailable for advisory", "location", loc.Key(), "error", err)
			return
		}
		weatherObs = &fusion.WeatherObs{
			Temperature: snap.Temperature,
			Humidity:    snap.Humidity,
			Rainfall:    snap.Rainfall,
			WindSpeed:   snap.WindSpeed,
			Timestamp:   snap.Timestamp,
		}
	}()

	go func() {
		defer wg.Done()
		quote, err := c.market.Quote(ctx, crop, state, district)
		if err != nil {
			c.logger.Warn("market unavailable for advisory", "crop", crop, "error", err)
			return
		}
		marketObs = &fusion.MarketObs{
			Price:         quote.ModalPrice,
			ChangePercent: quote.ChangePercent,
		}
	}()

	go func() {
		defer wg.Done()
		series, err := c.ndvi.Series(ctx, loc.Lat, loc.Lon)
		if err != nil {
			c.logger.Warn("ndvi unavailable for advisory", "location", loc.Key(), "error", err)
			return
		}
		if len(series) == 0 {
			// Entire window had zero raw points; the vegetation features
			// stay absent.
			return
		}
		points := make([]fusion.SeriesPoint, 0, len(series))
		for _, p := range series {
			points = append(points, fusion.SeriesPoint{Date: p.Date, Mean: p.Mean})
		}
		vegObs = &fusion.VegetationObs{
			Series:     points,
			WindowDays: c.ndvi.WindowDays(),
		}
	}()

	wg.Wait()
	return weatherObs, marketObs, vegObs
}

// Compose builds the full dashboard. Sub-sources run concurrently; any one
// failing marks only its own section unavailable.
func (c *Composer) Compose(ctx context.Context, req Request) (Dashboard, error) {
	if req.Crop != "" && !c.KnownCrop(req.Crop) {
		return Dashboard{}, ErrUnknownCrop
	}

	dash := Dashboard{
		Market:     []market.PriceQuote{},
		Alerts:     []alerts.Alert{},
		CropHealth: make(map[string]CropHealth),
	}

	crops := c.cropsOfInterest(req.Crop)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	markUnavailable := func(section string) {
		mu.Lock()
		dash.Unavailable = append(dash.Unavailable, section)
		mu.Unlock()
		c.metrics.DashboardSectionFailures.WithLabelValues(section).Inc()
	}

	wg.Add(3 + len(crops))

	go func() {
		defer wg.Done()
		snap, err := c.weather.Current(ctx, req.Location)
		if err != nil {
			c.logger.Warn("dashboard weather section unavailable", "error", err)
			markUnavailable("weather")
			return
		}
		mu.Lock()
		dash.Weather = &snap
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		quotes, err := c.market.Quotes(ctx, crops, req.State, req.District)
		if err != nil {
			c.logger.Warn("dashboard market section unavailable", "error", err)
			markUnavailable("market")
			return
		}
		mu.Lock()
		dash.Market = quotes
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		list, err := c.alerts.Fetch(ctx, req.Location.Lat, req.Location.Lon)
		if err != nil {
			c.logger.Warn("dashboard alerts section unavailable", "error", err)
			markUnavailable("alerts")
			return
		}
		mu.Lock()
		dash.Alerts = list
		mu.Unlock()
	}()

	for _, crop := range crops {
		crop := crop
		go func() {
			defer wg.Done()
			advisory, err := c.Advisory(ctx, crop, req.State, req.District, req.Location)
			if err != nil {
				c.logger.Warn("dashboard crop health unavailable", "crop", crop, "error", err)
				markUnavailable("crop_health:" + crop)
				return
			}
			health := healthFromAdvisory(crop, advisory)
			mu.Lock()
			dash.CropHealth[crop] = health
			if advisory.Priority == string(fusion.SeverityHigh) {
				dash.Summary.HighPriorityCount++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	return dash, nil
}

func (c *Composer) cropsOfInterest(requested string) []string {
	if requested != "" {
		return []string{strings.ToLower(requested)}
	}
	crops := make([]string, 0, len(c.crops))
	for crop := range c.crops {
		crops = append(crops, crop)
	}
	// Deterministic output order for the crop_health map's sibling sections.
	sort.Strings(crops)
	return crops
}

func healthFromAdvisory(crop string, advisory fusion.Advisory) CropHealth {
	var risk float64
	for _, cat := range fusion.CategoryOrder {
		if r, ok := advisory.RuleBreakdown[cat]; ok && r.Score > risk {
			risk = r.Score
		}
	}

	health := CropHealth{
		Crop:      crop,
		Priority:  advisory.Priority,
		RiskScore: risk,
	}
	for _, f := range advisory.FiredRules {
		if v, ok := f.Matched[fusion.FeatureNDVI]; ok {
			v := v
			health.NDVI = &v
			break
		}
	}
	return health
}
