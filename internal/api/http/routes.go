package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kelvins/geocoder"

	"github.com/krushirakshak/crop-advisory/internal/dashboard"
	"github.com/krushirakshak/crop-advisory/internal/ndvi"
	"github.com/krushirakshak/crop-advisory/internal/weather"
)

var validate = validator.New()

// Deps are the collaborators the HTTP handlers delegate to.
type Deps struct {
	Composer *dashboard.Composer
	Pipeline *ndvi.Pipeline

	// GeocodingEnabled gates free-text location resolution; it requires the
	// geocoder API key to be configured.
	GeocodingEnabled bool
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	fusionGroup := app.Group("/fusion")

	fusionGroup.Get("/dashboard", func(c *fiber.Ctx) error {
		req, err := parseDashboardQuery(c, deps.GeocodingEnabled)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		dash, err := deps.Composer.Compose(c.Context(), req)
		if err != nil {
			if errors.Is(err, dashboard.ErrUnknownCrop) {
				return fiber.NewError(fiber.StatusBadRequest, "unknown crop: "+req.Crop)
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to compose dashboard")
		}
		return c.JSON(dash)
	})

	fusionGroup.Get("/advisory/:crop", func(c *fiber.Ctx) error {
		crop := c.Params("crop")

		var q coordQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		advisory, err := deps.Composer.Advisory(
			c.Context(), crop, c.Query("state"), c.Query("district"),
			weather.Location{Lat: q.Latitude, Lon: q.Longitude},
		)
		if err != nil {
			if errors.Is(err, dashboard.ErrUnknownCrop) {
				return fiber.NewError(fiber.StatusBadRequest, "unknown crop: "+crop)
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to build advisory")
		}
		return c.JSON(advisory)
	})

	api := app.Group("/api/ndvi")

	api.Post("/run", func(c *fiber.Ctx) error {
		var req ndviRunRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := deps.Pipeline.Run(c.Context(), req.Lat, req.Lon, req.Radius)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "ndvi computation failed")
		}
		return c.JSON(result)
	})

	api.Get("/timeseries", func(c *fiber.Ctx) error {
		var q coordQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		days := deps.Pipeline.WindowDays()
		if daysStr := c.Query("days"); daysStr != "" {
			parsed, err := strconv.Atoi(daysStr)
			if err != nil || parsed < 1 || parsed > 30 {
				return fiber.NewError(fiber.StatusBadRequest, "days must be an integer between 1 and 30")
			}
			days = parsed
		}

		points, err := deps.Pipeline.RawSeries(c.Context(), q.Latitude, q.Longitude, days)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "ndvi timeseries unavailable")
		}

		series := make([]fiber.Map, 0, len(points))
		for _, p := range points {
			series = append(series, fiber.Map{
				"date": p.Date.Format("2006-01-02"),
				"mean": p.Mean,
			})
		}

		return c.JSON(fiber.Map{
			"location":   fiber.Map{"lat": q.Latitude, "lon": q.Longitude},
			"range_days": days,
			"ndvi":       series,
		})
	})
}

// coordQuery holds validated latitude/longitude query parameters.
type coordQuery struct {
	Latitude  float64 `validate:"min=-90,max=90"`
	Longitude float64 `validate:"min=-180,max=180"`
}

func (q *coordQuery) bind(c *fiber.Ctx) error {
	latStr := c.Query("latitude", c.Query("lat"))
	lonStr := c.Query("longitude", c.Query("lon"))
	if latStr == "" || lonStr == "" {
		return errors.New("latitude and longitude query parameters are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return errors.New("invalid latitude")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return errors.New("invalid longitude")
	}

	q.Latitude = lat
	q.Longitude = lon
	return validate.Struct(q)
}

// ndviRunRequest is the body of POST /api/ndvi/run. Radius is in meters.
type ndviRunRequest struct {
	Lat    float64 `json:"lat" validate:"min=-90,max=90"`
	Lon    float64 `json:"lon" validate:"min=-180,max=180"`
	Radius float64 `json:"radius" validate:"gt=0,lte=5000"`
}

// parseDashboardQuery accepts either explicit coordinates or a free-text
// location resolved through the geocoder.
func parseDashboardQuery(c *fiber.Ctx, geocodingEnabled bool) (dashboard.Request, error) {
	req := dashboard.Request{
		Crop:     c.Query("crop"),
		State:    c.Query("state"),
		District: c.Query("district"),
	}

	latStr := c.Query("latitude", c.Query("lat"))
	lonStr := c.Query("longitude", c.Query("lon"))

	switch {
	case latStr != "" && lonStr != "":
		var q coordQuery
		if err := q.bind(c); err != nil {
			return req, err
		}
		req.Location = weather.Location{Lat: q.Latitude, Lon: q.Longitude}

	case c.Query("location") != "":
		if !geocodingEnabled {
			return req, errors.New("free-text location lookup is not configured; pass latitude and longitude")
		}
		loc, err := geocoder.Geocoding(geocoder.Address{
			City:     c.Query("location"),
			State:    req.State,
			District: req.District,
		})
		if err != nil {
			return req, errors.New("could not resolve location: " + err.Error())
		}
		req.Location = weather.Location{Lat: loc.Latitude, Lon: loc.Longitude}

	default:
		return req, errors.New("latitude/longitude or location query parameters are required")
	}

	return req, nil
}
