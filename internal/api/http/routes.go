package httpapi

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ksolden/weather-market-gateway/internal/bundle"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *bundle.Service, cities []bundle.City, authenticated bool) {
	codes := make([]string, 0, len(cities))
	for _, c := range cities {
		codes = append(codes, c.Code)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":        "ok",
			"authenticated": authenticated,
			"cities":        codes,
		})
	})

	app.Get("/bundle", func(c *fiber.Ctx) error {
		var req bundleQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		selected := selectCities(cities, req.Cities)
		if len(selected) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "no valid city codes requested")
		}

		envelope := bundle.Envelope{
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			RequestID:   uuid.NewString(),
			TargetDate:  req.Date,
			Cities:      make(map[string]bundle.CityBundle, len(selected)),
			Errors:      []bundle.CityError{},
		}

		// Cities run one after another on purpose: the per-city market
		// fetches already saturate the exchange rate limit.
		for _, city := range selected {
			cb, err := buildSafe(c.UserContext(), service, city, req.Date)
			if err != nil {
				log.Printf("bundle %s: city %s failed: %v", envelope.RequestID, city.Code, err)
				envelope.Errors = append(envelope.Errors, bundle.CityError{
					City:  city.Code,
					Error: err.Error(),
				})
				envelope.Cities[city.Code] = bundle.PlaceholderBundle(city)
				continue
			}
			envelope.Cities[city.Code] = cb
		}

		return c.JSON(envelope)
	})

	// Unknown paths fall through to the app's JSON error body.
	app.Use(func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})
}

// buildSafe converts a panicking orchestration into an error so one city
// cannot take down the whole response.
func buildSafe(ctx context.Context, service *bundle.Service, city bundle.City, date string) (cb bundle.CityBundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("city bundle panicked: %v", r)
		}
	}()
	return service.BuildCityBundle(ctx, city, date), nil
}

// bundleQuery holds query parameters for the bundle endpoint.
type bundleQuery struct {
	Date   string `validate:"required,datetime=2006-01-02"`
	Cities string
}

func (q *bundleQuery) bind(c *fiber.Ctx) error {
	q.Date = c.Query("date")
	q.Cities = c.Query("cities")

	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("date must be provided as YYYY-MM-DD")
	}
	return nil
}

// selectCities filters the configured cities by a comma-separated,
// case-insensitive code list. Unknown codes are dropped silently; an absent
// parameter selects every configured city, while a present one that resolves
// to no codes selects none.
func selectCities(cities []bundle.City, param string) []bundle.City {
	if param == "" {
		return cities
	}

	wanted := make(map[string]bool)
	for _, code := range strings.Split(param, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			wanted[code] = true
		}
	}

	var selected []bundle.City
	for _, city := range cities {
		if wanted[city.Code] {
			selected = append(selected, city)
		}
	}
	return selected
}
