package httpapi

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/teleconnection-forecast/internal/common"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *teleconnection.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/options", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"model_runs": teleconnection.ModelRuns,
			"indices":    teleconnection.Indices,
		})
	})

	v1.Post("/plot", func(c *fiber.Ctx) error {
		req, err := bindBody(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := service.Plot(c.UserContext(), req)
		if err != nil {
			return pipelineError(c, err, result.Failures)
		}

		return c.JSON(fiber.Map{
			"request_id": result.RequestID,
			"date":       result.Date,
			"index":      req.Index,
			"model_run":  req.Run,
			"models":     result.Dataset.Models(),
			"image":      base64.StdEncoding.EncodeToString(result.Image),
			"failures":   failureViews(result.Failures),
		})
	})

	v1.Get("/plot.png", func(c *fiber.Ctx) error {
		req, err := bindQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := service.Plot(c.UserContext(), req)
		if err != nil {
			return pipelineError(c, err, result.Failures)
		}

		if len(result.Failures) > 0 {
			failed := make([]string, 0, len(result.Failures))
			for _, f := range result.Failures {
				failed = append(failed, f.Query.Model)
			}
			c.Set("X-Failed-Models", strings.Join(failed, ","))
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(result.Image)
	})

	v1.Get("/series", func(c *fiber.Ctx) error {
		req, err := bindQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ds, failures, err := service.Dataset(c.UserContext(), req)
		if err != nil {
			return pipelineError(c, err, failures)
		}

		series := make([]seriesView, 0, ds.Len())
		ds.Each(func(model string, s teleconnection.ForecastSeries) {
			series = append(series, seriesView{Model: model, Hours: s.Hours, Values: s.Values})
		})

		return c.JSON(fiber.Map{
			"date":     teleconnection.FormatISODate(req.Date),
			"series":   series,
			"failures": failureViews(failures),
		})
	})
}

// plotQuery holds the user inputs for one plot.
type plotQuery struct {
	Models   []string `json:"models" validate:"required,min=1,max=16,dive,required,max=64,excludesall=/?#"`
	Date     string   `json:"date" validate:"required"`
	ModelRun string   `json:"model_run" validate:"required"`
	Index    string   `json:"tindex" validate:"required"`
}

func (q plotQuery) toRequest() (teleconnection.PlotRequest, error) {
	if err := validate.Struct(q); err != nil {
		return teleconnection.PlotRequest{}, err
	}

	date, err := teleconnection.ParseDate(q.Date)
	if err != nil {
		return teleconnection.PlotRequest{}, err
	}
	run, err := teleconnection.ParseModelRun(q.ModelRun)
	if err != nil {
		return teleconnection.PlotRequest{}, err
	}
	idx, err := teleconnection.ParseIndex(q.Index)
	if err != nil {
		return teleconnection.PlotRequest{}, err
	}

	return teleconnection.PlotRequest{
		Models: q.Models,
		Date:   date,
		Run:    run,
		Index:  idx,
	}, nil
}

// bindBody reads a JSON body or form fields. Models may be given as repeated
// "model" fields or a comma-separated "models" field.
func bindBody(c *fiber.Ctx) (teleconnection.PlotRequest, error) {
	var q plotQuery
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEApplicationJSON) {
		if err := c.BodyParser(&q); err != nil {
			return teleconnection.PlotRequest{}, errors.New("invalid JSON body")
		}
		q.Models = common.SplitList(q.Models...)
		return q.toRequest()
	}

	args := c.Request().PostArgs()
	q.Models = multiValues(args.PeekMulti, "model", "models")
	q.Date = c.FormValue("date")
	q.ModelRun = c.FormValue("model_run")
	q.Index = c.FormValue("tindex")
	return q.toRequest()
}

func bindQuery(c *fiber.Ctx) (teleconnection.PlotRequest, error) {
	args := c.Context().QueryArgs()
	q := plotQuery{
		Models:   multiValues(args.PeekMulti, "model", "models"),
		Date:     c.Query("date"),
		ModelRun: c.Query("model_run"),
		Index:    c.Query("tindex"),
	}
	return q.toRequest()
}

func multiValues(peek func(key string) [][]byte, keys ...string) []string {
	var raw []string
	for _, k := range keys {
		for _, v := range peek(k) {
			raw = append(raw, string(v))
		}
	}
	return common.SplitList(raw...)
}

// pipelineError maps service errors onto HTTP responses.
func pipelineError(c *fiber.Ctx, err error, failures []*teleconnection.QueryError) error {
	switch {
	case errors.Is(err, teleconnection.ErrInvalidRequest):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, teleconnection.ErrNoSeries):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    true,
			"message":  teleconnection.ErrNoSeries.Error(),
			"failures": failureViews(failures),
		})
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to build forecast plot")
	}
}

type seriesView struct {
	Model  string    `json:"model"`
	Hours  []int     `json:"hours"`
	Values []float64 `json:"values"`
}

type failureView struct {
	Model  string `json:"model"`
	Kind   string `json:"kind"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error"`
}

func failureViews(failures []*teleconnection.QueryError) []failureView {
	out := make([]failureView, 0, len(failures))
	for _, f := range failures {
		out = append(out, failureView{
			Model:  f.Query.Model,
			Kind:   f.Kind(),
			Status: f.StatusCode(),
			Error:  f.Err.Error(),
		})
	}
	return out
}

// ErrorHandler renders errors returned by handlers as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
