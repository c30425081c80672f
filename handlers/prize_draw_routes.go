// handlers/prize_draw_routes.go
package handlers

import (
	"errors"
	"time"

	"loyalty-draw-system/models"
	"loyalty-draw-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const defaultTopLimit = 10

type winningNumberRequest struct {
	Value       string     `json:"value" validate:"required"`
	EffectiveAt *time.Time `json:"effective_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type evaluateRequest struct {
	Mode         string   `json:"mode" validate:"required,oneof=bingo final_day"`
	DefinitionID string   `json:"definition_id" validate:"required_if=Mode final_day"`
	Threshold    *float64 `json:"threshold" validate:"omitempty,gte=0,lte=1"`
}

type reportRequest struct {
	Limit int `json:"limit" validate:"omitempty,gte=1,lte=1000"`
}

func setupPrizeDrawRoutes(app *fiber.App, admin fiber.Router, svc Services) {
	// 📖 Public (gateway-authenticated) reads
	app.Get("/draw-types", func(c *fiber.Ctx) error {
		drawTypes, err := svc.DrawTypes.List(c.UserContext())
		if err != nil {
			return fail(c, "failed to list draw types", err)
		}
		return c.JSON(drawTypes)
	})

	app.Get("/draw-types/:name", func(c *fiber.Ctx) error {
		drawType, err := svc.DrawTypes.GetByInternalName(c.UserContext(), c.Params("name"))
		if err != nil {
			return fail(c, "draw type not found", err)
		}
		return c.JSON(drawType)
	})

	app.Get("/draw-types/:id/winning-number", func(c *fiber.Ctx) error {
		winning, err := svc.DrawTypes.ActiveWinningNumber(c.UserContext(), c.Params("id"), svc.DrawTypes.Now())
		if err != nil {
			return fail(c, "no active winning number", err)
		}
		return c.JSON(winning)
	})

	app.Get("/draw-types/:id/top", func(c *fiber.Ctx) error {
		limit, err := queryLimit(c, defaultTopLimit)
		if err != nil {
			return badRequest(c, err)
		}
		drawType, err := svc.DrawTypes.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, "draw type not found", err)
		}
		results, err := svc.Ranking.SelectTop(c.UserContext(), drawType, nil, limit, c.QueryBool("include_pending", true))
		if err != nil {
			return fail(c, "failed to rank results", err)
		}
		return c.JSON(fiber.Map{"draw_type": drawType.InternalName, "results": results})
	})

	// 🔐 Admin
	admin.Post("/draw-types", func(c *fiber.Ctx) error {
		var req services.DrawTypeInput
		if err := bind(c, &req); err != nil {
			return badRequest(c, err)
		}
		drawType, err := svc.DrawTypes.Create(c.UserContext(), req)
		if err != nil {
			return fail(c, "failed to create draw type", err)
		}
		return c.Status(fiber.StatusCreated).JSON(drawType)
	})

	admin.Post("/draw-types/:id/winning-numbers", func(c *fiber.Ctx) error {
		var req winningNumberRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, err)
		}
		winning, err := svc.DrawTypes.SubmitWinningNumber(c.UserContext(), c.Params("id"), req.Value, req.EffectiveAt, req.ExpiresAt)
		if err != nil {
			return fail(c, "failed to submit winning number", err)
		}
		return c.Status(fiber.StatusCreated).JSON(winning)
	})

	admin.Post("/draw-types/:id/evaluate", func(c *fiber.Ctx) error {
		var req evaluateRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, err)
		}
		ctx := c.UserContext()

		drawType, err := svc.DrawTypes.Get(ctx, c.Params("id"))
		if err != nil {
			return fail(c, "draw type not found", err)
		}
		// Without a winning number results are stored pending and settled later.
		winning, err := svc.DrawTypes.ActiveWinningNumber(ctx, drawType.ID, svc.DrawTypes.Now())
		if err != nil && !errors.Is(err, services.ErrMissingWinningNumber) {
			return fail(c, "failed to load winning number", err)
		}

		batch := services.BatchRequest{DrawType: drawType, WinningNumber: winning, Threshold: req.Threshold}
		if req.Mode == "final_day" {
			if batch.Candidates, err = svc.Engine.Eligibility.FinalDay(ctx, req.DefinitionID); err != nil {
				return fail(c, "failed to select final day instances", err)
			}
		}

		report, err := svc.Engine.EvaluateBatch(ctx, batch)
		if report == nil {
			return fail(c, "prize draw evaluation refused", err)
		}

		log.WithFields(logrus.Fields{
			"draw_type": drawType.InternalName,
			"mode":      req.Mode,
			"succeeded": len(report.Succeeded),
			"failed":    len(report.Failed),
			"outcomes":  outcomeCounts(report),
		}).Info("🎲 prize draw evaluated")
		if err != nil {
			return c.Status(fiber.StatusMultiStatus).JSON(report)
		}
		return c.JSON(report)
	})

	admin.Post("/draw-types/:id/report", func(c *fiber.Ctx) error {
		if svc.Reports == nil || svc.Reports.Store == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "report storage is not configured",
			})
		}
		req := reportRequest{Limit: defaultTopLimit}
		if len(c.Body()) > 0 {
			if err := bind(c, &req); err != nil {
				return badRequest(c, err)
			}
		}
		if req.Limit == 0 {
			req.Limit = defaultTopLimit
		}

		url, report, err := svc.Reports.PublishTop(c.UserContext(), c.Params("id"), req.Limit)
		if err != nil {
			return fail(c, "failed to publish report", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url, "report": report})
	})
}

func outcomeCounts(report *services.BatchReport) map[models.Outcome]int {
	counts := map[models.Outcome]int{}
	for _, ev := range report.Succeeded {
		counts[ev.Result.Outcome]++
	}
	return counts
}
