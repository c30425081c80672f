// handlers/routes.go
package handlers

import (
	"loyalty-draw-system/middleware"
	"loyalty-draw-system/services"

	"github.com/gofiber/fiber/v2"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Users     *services.UserService
	Bingo     *services.BingoService
	Issuance  *services.IssuanceService
	DrawTypes *services.DrawTypeService
	Engine    *services.PrizeDrawEngine
	Ranking   *services.RankingSelector
	Reports   *services.ReportService
}

// SetupRoutes registers all routes. The gateway forwards
// /api/v1/loyalty/<path> as /<path>; /s/admin requires the admin role.
func SetupRoutes(app *fiber.App, svc Services) {
	user := app.Group("/user", middleware.UserContextMiddleware())
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	setupBingoRoutes(user, admin, svc)
	setupPrizeDrawRoutes(app, admin, svc)
}
