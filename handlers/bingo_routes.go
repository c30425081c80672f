// handlers/bingo_routes.go
package handlers

import (
	"errors"

	"loyalty-draw-system/middleware"
	"loyalty-draw-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type generateCardRequest struct {
	UserID              string   `json:"user_id" validate:"required"`
	TriggerDefinitionID string   `json:"trigger_definition_id" validate:"required"`
	Included            []string `json:"included"`
	Excluded            []string `json:"excluded"`
}

type issueInstanceRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	DefinitionID string `json:"definition_id" validate:"required"`
	Origin       string `json:"origin" validate:"required"`
}

func setupBingoRoutes(user, admin fiber.Router, svc Services) {
	// 🃏 Caller's cards
	user.Get("/bingo/cards", func(c *fiber.Ctx) error {
		views := []services.CardView{}
		u, err := svc.Users.ByExternalID(c.UserContext(), middleware.UserID(c))
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(fiber.Map{"cards": views})
		}
		if err != nil {
			return fail(c, "failed to resolve user", err)
		}

		cards, err := svc.Bingo.UserCards(c.UserContext(), u.ID)
		if err != nil {
			return fail(c, "failed to load bingo cards", err)
		}
		for i := range cards {
			views = append(views, services.NewCardView(&cards[i]))
		}
		return c.JSON(fiber.Map{"cards": views})
	})

	admin.Post("/bingo/cards", func(c *fiber.Ctx) error {
		var req generateCardRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, err)
		}
		card, err := svc.Bingo.GenerateCard(c.UserContext(), req.UserID, req.TriggerDefinitionID, req.Included, req.Excluded)
		if err != nil {
			return fail(c, "failed to generate bingo card", err)
		}
		return c.Status(fiber.StatusCreated).JSON(services.NewCardView(card))
	})

	admin.Post("/bingo/users/:userID/ensure", func(c *fiber.Ctx) error {
		userID := c.Params("userID")
		created, err := svc.Bingo.EnsureCards(c.UserContext(), userID)
		if err != nil {
			return fail(c, "failed to ensure bingo cards", err)
		}
		unlocked, err := svc.Bingo.EnsureCells(c.UserContext(), userID)
		if err != nil {
			return fail(c, "failed to ensure bingo cells", err)
		}
		log.WithFields(logrus.Fields{
			"user_id":        userID,
			"cards_created":  created,
			"cells_unlocked": unlocked,
		}).Info("🧹 bingo upkeep done")
		return c.JSON(fiber.Map{"cards_created": created, "cells_unlocked": unlocked})
	})

	admin.Post("/nft-instances", func(c *fiber.Ctx) error {
		var req issueInstanceRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, err)
		}
		instance, err := svc.Issuance.Issue(c.UserContext(), req.UserID, req.DefinitionID, req.Origin)
		if err != nil {
			return fail(c, "failed to issue nft instance", err)
		}
		return c.Status(fiber.StatusCreated).JSON(instance)
	})

	admin.Get("/users", func(c *fiber.Ctx) error {
		limit, err := queryLimit(c, 50)
		if err != nil {
			return badRequest(c, err)
		}
		users, err := svc.Users.SearchUsers(c.UserContext(), c.Query("q"), limit)
		if err != nil {
			return fail(c, "search failed", err)
		}
		return c.JSON(users)
	})
}
