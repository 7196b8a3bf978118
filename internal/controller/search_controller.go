package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"ai-restaurant-search-be/internal/dto"
	"ai-restaurant-search-be/internal/pkg/serverutils"
	"ai-restaurant-search-be/internal/service"
)

type ISearchController interface {
	RegisterRoutes(r fiber.Router)
	Submit(ctx *fiber.Ctx) error
	GetResult(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
}

type searchController struct {
	searchService service.ISearchService
	jwtMiddleware fiber.Handler
}

func NewSearchController(searchService service.ISearchService, jwtMiddleware fiber.Handler) ISearchController {
	return &searchController{
		searchService: searchService,
		jwtMiddleware: jwtMiddleware,
	}
}

func (c *searchController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/search")
	h.Use(c.jwtMiddleware)
	h.Post("", c.Submit)
	h.Get("history", c.History)
	h.Get(":requestId/result", c.GetResult)
}

func (c *searchController) Submit(ctx *fiber.Ctx) error {
	var req dto.SearchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.searchService.Submit(ctx.UserContext(), serverutils.UserID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(res)
}

// GetResult answers 202 while the job runs, 200 once it is terminal (success
// or failure) and 404 for unknown or foreign requests.
func (c *searchController) GetResult(ctx *fiber.Ctx) error {
	res, err := c.searchService.GetResult(ctx.UserContext(), serverutils.UserID(ctx), ctx.Params("requestId"))
	if err != nil {
		if errors.Is(err, service.ErrSearchNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(fiber.StatusNotFound, "Search not found"))
		}
		return err
	}

	switch {
	case res.Pending != nil:
		return ctx.Status(fiber.StatusAccepted).JSON(res.Pending)
	case res.Failed != nil:
		return ctx.Status(fiber.StatusOK).JSON(res.Failed)
	default:
		ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return ctx.Status(fiber.StatusOK).Send(res.Response)
	}
}

func (c *searchController) History(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 20)
	offset := ctx.QueryInt("offset", 0)

	entries, total, err := c.searchService.History(ctx.UserContext(), serverutils.UserID(ctx), limit, offset)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get search history", fiber.Map{
		"items": entries,
		"total": total,
	}))
}
