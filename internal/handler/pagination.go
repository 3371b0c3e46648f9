package handler

import (
	"trilex-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type pageResponse struct {
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Results  any `json:"results"`
}

func pageFromQuery(c *fiber.Ctx) service.Page {
	return service.NewPage(c.QueryInt("page", 1), c.QueryInt("page_size", service.DefaultPageSize))
}

func paginated(c *fiber.Ctx, page service.Page, total int, results any) error {
	return c.JSON(pageResponse{Count: total, Page: page.Number, PageSize: page.Size, Results: results})
}
