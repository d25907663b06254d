package handler

import (
	"github.com/gofiber/fiber/v2"

	"docintake/internal/customer"
)

// GetCustomer godoc
// @Summary Look up a customer
// @Tags customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} model.Customer
// @Failure 404 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /api/customer/{id} [get]
func GetCustomer(svc customer.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cust, err := svc.Lookup(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(cust)
	}
}
