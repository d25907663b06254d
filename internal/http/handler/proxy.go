package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"docintake/internal/credential"
	"docintake/internal/upstream"
)

// Proxy forwards /api/proxy/<subPath> to the banking API and relays the answer
// verbatim. An upstream 401 invalidates the credential and the call is repeated once.
//
// @Summary Generic banking API proxy
// @Tags proxy
// @Param path path string true "Upstream sub-path"
// @Success 200 {string} string "upstream body"
// @Failure 405 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /api/proxy/{path} [get]
// @Router /api/proxy/{path} [post]
// @Router /api/proxy/{path} [put]
// @Router /api/proxy/{path} [delete]
func Proxy(d upstream.Dispatcher, creds credential.Source) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := upstream.ProxyRequest{
			Method:      c.Method(),
			SubPath:     c.Params("*"),
			RawQuery:    string(c.Request().URI().QueryString()),
			Body:        c.Body(),
			ContentType: c.Get(fiber.HeaderContentType),
		}

		resp, err := d.Dispatch(c.UserContext(), req)
		if err == nil && resp.StatusCode == http.StatusUnauthorized {
			creds.Invalidate(resp.IssuedWith)
			resp, err = d.Dispatch(c.UserContext(), req)
		}
		if err != nil {
			return writeDomainError(c, err)
		}

		if resp.ContentType != "" {
			c.Set(fiber.HeaderContentType, resp.ContentType)
		}
		return c.Status(resp.StatusCode).Send(resp.Body)
	}
}
