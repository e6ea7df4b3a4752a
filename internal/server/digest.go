package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/dailydigest/internal/digest"
	"github.com/mohammad-safakhou/dailydigest/internal/llm"
	"github.com/mohammad-safakhou/dailydigest/internal/mail"
)

// DigestSendRequest is the payload of POST /api/digest.
type DigestSendRequest struct {
	Recipients []string     `json:"recipients"`
	DigestData *digest.Data `json:"digestData"`
}

// sendDigest renders the supplied digest and dispatches it to every
// recipient. Partial failures still return 200 with a per-recipient
// breakdown; only a total failure becomes an error response.
func (h *Handlers) sendDigest(c echo.Context) error {
	var req DigestSendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Recipients) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "recipients is required")
	}
	if req.DigestData == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "digestData is required")
	}

	report, err := h.Dispatcher.Send(c.Request().Context(), *req.DigestData, req.Recipients)
	if err != nil {
		var all *mail.AllFailedError
		if errors.As(err, &all) {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// models answers the picker: upstream catalogue when reachable, the built-in
// list otherwise. Credentials come from the caller, not server config.
func (h *Handlers) models(c echo.Context) error {
	baseURL := c.QueryParam("baseUrl")
	if baseURL == "" {
		baseURL = h.Cfg.LLM.BaseURL
	}
	apiKey := bearerToken(c.Request().Header.Get("Authorization"))
	list := h.LLM.ListModels(c.Request().Context(), llm.Credentials{APIKey: apiKey, BaseURL: baseURL})
	return c.JSON(http.StatusOK, map[string]any{"models": list})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
