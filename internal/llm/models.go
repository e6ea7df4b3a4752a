package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/dailydigest/internal/relay"
)

// defaultModels backs the model picker when the upstream /models endpoint is
// unavailable or malformed.
var defaultModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"deepseek-chat",
	"gemini-2.0-flash",
}

// ListModels fetches the upstream model catalogue. Any failure degrades to
// the built-in list rather than surfacing an error; the picker must always
// have something to show.
func (c *Client) ListModels(ctx context.Context, creds Credentials) []string {
	resp, err := c.doer.Do(ctx, relayModelsRequest(creds))
	if err != nil {
		return defaultModels
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return defaultModels
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return defaultModels
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil || len(out.Data) == 0 {
		return defaultModels
	}
	models := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	if len(models) == 0 {
		return defaultModels
	}
	return models
}

func relayModelsRequest(creds Credentials) relay.Request {
	return relay.Request{
		TargetURL: strings.TrimSuffix(creds.BaseURL, "/") + "/models",
		Method:    http.MethodGet,
		Headers:   map[string]string{"Authorization": "Bearer " + creds.APIKey},
	}
}
