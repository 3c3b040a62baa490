package realtime

import (
	"context"
	"fmt"

	"github.com/siwon333/CarePill/internal/api"
)

type sessionResponse struct {
	Value string `json:"value"`
}

// FetchToken asks the backend for a short-lived realtime session token.
// The raw API key never reaches this process; the backend mints the
// ephemeral credential.
func FetchToken(ctx context.Context, c *api.Client) (string, error) {
	var resp sessionResponse
	if err := c.GetJSON(ctx, "/api/realtime/session/", &resp); err != nil {
		return "", &CredentialError{Err: err}
	}
	if resp.Value == "" {
		return "", &CredentialError{Err: fmt.Errorf("empty token in session response")}
	}
	return resp.Value, nil
}
