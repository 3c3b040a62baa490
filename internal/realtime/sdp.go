package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/siwon333/CarePill/internal/api"
)

// ExchangeSDP relays the local WebRTC offer through the backend and
// returns the remote answer. The token authorizes the backend to proxy
// the exchange to the realtime provider.
func ExchangeSDP(ctx context.Context, c *api.Client, token, offer string) (string, error) {
	data, _, err := c.PostRaw(ctx, "/api/realtime/sdp-exchange/", "application/sdp",
		strings.NewReader(offer), "Authorization", "Bearer "+token)
	if err != nil {
		return "", &SignalingError{Err: err}
	}
	answer := string(data)
	if !strings.HasPrefix(answer, "v=") {
		return "", &SignalingError{Err: fmt.Errorf("response is not an sdp answer")}
	}
	return answer, nil
}
