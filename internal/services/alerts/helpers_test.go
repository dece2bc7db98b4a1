package alerts

import "github.com/ternarybob/deepstock/internal/httpclient"

func withFastLimit() httpclient.ClientOption {
	return httpclient.WithRateLimit(1000)
}
