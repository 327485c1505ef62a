package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/banshee-data/plantconnect/internal/httputil"
)

// HTTP posts each record to <base>/<topic>.
type HTTP struct {
	client httputil.HTTPClient
	base   string
	token  string
}

type envelope struct {
	Topic   string `json:"topic"`
	Key     string `json:"key"`
	Payload any    `json:"payload"`
}

// NewHTTP validates base. token, when set, is sent as a bearer token.
func NewHTTP(client httputil.HTTPClient, base, token string) (*HTTP, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("sink: invalid http url %q", base)
	}
	if client == nil {
		client = httputil.NewClient(0)
	}
	return &HTTP{client: client, base: strings.TrimRight(u.String(), "/"), token: token}, nil
}

func (h *HTTP) Publish(ctx context.Context, topic, key string, payload any) error {
	headers := map[string]string{"X-Device-ID": key}
	if h.token != "" {
		headers["Authorization"] = "Bearer " + h.token
	}
	resp, err := httputil.PostJSON(ctx, h.client, h.base+"/"+url.PathEscape(topic), headers, envelope{topic, key, payload})
	if err != nil {
		return fmt.Errorf("sink http %s: %w", topic, err)
	}
	return resp.Body.Close()
}

func (h *HTTP) Close() error { return nil }
