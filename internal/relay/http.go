package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"msgrelay/internal/domain"
)

// HTTPClient talks to the relay's REST surface.
type HTTPClient struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the relay at base, e.g.
// http://127.0.0.1:3002.
func NewHTTP(base string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{Base: base, HTTP: client}
}

// RegisterKey publishes a public key for addr.
func (c *HTTPClient) RegisterKey(ctx context.Context, addr domain.Address, publicKey string) (domain.KeyRecord, error) {
	var rec domain.KeyRecord
	in := map[string]string{"address": addr.String(), "publicKey": publicKey}
	if err := c.post(ctx, "/api/public-keys", in, &rec); err != nil {
		return domain.KeyRecord{}, err
	}
	return rec, nil
}

// FetchKey retrieves the key record for addr.
func (c *HTTPClient) FetchKey(ctx context.Context, addr domain.Address) (domain.KeyRecord, error) {
	var rec domain.KeyRecord
	if err := c.getJSON(ctx, "/api/public-keys/"+url.PathEscape(addr.String()), &rec); err != nil {
		return domain.KeyRecord{}, err
	}
	return rec, nil
}

// FetchKeyBatch retrieves records for every address that has one.
func (c *HTTPClient) FetchKeyBatch(ctx context.Context, addrs []domain.Address) (map[domain.Address]domain.KeyRecord, error) {
	raw := make([]string, len(addrs))
	for i, a := range addrs {
		raw[i] = a.String()
	}
	var out struct {
		Keys map[domain.Address]domain.KeyRecord `json:"keys"`
	}
	if err := c.post(ctx, "/api/public-keys/batch", map[string][]string{"addresses": raw}, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// DeleteKey removes the key record for addr. Idempotent.
func (c *HTTPClient) DeleteKey(ctx context.Context, addr domain.Address) error {
	return c.do(ctx, http.MethodDelete, "/api/public-keys/"+url.PathEscape(addr.String()), nil, nil)
}

// QueueSize returns the number of envelopes waiting for addr.
func (c *HTTPClient) QueueSize(ctx context.Context, addr domain.Address) (int, error) {
	var out struct {
		QueueSize int `json:"queueSize"`
	}
	if err := c.getJSON(ctx, "/api/messages/"+url.PathEscape(addr.String())+"/queue-size", &out); err != nil {
		return 0, err
	}
	return out.QueueSize, nil
}

// Online reports whether addr currently has a live session.
func (c *HTTPClient) Online(ctx context.Context, addr domain.Address) (bool, error) {
	var out struct {
		Online bool `json:"online"`
	}
	if err := c.getJSON(ctx, "/api/status/"+url.PathEscape(addr.String()), &out); err != nil {
		return false, err
	}
	return out.Online, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Buffer
	if in != nil {
		body = new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return err
		}
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay %s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
