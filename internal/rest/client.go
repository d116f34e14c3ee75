package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/google/uuid"

	"loop-drive/internal/domain"
)

// Client wraps every driver-facing backend endpoint. The backend keeps
// the session in a cookie, so one jar lives for the whole client.
type Client struct {
	slogger *slog.Logger
	baseURL string
	http    *http.Client
}

func NewClient(slogger *slog.Logger, baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		slogger: slogger,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ack AckResponse
		if json.Unmarshal(data, &ack) == nil && ack.Message != "" {
			return fmt.Errorf("%s %s: %s", method, path, ack.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	out := new(LoginResponse)
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", &LoginRequest{Email: email, Password: password}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DriverDetails(ctx context.Context) (*DriverResponse, error) {
	out := new(DriverResponse)
	err := c.do(ctx, http.MethodGet, "/api/v1/auth/driver-details", nil, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PushLocation(ctx context.Context, snap *LocationSnapshot) error {
	return c.do(ctx, http.MethodPost, "/api/v1/update-redis/driver-location-details", snap, nil)
}

func (c *Client) DriverPresence(ctx context.Context) (domain.DriverPresence, error) {
	var raw string
	err := c.do(ctx, http.MethodGet, "/api/v1/redis-driver-status", nil, &raw)
	if err != nil {
		return domain.PresenceOffline, err
	}
	if raw == "online" {
		return domain.PresenceOnline, nil
	}
	return domain.PresenceOffline, nil
}

func (c *Client) GoOffline(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/redis-driver-offline", nil, nil)
}

func (c *Client) AcceptTrip(ctx context.Context, driverID, tripID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/trip/accept-trip",
		&AcceptTripRequest{DriverID: driverID, TripID: tripID}, nil)
}

func (c *Client) CheckDriverTripStatus(ctx context.Context) (*DriverTripStatusResponse, error) {
	out := new(DriverTripStatusResponse)
	err := c.do(ctx, http.MethodGet, "/api/v1/trip/check-driver-trip-status", nil, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ActiveTrip(ctx context.Context, tripID string) (*ActiveTrip, error) {
	out := new(ActiveTrip)
	path := "/api/v1/trip/get-active-ride/?tid=" + url.QueryEscape(tripID)
	err := c.do(ctx, http.MethodGet, path, nil, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ConfirmPickup(ctx context.Context, req *TripPartiesRequest) error {
	return c.do(ctx, http.MethodPut, "/api/v1/trip/rider-pickedup-update", req, nil)
}

func (c *Client) ConfirmDropoff(ctx context.Context, req *TripPartiesRequest) error {
	return c.do(ctx, http.MethodPut, "/api/v1/trip/rider-dropoff-update", req, nil)
}

func (c *Client) CancelTrip(ctx context.Context, req *CancelTripRequest) error {
	out := new(AckResponse)
	err := c.do(ctx, http.MethodPut, "/api/v1/trip/cancel-ride", req, out)
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("cancel-ride rejected: %s", out.Message)
	}
	return nil
}
