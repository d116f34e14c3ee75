package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"loop-drive/internal/domain"
)

// Reverser resolves coordinates into a human-readable address via the
// geocoding collaborator. Lookups never fail hard: anything that goes
// wrong resolves to the "Unknown location" placeholder.
type Reverser struct {
	slogger *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

func NewReverser(slogger *slog.Logger, baseURL, token string) *Reverser {
	return &Reverser{
		slogger: slogger,
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type feature struct {
	PlaceName string `json:"place_name"`
	Text      string `json:"text"`
	Context   []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"context"`
}

type geocodeResponse struct {
	Features []feature `json:"features"`
}

func (f *feature) contextText(prefix string) string {
	for _, c := range f.Context {
		if strings.HasPrefix(c.ID, prefix) {
			return c.Text
		}
	}
	return ""
}

func (r *Reverser) Reverse(ctx context.Context, pt domain.LatLng) *domain.Address {
	url := fmt.Sprintf("%s/%f,%f.json?types=address&limit=1&access_token=%s",
		r.baseURL, pt.Lng, pt.Lat, r.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &domain.Address{PlaceName: "Unknown location"}
	}
	resp, err := r.http.Do(req)
	if err != nil {
		r.slogger.Warn("reverse geocode failed", "error", err)
		return &domain.Address{PlaceName: "Unknown location"}
	}
	defer resp.Body.Close()

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Features) == 0 {
		return &domain.Address{PlaceName: "Unknown location"}
	}

	f := body.Features[0]
	return &domain.Address{
		PlaceName: f.PlaceName,
		Street:    f.Text,
		City:      f.contextText("place"),
		Region:    f.contextText("region"),
	}
}
