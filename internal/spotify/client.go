// Package spotify talks to the external track catalog and playback API.
// The engine treats everything here as an opaque collaborator; search
// results are mapped straight into track descriptors and playback is a
// fire-and-forget delegation.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lucasmnrd/requestline/config"
	"github.com/lucasmnrd/requestline/internal/models"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

const searchLimit = 10

var (
	ErrDeviceNotFound  = errors.New("playback device not found")
	ErrPremiumRequired = errors.New("playback requires a premium account")
)

type Client interface {
	// Search returns up to 10 track descriptors matching the query.
	Search(ctx context.Context, query string) ([]models.Track, error)
	// Play starts playback of the given track URI on the device, using
	// the caller's user access token.
	Play(ctx context.Context, userToken, deviceID, trackURI string) error
}

type client struct {
	conf config.SpotifyConfig
	http *http.Client
	l    logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(conf config.SpotifyConfig, l logger.Logger) Client {
	return &client{
		conf: conf,
		http: &http.Client{Timeout: conf.Timeout},
		l:    l,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached client-credentials token, refreshing when it is
// within a minute of expiry.
func (c *client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.AccountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.conf.ClientID, c.conf.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

type searchResponse struct {
	Tracks struct {
		Items []trackItem `json:"items"`
	} `json:"tracks"`
}

type trackItem struct {
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"images"`
	} `json:"album"`
	DurationMS int    `json:"duration_ms"`
	PreviewURL string `json:"preview_url"`
}

func (c *client) Search(ctx context.Context, query string) ([]models.Track, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"q":     {query},
		"type":  {"track"},
		"limit": {fmt.Sprint(searchLimit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.conf.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search endpoint returned %d: %s", resp.StatusCode, body)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	tracks := make([]models.Track, 0, len(sr.Tracks.Items))
	for _, item := range sr.Tracks.Items {
		tracks = append(tracks, mapTrack(item))
	}
	return tracks, nil
}

func mapTrack(item trackItem) models.Track {
	artists := make([]string, 0, len(item.Artists))
	for _, a := range item.Artists {
		artists = append(artists, a.Name)
	}

	return models.Track{
		Name:       item.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      item.Album.Name,
		ImageURL:   smallestImage(item),
		URI:        item.URI,
		DurationMS: item.DurationMS,
		PreviewURL: item.PreviewURL,
	}
}

// smallestImage picks the last album image (the provider orders them
// largest first), falling back to the first when only one exists.
func smallestImage(item trackItem) string {
	images := item.Album.Images
	if len(images) == 0 {
		return ""
	}
	return images[len(images)-1].URL
}

type playErrorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

func (c *client) Play(ctx context.Context, userToken, deviceID, trackURI string) error {
	body, err := json.Marshal(map[string]any{"uris": []string{trackURI}})
	if err != nil {
		return err
	}

	endpoint := c.conf.BaseURL + "/me/player/play"
	if deviceID != "" {
		endpoint += "?device_id=" + url.QueryEscape(deviceID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+userToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}

	var per playErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&per)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrDeviceNotFound
	case http.StatusForbidden:
		return ErrPremiumRequired
	}

	return fmt.Errorf("playback endpoint returned %d: %s", resp.StatusCode, per.Error.Message)
}
