package tracks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

const (
	tokenURL   = "https://accounts.spotify.com/api/token"
	apiBaseURL = "https://api.spotify.com/v1"
)

// Resolver backfills track metadata from the provider for queue submissions
// that only carry a track id. It uses the client-credentials grant, so no
// user tokens are involved.
type Resolver struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type providerTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Duration int `json:"duration_ms"`
	Album    struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
}

func NewResolver(clientID, clientSecret string) *Resolver {
	return &Resolver{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Resolve fills the missing fields of ref from the provider. Fields the
// caller already set win over the provider's values.
func (r *Resolver) Resolve(ctx context.Context, ref *models.TrackRef) error {
	if ref.Provider != "spotify" {
		return fmt.Errorf("tracks: unsupported provider %q", ref.Provider)
	}

	token, err := r.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", apiBaseURL+"/tracks/"+url.PathEscape(ref.TrackID), nil)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("tracks: track %s not found", ref.TrackID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tracks: track request failed with status %d", resp.StatusCode)
	}

	var track providerTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return err
	}

	if ref.Title == "" {
		ref.Title = track.Name
	}
	if ref.Artist == "" && len(track.Artists) > 0 {
		names := make([]string, 0, len(track.Artists))
		for _, a := range track.Artists {
			names = append(names, a.Name)
		}
		ref.Artist = strings.Join(names, ", ")
	}
	if ref.Album == "" {
		ref.Album = track.Album.Name
	}
	if ref.ArtworkURL == "" && len(track.Album.Images) > 0 {
		ref.ArtworkURL = track.Album.Images[0].URL
	}
	if ref.DurationMS == 0 {
		ref.DurationMS = track.Duration
	}

	return nil
}

func (r *Resolver) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.expiresAt) {
		return r.accessToken, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, "POST", tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}

	auth := base64.StdEncoding.EncodeToString([]byte(r.clientID + ":" + r.clientSecret))
	req.Header.Add("Authorization", "Basic "+auth)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tracks: token request failed with status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", err
	}

	r.accessToken = token.AccessToken
	// Refresh a minute early so in-flight requests don't race expiry.
	r.expiresAt = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)

	return r.accessToken, nil
}
