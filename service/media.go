package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storylab-server/config"
	"storylab-server/models"

	"gorm.io/gorm"
)

// ErrNotConfigured marks a generation path whose backend is absent from the
// configuration.
var ErrNotConfigured = errors.New("image service not configured")

// MediaService drives the image backend: it submits a prompt, fetches the
// produced asset and re-hosts it in the object store.
type MediaService struct {
	db      *gorm.DB
	store   *ObjectStore
	http    *http.Client
	baseURL string
	fast    string
	quality string
}

func NewMediaService(db *gorm.DB, store *ObjectStore, cfg config.AIConfig) *MediaService {
	return &MediaService{
		db:      db,
		store:   store,
		http:    &http.Client{Timeout: cfg.Timeout()},
		baseURL: strings.TrimRight(cfg.ImagesBaseURL, "/"),
		fast:    cfg.ImageFast,
		quality: cfg.ImageQuality,
	}
}

type ImageRequest struct {
	Prompt       string `json:"prompt" binding:"required"`
	Style        string `json:"style" binding:"required"`
	ScreenplayID string `json:"screenplay_id" binding:"required"`
}

// GenerateImage posts the prompt to the configured image backend, downloads
// the produced asset and uploads it to the object store keyed by screenplay.
// Returns ErrNotConfigured when no backend is set up.
func (m *MediaService) GenerateImage(ctx context.Context, ownerID string, req ImageRequest) (string, error) {
	if m.baseURL == "" || m.store == nil {
		return "", ErrNotConfigured
	}
	sp, err := models.GetScreenplayOwned(m.db, req.ScreenplayID, ownerID)
	if err != nil {
		return "", err
	}

	model := m.quality
	if req.Style == "fast" {
		model = m.fast
	}

	body, err := json.Marshal(map[string]string{
		"model":  model,
		"prompt": req.Prompt,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("image backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode image response failed: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("image backend returned no url")
	}

	objectName := fmt.Sprintf("screenplays/%s/image-%d.png", sp.ID, time.Now().UnixNano())
	return m.fetchAndStore(ctx, out.URL, objectName)
}

// fetchAndStore downloads the asset from the backend and re-uploads it.
func (m *MediaService) fetchAndStore(ctx context.Context, sourceURL, objectName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return m.store.Upload(ctx, resp.Body, objectName, resp.ContentLength)
}
