package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://sh.dataspace.copernicus.eu"
	DefaultTokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

	catalogPath = "/api/v1/catalog/1.0.0/search"
	processPath = "/api/v1/process"
)

// Credential is one OAuth2 client of the Copernicus Data Space.
type Credential struct {
	ClientID     string
	ClientSecret string
}

// ParseCredentials pairs comma separated client ids and secrets. Credentials are tried in
// order until one is accepted.
func ParseCredentials(clientIDs, clientSecrets string) ([]Credential, error) {
	if clientIDs == "" || clientSecrets == "" {
		return nil, fmt.Errorf("missing Copernicus client ID or client secret")
	}
	ids := strings.Split(clientIDs, ",")
	secrets := strings.Split(clientSecrets, ",")
	if len(ids) != len(secrets) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}
	creds := make([]Credential, len(ids))
	for i := range ids {
		creds[i] = Credential{ClientID: strings.TrimSpace(ids[i]), ClientSecret: strings.TrimSpace(secrets[i])}
	}
	return creds, nil
}

// SceneCache stores catalog query results between runs.
type SceneCache interface {
	Get(key string) ([]Scene, bool)
	Set(key string, data []Scene) error
	GenerateKey(params ...interface{}) string
}

type CopernicusConfig struct {
	BaseURL     string
	TokenURL    string
	Credentials []Credential
	// Retries is the number of attempts per credential for transient failures.
	Retries    int
	RetryDelay time.Duration
	// RequestsPerMinute throttles every call made by the client. Zero disables throttling.
	RequestsPerMinute int
	PageLimit         int
	// HTTPClient is the transport used for tokens and API calls. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	Cache      SceneCache
}

// Copernicus is an ImageSource backed by the Sentinel Hub Catalog and Process APIs of the
// Copernicus Data Space Ecosystem.
type Copernicus struct {
	cfg     CopernicusConfig
	clients []*http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ImageSource = (*Copernicus)(nil)

func NewCopernicus(cfg CopernicusConfig, logger *slog.Logger) (*Copernicus, error) {
	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("missing Copernicus credentials")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 10
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	clients := make([]*http.Client, len(cfg.Credentials))
	for i, cred := range cfg.Credentials {
		config := &clientcredentials.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		clients[i] = config.Client(tokenCtx)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Copernicus{cfg: cfg, clients: clients, limiter: limiter, logger: logger}, nil
}

// permanentError marks a response that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// post sends body to path, retrying transient failures and falling back to the next credential
// when one is rejected.
func (c *Copernicus) post(ctx context.Context, path string, body []byte, accept string) ([]byte, error) {
	url := c.cfg.BaseURL + path
	var lastErr error

	for i, client := range c.clients {
		for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
			content, err := c.send(ctx, client, url, body, accept)
			if err == nil {
				return content, nil
			}
			lastErr = err

			var permanent *permanentError
			if errors.As(err, &permanent) || ctx.Err() != nil {
				return nil, err
			}
			if errors.Is(err, ErrUnauthorized) {
				c.logger.Warn("credential rejected", "credential", i, "error", err)
				break
			}

			c.logger.Warn("request attempt failed", "path", path, "attempt", attempt, "error", err)
			if attempt < c.cfg.Retries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.cfg.RetryDelay):
				}
			}
		}
	}

	return nil, fmt.Errorf("failed to request %s after %d attempts: %w", path, c.cfg.Retries, lastErr)
}

func (c *Copernicus) send(ctx context.Context, client *http.Client, url string, body []byte, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &permanentError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	response, err := client.Do(req)
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	defer response.Body.Close()

	content, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case response.StatusCode == http.StatusOK:
		return content, nil
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case response.StatusCode == http.StatusNotFound:
		return nil, &permanentError{err: ErrImageNotFound}
	case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500:
		return nil, fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(content)))
	default:
		return nil, &permanentError{err: fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(content)))}
	}
}

type catalogContext struct {
	Context struct {
		Next     *int `json:"next"`
		Returned int  `json:"returned"`
	} `json:"context"`
}

// Query searches the catalog and merges items by acquisition day. Collections with a cloud
// cover property are filtered on it server side; the exported scene is checked again after
// download.
func (c *Copernicus) Query(ctx context.Context, q Query) ([]Scene, error) {
	intersects, err := q.Region.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export region to GeoJSON: %w", err)
	}

	var key string
	if c.cfg.Cache != nil {
		key = c.cfg.Cache.GenerateKey(q.Sensor, q.collection(), string(intersects), q.Start.Format(time.DateOnly), q.End.Format(time.DateOnly), q.MinValidPercent)
		if scenes, ok := c.cfg.Cache.Get(key); ok {
			c.logger.Debug("catalog cache hit", "sensor", q.Sensor, "scenes", len(scenes))
			return scenes, nil
		}
	}

	maxCloud := 100 - q.MinValidPercent
	byDay := make(map[time.Time]*Scene)
	var next *int
	for {
		request := map[string]interface{}{
			"collections": []string{q.collection()},
			"datetime":    fmt.Sprintf("%s/%s", q.Start.Format(time.RFC3339), endOfDay(q.End).Format(time.RFC3339)),
			"intersects":  intersects,
			"limit":       c.cfg.PageLimit,
		}
		if q.Sensor.HasCloudCover() && q.MinValidPercent > 0 {
			request["filter"] = fmt.Sprintf("eo:cloud_cover <= %g", maxCloud)
			request["filter-lang"] = "cql2-text"
		}
		if next != nil {
			request["next"] = *next
		}

		body, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog request: %w", err)
		}
		content, err := c.post(ctx, catalogPath, body, "application/geo+json")
		if err != nil {
			return nil, fmt.Errorf("catalog search for %s failed: %w", q.Sensor, err)
		}

		fc, err := geojson.UnmarshalFeatureCollection(content)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog response: %w", err)
		}
		for _, f := range fc.Features {
			date, err := temporal.ParseDate(f.Properties.MustString("datetime", ""))
			if err != nil {
				c.logger.Warn("skipping catalog item without a date", "id", f.ID, "error", err)
				continue
			}
			cloud := f.Properties.MustFloat64("eo:cloud_cover", 0)
			if q.Sensor.HasCloudCover() && cloud > maxCloud {
				continue
			}

			scene, ok := byDay[date]
			if !ok {
				scene = &Scene{Sensor: q.Sensor, Collection: q.collection(), Date: date, CloudCover: cloud}
				byDay[date] = scene
			}
			scene.ItemIDs = append(scene.ItemIDs, fmt.Sprint(f.ID))
			scene.CloudCover = min(scene.CloudCover, cloud)
		}

		var page catalogContext
		if err := json.Unmarshal(content, &page); err != nil {
			return nil, fmt.Errorf("invalid catalog response: %w", err)
		}
		if page.Context.Next == nil || len(fc.Features) == 0 {
			break
		}
		next = page.Context.Next
	}

	scenes := make([]Scene, 0, len(byDay))
	for _, date := range temporal.GetSortedKeys(byDay, true) {
		scenes = append(scenes, *byDay[date])
	}

	if c.cfg.Cache != nil {
		if err := c.cfg.Cache.Set(key, scenes); err != nil {
			c.logger.Warn("failed to cache catalog result", "error", err)
		}
	}
	return scenes, nil
}

func (c *Copernicus) Count(ctx context.Context, q Query) (int, error) {
	scenes, err := c.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(scenes), nil
}

// Export renders the scene through the Process API with the sensor evalscript and writes the
// returned GeoTIFF. The scene is read from the collection it was found in.
func (c *Copernicus) Export(ctx context.Context, scene Scene, spec ExportSpec) (string, error) {
	scale := spec.Scale
	if scale <= 0 {
		scale = scene.Sensor.Scale()
	}
	width, height := spec.Region.PixelSize(scale)

	geometry, err := spec.Region.GeoJSON()
	if err != nil {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: err}
	}

	payload := map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": map[string]interface{}{
				"geometry": geometry,
			},
			"data": []map[string]interface{}{
				{
					"type": scene.collection(),
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": scene.Date.Format(time.RFC3339),
							"to":   endOfDay(scene.Date).Format(time.RFC3339),
						},
						"mosaickingOrder": "leastCC",
					},
				},
			},
		},
		"output": map[string]interface{}{
			"width":  width,
			"height": height,
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format": map[string]string{
						"type": "image/tiff",
					},
				},
			},
		},
		"evalscript": scene.Sensor.Evalscript(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: fmt.Errorf("failed to marshal request payload: %w", err)}
	}

	content, err := c.post(ctx, processPath, body, "image/tiff")
	if err != nil {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: err}
	}
	if len(content) == 0 {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: ErrImageNotFound}
	}

	if err := writeFile(spec.Path, content); err != nil {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: err}
	}
	return spec.Path, nil
}

func endOfDay(t time.Time) time.Time {
	return temporal.Day(t).Add(time.Hour*23 + time.Minute*59 + time.Second*59)
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, content, 0644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename image file: %w", err)
	}
	return nil
}
