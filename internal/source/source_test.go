package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return d
}

func testRegion(t *testing.T) Region {
	t.Helper()
	r, err := NewBBoxRegion(2.0, 48.0, 2.5, 48.25)
	require.NoError(t, err)
	return r
}

func TestParseCredentials(t *testing.T) {
	creds, err := ParseCredentials("a, b", "x,y ")
	require.NoError(t, err)
	assert.Equal(t, []Credential{{"a", "x"}, {"b", "y"}}, creds)

	_, err = ParseCredentials("a,b", "x")
	assert.Error(t, err)
	_, err = ParseCredentials("", "x")
	assert.Error(t, err)
}

func TestParseSensor(t *testing.T) {
	s, err := ParseSensor("m")
	require.NoError(t, err)
	assert.Equal(t, MODIS, s)

	s, err = ParseSensor("sentinel2")
	require.NoError(t, err)
	assert.Equal(t, Sentinel2, s)

	_, err = ParseSensor("viirs")
	assert.Error(t, err)

	for _, sensor := range Sensors {
		assert.NotEmpty(t, sensor.Evalscript())
		assert.NotEmpty(t, sensor.Bands())
		assert.Positive(t, sensor.Scale())
	}
}

func TestRegion(t *testing.T) {
	t.Run("bbox", func(t *testing.T) {
		r := testRegion(t)
		assert.Equal(t, [4]float64{2.0, 48.0, 2.5, 48.25}, r.BBox())

		w, h := r.PixelSize(100)
		assert.Equal(t, 555, w)
		assert.Equal(t, 277, h)

		w, h = r.PixelSize(1)
		assert.Equal(t, MaxExportPixels, w)
		assert.Equal(t, MaxExportPixels, h)

		w, h = r.PixelSize(1_000_000)
		assert.Equal(t, 1, w)
		assert.Equal(t, 1, h)

		lat, lon, err := r.Centroid()
		require.NoError(t, err)
		assert.InDelta(t, 48.125, lat, 1e-9)
		assert.InDelta(t, 2.25, lon, 1e-9)

		_, err = NewBBoxRegion(1, 1, 1, 2)
		assert.ErrorIs(t, err, ErrEmptyRegion)
	})

	t.Run("geojson feature collection", func(t *testing.T) {
		data := []byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
			{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Polygon","coordinates":[[[2,2],[3,2],[3,3],[2,3],[2,2]]]}}
		]}`)
		r, err := ParseRegion(data)
		require.NoError(t, err)
		assert.Equal(t, [4]float64{0, 0, 3, 3}, r.BBox())
	})

	t.Run("geojson geometry file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "roi.geojson")
		require.NoError(t, os.WriteFile(path, []byte(`{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,2],[0,2],[0,0]]]}`), 0644))
		r, err := LoadRegion(path)
		require.NoError(t, err)
		assert.Equal(t, [4]float64{0, 0, 4, 2}, r.BBox())

		raw, err := r.GeoJSON()
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"Polygon"`)
	})

	t.Run("no polygon", func(t *testing.T) {
		_, err := ParseRegion([]byte(`{"type":"Point","coordinates":[1,2]}`))
		assert.ErrorIs(t, err, ErrEmptyRegion)
		_, err = ParseRegion([]byte(`not json`))
		assert.Error(t, err)
	})
}

type fakeAPI struct {
	t             *testing.T
	rejectClient  string
	processStatus []int
	processCalls  atomic.Int32
	catalogCalls  atomic.Int32
	tiff          []byte
	// collection is the catalog collection expected in searches, sentinel-2-l2a when empty.
	collection string

	mu          sync.Mutex
	processData []string
}

func (f *fakeAPI) expectedCollection() string {
	if f.collection != "" {
		return f.collection
	}
	return "sentinel-2-l2a"
}

// processedTypes lists input.data[0].type of every Process API request.
func (f *fakeAPI) processedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.processData...)
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		id, _, ok := r.BasicAuth()
		if !ok {
			id = r.Form.Get("client_id")
		}
		if id == f.rejectClient {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%s","token_type":"bearer","expires_in":3600}`, id)
	})
	mux.HandleFunc(catalogPath, func(w http.ResponseWriter, r *http.Request) {
		f.catalogCalls.Add(1)
		var req map[string]interface{}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(f.t, []interface{}{f.expectedCollection()}, req["collections"])
		if f.collection == "" {
			assert.Equal(f.t, "eo:cloud_cover <= 70", req["filter"])
		}

		w.Header().Set("Content-Type", "application/geo+json")
		if _, ok := req["next"]; !ok {
			fmt.Fprint(w, `{"type":"FeatureCollection","features":[
				{"type":"Feature","id":"tile-a","geometry":{"type":"Point","coordinates":[2,48]},"properties":{"datetime":"2020-01-05T10:40:00Z","eo:cloud_cover":12}},
				{"type":"Feature","id":"tile-b","geometry":{"type":"Point","coordinates":[2,48]},"properties":{"datetime":"2020-01-05T10:40:10Z","eo:cloud_cover":4}}
			],"context":{"next":2,"returned":2}}`)
			return
		}
		fmt.Fprint(w, `{"type":"FeatureCollection","features":[
			{"type":"Feature","id":"tile-c","geometry":{"type":"Point","coordinates":[2,48]},"properties":{"datetime":"2020-01-02T10:40:00Z","eo:cloud_cover":20}},
			{"type":"Feature","id":"tile-d","geometry":{"type":"Point","coordinates":[2,48]},"properties":{"datetime":"2020-01-08T10:40:00Z","eo:cloud_cover":95}}
		],"context":{"returned":2}}`)
	})
	mux.HandleFunc(processPath, func(w http.ResponseWriter, r *http.Request) {
		n := int(f.processCalls.Add(1)) - 1
		body, _ := io.ReadAll(r.Body)
		assert.Contains(f.t, string(body), "evalscript")
		var req struct {
			Input struct {
				Data []struct {
					Type string `json:"type"`
				} `json:"data"`
			} `json:"input"`
		}
		if assert.NoError(f.t, json.Unmarshal(body, &req)) && assert.Len(f.t, req.Input.Data, 1) {
			f.mu.Lock()
			f.processData = append(f.processData, req.Input.Data[0].Type)
			f.mu.Unlock()
		}
		status := http.StatusOK
		if n < len(f.processStatus) {
			status = f.processStatus[n]
		}
		if status != http.StatusOK {
			http.Error(w, "failure", status)
			return
		}
		w.Header().Set("Content-Type", "image/tiff")
		w.Write(f.tiff)
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI, creds []Credential, cache SceneCache) *Copernicus {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	c, err := NewCopernicus(CopernicusConfig{
		BaseURL:     server.URL,
		TokenURL:    server.URL + "/token",
		Credentials: creds,
		Retries:     3,
		RetryDelay:  time.Millisecond,
		HTTPClient:  server.Client(),
		Cache:       cache,
	}, nil)
	require.NoError(t, err)
	return c
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]Scene
}

func (m *mapCache) Get(key string) ([]Scene, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	return s, ok
}

func (m *mapCache) Set(key string, data []Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *mapCache) GenerateKey(params ...interface{}) string {
	return fmt.Sprint(params...)
}

func TestCopernicusQuery(t *testing.T) {
	api := &fakeAPI{t: t}
	cache := &mapCache{data: map[string][]Scene{}}
	c := newTestClient(t, api, []Credential{{"id", "secret"}}, cache)

	q := Query{
		Sensor:          Sentinel2,
		Region:          testRegion(t),
		Start:           day(t, "2020-01-01"),
		End:             day(t, "2020-01-31"),
		MinValidPercent: 30,
	}
	scenes, err := c.Query(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, scenes, 2)
	assert.Equal(t, day(t, "2020-01-02"), scenes[0].Date)
	assert.Equal(t, day(t, "2020-01-05"), scenes[1].Date)
	assert.ElementsMatch(t, []string{"tile-a", "tile-b"}, scenes[1].ItemIDs)
	assert.Equal(t, 4.0, scenes[1].CloudCover)
	assert.Equal(t, int32(2), api.catalogCalls.Load())

	n, err := c.Count(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), api.catalogCalls.Load(), "second query is served from the cache")
	assert.Equal(t, "sentinel-2-l2a", scenes[0].Collection)
}

func TestCopernicusQueryCacheKeyUsesGeometry(t *testing.T) {
	api := &fakeAPI{t: t}
	cache := &mapCache{data: map[string][]Scene{}}
	c := newTestClient(t, api, []Credential{{"id", "secret"}}, cache)

	triangle, err := ParseRegion([]byte(`{"type":"Polygon","coordinates":[[[2,48],[2.5,48],[2.5,48.25],[2,48]]]}`))
	require.NoError(t, err)
	require.Equal(t, testRegion(t).BBox(), triangle.BBox())

	q := Query{Sensor: Sentinel2, Start: day(t, "2020-01-01"), End: day(t, "2020-01-31"), MinValidPercent: 30}
	for _, r := range []Region{testRegion(t), triangle} {
		q.Region = r
		_, err := c.Query(context.Background(), q)
		require.NoError(t, err)
	}
	assert.Len(t, cache.data, 2, "regions sharing a bounding box are cached apart")
	assert.Equal(t, int32(4), api.catalogCalls.Load())
}

func TestCopernicusExport(t *testing.T) {
	scene := Scene{Sensor: Sentinel2, Date: day(t, "2020-01-05")}

	t.Run("retries transient failures", func(t *testing.T) {
		api := &fakeAPI{t: t, tiff: []byte("II*\x00fake"), processStatus: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}}
		c := newTestClient(t, api, []Credential{{"id", "secret"}}, nil)

		path := filepath.Join(t.TempDir(), "raw", "Sentinel2", "20200105.tif")
		got, err := c.Export(context.Background(), scene, ExportSpec{Region: testRegion(t), Path: path})
		require.NoError(t, err)
		assert.Equal(t, path, got)
		assert.Equal(t, int32(3), api.processCalls.Load())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, api.tiff, content)
	})

	t.Run("falls back to the next credential", func(t *testing.T) {
		api := &fakeAPI{t: t, tiff: []byte("tiff"), rejectClient: "bad"}
		c := newTestClient(t, api, []Credential{{"bad", "secret"}, {"good", "secret"}}, nil)

		_, err := c.Export(context.Background(), scene, ExportSpec{Region: testRegion(t), Path: filepath.Join(t.TempDir(), "a.tif")})
		require.NoError(t, err)
		assert.Equal(t, int32(1), api.processCalls.Load())
	})

	t.Run("missing image is not retried", func(t *testing.T) {
		api := &fakeAPI{t: t, processStatus: []int{http.StatusNotFound}}
		c := newTestClient(t, api, []Credential{{"id", "secret"}}, nil)

		_, err := c.Export(context.Background(), scene, ExportSpec{Region: testRegion(t), Path: filepath.Join(t.TempDir(), "a.tif")})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrImageNotFound)

		var acqErr *AcquisitionError
		require.True(t, errors.As(err, &acqErr))
		assert.Equal(t, Sentinel2, acqErr.Sensor)
		assert.Equal(t, int32(1), api.processCalls.Load())
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		api := &fakeAPI{t: t, processStatus: []int{500, 500, 500, 500}}
		c := newTestClient(t, api, []Credential{{"id", "secret"}}, nil)

		_, err := c.Export(context.Background(), scene, ExportSpec{Region: testRegion(t), Path: filepath.Join(t.TempDir(), "a.tif")})
		require.Error(t, err)
		assert.Equal(t, int32(3), api.processCalls.Load())
	})

	t.Run("reads the collection the scene was found in", func(t *testing.T) {
		api := &fakeAPI{t: t, tiff: []byte("tiff"), collection: "byoc-modis-lst"}
		c := newTestClient(t, api, []Credential{{"id", "secret"}}, nil)

		scenes, err := c.Query(context.Background(), Query{
			Sensor:     MODIS,
			Collection: "byoc-modis-lst",
			Region:     testRegion(t),
			Start:      day(t, "2020-01-01"),
			End:        day(t, "2020-01-31"),
		})
		require.NoError(t, err)
		require.NotEmpty(t, scenes)
		assert.Equal(t, "byoc-modis-lst", scenes[0].Collection)

		_, err = c.Export(context.Background(), scenes[0], ExportSpec{Region: testRegion(t), Path: filepath.Join(t.TempDir(), "m.tif")})
		require.NoError(t, err)
		_, err = c.Export(context.Background(), scene, ExportSpec{Region: testRegion(t), Path: filepath.Join(t.TempDir(), "s.tif")})
		require.NoError(t, err)
		assert.Equal(t, []string{"byoc-modis-lst", "sentinel-2-l2a"}, api.processedTypes())
	})
}

type recordingWriter struct {
	mu      sync.Mutex
	written map[string]*raster.Raster
}

func (w *recordingWriter) WriteRaster(path string, r *raster.Raster, _ raster.GeoRef) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written[path] = r
	return nil
}

func TestMemorySource(t *testing.T) {
	writer := &recordingWriter{written: map[string]*raster.Raster{}}
	m := NewMemory(writer)

	r, err := raster.NewFromSlices(2, 2, [][]float64{{1, 2, 3, 4}}, nil)
	require.NoError(t, err)

	m.Add(MODIS, day(t, "2020-01-03"), r, raster.GeoRef{}, 0)
	m.Add(MODIS, day(t, "2020-01-01"), r, raster.GeoRef{}, 80)
	m.Add(Landsat8, day(t, "2020-01-01"), r, raster.GeoRef{}, 0)
	m.Add(MODIS, day(t, "2021-01-01"), r, raster.GeoRef{}, 0)

	q := Query{Sensor: MODIS, Start: day(t, "2020-01-01"), End: day(t, "2020-12-31")}
	scenes, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, day(t, "2020-01-01"), scenes[0].Date)

	q.MinValidPercent = 50
	n, err := m.Count(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	path, err := m.Export(context.Background(), scenes[1], ExportSpec{Path: "raw/MODIS/20200103.tif"})
	require.NoError(t, err)
	assert.Same(t, r, writer.written[path])
	assert.Equal(t, []string{path}, m.Exports())

	boom := errors.New("quota exceeded")
	m.FailExport(MODIS, day(t, "2020-01-03"), boom)
	_, err = m.Export(context.Background(), scenes[1], ExportSpec{Path: "x.tif"})
	assert.ErrorIs(t, err, boom)

	_, err = m.Export(context.Background(), Scene{Sensor: Sentinel2, Date: day(t, "2020-01-01")}, ExportSpec{Path: "y.tif"})
	assert.ErrorIs(t, err, ErrImageNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Query(ctx, q)
	assert.ErrorIs(t, err, context.Canceled)
}
