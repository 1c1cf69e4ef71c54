// Package storage implements the client for the remote file hosting
// provider. The provider's API is a moving target: endpoint paths and
// response shapes have changed across versions, and uploads must target a
// dynamically assigned server. The client therefore tries known endpoint
// variants in priority order, parses responses as a superset of known
// shapes, and degrades to templated fallback URLs instead of failing the
// caller over metadata it can recover from.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Vicentaelm/SubtitleMaster/internal/metrics"
)

const (
	DefaultAPIBase = "https://api.gofile.io"

	// defaultServer is the upload target used when discovery fails. An
	// upload target is a hint, not a guarantee, so availability wins here.
	defaultServer = "store"

	serverCacheTTL = 5 * time.Minute

	// requestTimeout is generous to accommodate large media uploads.
	requestTimeout = 5 * time.Minute
)

// Endpoint variants in priority order; the newest known schema comes first.
var (
	serverEndpoints  = []string{"/servers", "/getServer"}
	uploadEndpoints  = []string{"/contents/uploadfile", "/uploadFile"}
	contentEndpoints = []string{"/contents/%s", "/getContent?contentId=%s"}
)

// ErrAllUploadEndpointsExhausted means every known upload endpoint variant
// returned a transport error or a non-success status. This is the only hard
// failure the client surfaces.
var ErrAllUploadEndpointsExhausted = errors.New("all upload endpoints exhausted")

// Handle identifies a stored file. FileID is the durable key; Link is a
// best-effort direct link that may be stale and must be re-resolved before
// use. Resolved is false when the ID had to be synthesized locally.
type Handle struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Link     string `json:"link"`
	Resolved bool   `json:"resolved"`
}

type Client struct {
	httpClient *http.Client
	apiBase    string

	// uploadHostFormat expands the assigned server name into the upload
	// host, e.g. "https://%s.gofile.io".
	uploadHostFormat string

	// linkTemplate builds the public fallback URL for a file ID.
	linkTemplate string

	mu              sync.Mutex
	server          string
	serverFetchedAt time.Time
	serverTTL       time.Duration
}

func NewClient(apiBase string) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	return &Client{
		httpClient:       &http.Client{Timeout: requestTimeout},
		apiBase:          apiBase,
		uploadHostFormat: "https://%s.gofile.io",
		linkTemplate:     "https://gofile.io/d/%s",
		serverTTL:        serverCacheTTL,
	}
}

type apiResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// SelectUploadTarget returns the server name uploads should be sent to,
// using a cached assignment while it is younger than the TTL. Discovery
// failures degrade to the default server instead of blocking.
func (c *Client) SelectUploadTarget(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.server != "" && time.Since(c.serverFetchedAt) < c.serverTTL {
		return c.server
	}

	server, err := c.discoverServer(ctx)
	if err != nil {
		metrics.StorageDiscoveryFailures.Inc()
		log.Printf("Server discovery failed, using default server %q: %v", defaultServer, err)
		server = defaultServer
	}

	c.server = server
	c.serverFetchedAt = time.Now()
	return server
}

func (c *Client) discoverServer(ctx context.Context) (string, error) {
	var lastErr error
	for _, endpoint := range serverEndpoints {
		resp, err := c.getJSON(ctx, c.apiBase+endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Status != "ok" {
			lastErr = fmt.Errorf("discovery endpoint %s returned status %q", endpoint, resp.Status)
			continue
		}

		if server, ok := serverFromDiscovery(resp.Data); ok {
			log.Printf("Got upload server %q from %s", server, endpoint)
			return server, nil
		}
		lastErr = fmt.Errorf("discovery endpoint %s returned no usable server", endpoint)
	}

	if lastErr == nil {
		lastErr = errors.New("no discovery endpoints configured")
	}
	return "", lastErr
}

// serverFromDiscovery extracts a server name from either known discovery
// schema: a list of server descriptors or a flat server name field.
func serverFromDiscovery(data map[string]any) (string, bool) {
	if list, ok := data["servers"].([]any); ok && len(list) > 0 {
		switch first := list[0].(type) {
		case string:
			if first != "" {
				return first, true
			}
		case map[string]any:
			if name, ok := first["name"].(string); ok && name != "" {
				return name, true
			}
		}
	}

	if name, ok := data["server"].(string); ok && name != "" {
		return name, true
	}

	return "", false
}

// Upload sends the payload to the assigned server, trying each known
// endpoint variant in order until one accepts it. It fails only when every
// variant is exhausted; response-shape surprises are absorbed by the field
// extraction chain.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) (*Handle, error) {
	server := c.SelectUploadTarget(ctx)

	var lastErr error
	for _, endpoint := range uploadEndpoints {
		url := fmt.Sprintf(c.uploadHostFormat, server) + endpoint

		resp, err := c.postMultipart(ctx, url, data, filename)
		if err != nil {
			metrics.RecordUploadAttempt(endpoint, "error")
			log.Printf("Upload endpoint %s failed: %v", endpoint, err)
			lastErr = err
			continue
		}
		if resp.Status != "ok" {
			metrics.RecordUploadAttempt(endpoint, "rejected")
			lastErr = fmt.Errorf("upload endpoint %s returned status %q: %s", endpoint, resp.Status, resp.Message)
			log.Printf("Upload endpoint %s rejected the file: %v", endpoint, lastErr)
			continue
		}

		metrics.RecordUploadAttempt(endpoint, "ok")
		return c.handleFromUpload(resp.Data, filename), nil
	}

	return nil, fmt.Errorf("%w: %v", ErrAllUploadEndpointsExhausted, lastErr)
}

// UploadFile reads a local file and uploads it under the given name; an
// empty name keeps the file's base name.
func (c *Client) UploadFile(ctx context.Context, path, filename string) (*Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read upload source: %w", err)
	}
	if filename == "" {
		filename = baseName(path)
	}

	return c.Upload(ctx, data, filename)
}

// ResolveDownloadURL determines the best download locator for a file ID.
// Locally synthesized IDs skip the lookup entirely; every lookup failure
// degrades to the templated fallback URL, which self-corrects through the
// provider's HTTP redirects. This method never fails.
func (c *Client) ResolveDownloadURL(ctx context.Context, fileID string) string {
	fallback := fmt.Sprintf(c.linkTemplate, fileID)

	if isSynthesizedID(fileID) {
		return fallback
	}

	for _, variant := range contentEndpoints {
		url := c.apiBase + fmt.Sprintf(variant, fileID)

		resp, err := c.getJSON(ctx, url)
		if err != nil {
			log.Printf("Content endpoint %s failed: %v", variant, err)
			continue
		}
		if resp.Status != "ok" {
			log.Printf("Content endpoint %s returned status %q", variant, resp.Status)
			continue
		}

		if link, ok := linkFromContent(resp.Data); ok {
			return link
		}
	}

	metrics.StorageResolutionFallbacks.Inc()
	log.Printf("No direct link found for file %s, using fallback URL", fileID)
	return fallback
}

// linkFromContent extracts a direct link from any of the known content
// response shapes.
func linkFromContent(data map[string]any) (string, bool) {
	if contents, ok := data["contents"].(map[string]any); ok && len(contents) > 0 {
		keys := make([]string, 0, len(contents))
		for k := range contents {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if entry, ok := contents[keys[0]].(map[string]any); ok {
			if link, ok := entry["link"].(string); ok && link != "" {
				return link, true
			}
		}
	}

	for _, field := range []string{"directLink", "link"} {
		if link, ok := data[field].(string); ok && link != "" {
			return link, true
		}
	}

	if file, ok := data["file"].(map[string]any); ok {
		if link, ok := file["link"].(string); ok && link != "" {
			return link, true
		}
	}

	return "", false
}

// Download streams the content at url into w, following redirects.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close download body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download returned HTTP %d", resp.StatusCode)
	}

	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) getJSON(ctx context.Context, url string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	return c.doJSON(req)
}

func (c *Client) postMultipart(ctx context.Context, url string, data []byte, filename string) (*apiResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	// Newer API versions expect a token field; anonymous uploads send it empty.
	if err := mw.WriteField("token", ""); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.doJSON(req)
}

func (c *Client) doJSON(req *http.Request) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Path)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", req.URL.Path, err)
	}
	if parsed.Data == nil {
		parsed.Data = map[string]any{}
	}

	return &parsed, nil
}

func baseName(path string) string {
	if idx := strings.LastIndexAny(path, "/\\"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
