package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"catalog-sync-service/internal/clients"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIVersion is sent as the Square-Version header on every call
	DefaultAPIVersion = "2023-10-18"

	ProductionBaseURL = "https://connect.squareup.com"
	SandboxBaseURL    = "https://connect.squareupsandbox.com"
)

// BaseURLForEnvironment returns the API host for sandbox or production
func BaseURLForEnvironment(environment string) string {
	if environment == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// Options configures a Client
type Options struct {
	BaseURL     string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
	RateLimit   float64 // requests per second, 0 disables limiting
	HTTPClient  *http.Client
}

// Client implements clients.CatalogClient against the Square v2 API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	apiVersion  string
	rateLimiter *rate.Limiter
}

var _ clients.CatalogClient = (*Client)(nil)

// NewClient creates a new catalog API client
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	c := &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		accessToken: opts.AccessToken,
		apiVersion:  apiVersion,
	}
	if opts.RateLimit > 0 {
		c.rateLimiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// Call performs an authenticated JSON request. Non-2xx responses come back as
// *clients.APIError together with the status; network failures as
// *clients.TransportError with status 0.
func (c *Client) Call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, int, error) {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, reqBody)
}

// do performs the request with auth and version headers
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (json.RawMessage, int, error) {
	op := method + " " + path

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, 0, &clients.TransportError{Op: op, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request %s: %w", op, err)
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Square-Version", c.apiVersion)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &clients.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &clients.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, clients.NewAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.StatusCode, nil
}

// SearchCatalogObjects runs an exact attribute query
func (c *Client) SearchCatalogObjects(ctx context.Context, req *clients.SearchRequest) ([]clients.CatalogObject, error) {
	payload := map[string]interface{}{
		"object_types": req.ObjectTypes,
		"query": map[string]interface{}{
			"exact_query": map[string]string{
				"attribute_name":  req.AttributeName,
				"attribute_value": req.AttributeValue,
			},
		},
	}
	if req.Limit > 0 {
		payload["limit"] = req.Limit
	}

	body, _, err := c.Call(ctx, http.MethodPost, "/v2/catalog/search", payload)
	if err != nil {
		return nil, err
	}

	var response struct {
		Objects []clients.CatalogObject `json:"objects"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return response.Objects, nil
}

// RetrieveObject fetches a single catalog object by id
func (c *Client) RetrieveObject(ctx context.Context, objectID string) (*clients.CatalogObject, error) {
	body, _, err := c.Call(ctx, http.MethodGet, "/v2/catalog/object/"+url.PathEscape(objectID), nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Object clients.CatalogObject `json:"object"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse object response: %w", err)
	}
	return &response.Object, nil
}

// BatchRetrieveObjects fetches several catalog objects in one call
func (c *Client) BatchRetrieveObjects(ctx context.Context, objectIDs []string) ([]clients.CatalogObject, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}

	body, _, err := c.Call(ctx, http.MethodPost, "/v2/catalog/batch-retrieve", map[string]interface{}{
		"object_ids": objectIDs,
	})
	if err != nil {
		return nil, err
	}

	var response struct {
		Objects []clients.CatalogObject `json:"objects"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse batch retrieve response: %w", err)
	}
	return response.Objects, nil
}

// UpsertObject creates or updates a catalog object. Updates must carry the
// last-known version of the object.
func (c *Client) UpsertObject(ctx context.Context, idempotencyKey string, object *clients.CatalogObject) (*clients.UpsertResult, error) {
	body, _, err := c.Call(ctx, http.MethodPost, "/v2/catalog/object", map[string]interface{}{
		"idempotency_key": idempotencyKey,
		"object":          object,
	})
	if err != nil {
		return nil, err
	}

	var response struct {
		CatalogObject clients.CatalogObject `json:"catalog_object"`
		IDMappings    []struct {
			ClientObjectID string `json:"client_object_id"`
			ObjectID       string `json:"object_id"`
		} `json:"id_mappings"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse upsert response: %w", err)
	}

	result := &clients.UpsertResult{
		Object:     response.CatalogObject,
		IDMappings: make(map[string]string, len(response.IDMappings)),
	}
	for _, m := range response.IDMappings {
		result.IDMappings[m.ClientObjectID] = m.ObjectID
	}
	return result, nil
}

// ListCatalog returns one page of catalog objects of the given types
func (c *Client) ListCatalog(ctx context.Context, types []clients.ObjectType, cursor string) (*clients.ListResult, error) {
	params := url.Values{}
	if len(types) > 0 {
		names := make([]string, 0, len(types))
		for _, t := range types {
			names = append(names, string(t))
		}
		params.Set("types", strings.Join(names, ","))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	path := "/v2/catalog/list"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, _, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var response clients.ListResult
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse catalog list response: %w", err)
	}
	return &response, nil
}

// CreateImage uploads an image file and attaches it to ObjectID
func (c *Client) CreateImage(ctx context.Context, req *clients.ImageUpload) (*clients.CatalogObject, error) {
	meta, err := json.Marshal(map[string]interface{}{
		"idempotency_key": req.IdempotencyKey,
		"object_id":       req.ObjectID,
		"image": clients.CatalogObject{
			Type:      clients.ObjectTypeImage,
			ID:        "#new_image",
			ImageData: &clients.ImageData{Caption: req.Caption},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image request: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	requestHeader := make(textproto.MIMEHeader)
	requestHeader.Set("Content-Disposition", `form-data; name="request"`)
	requestHeader.Set("Content-Type", "application/json")
	requestPart, err := writer.CreatePart(requestHeader)
	if err != nil {
		return nil, err
	}
	if _, err := requestPart.Write(meta); err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	fileHeader := make(textproto.MIMEHeader)
	fileHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image_file"; filename=%q`, req.FileName))
	fileHeader.Set("Content-Type", contentType)
	filePart, err := writer.CreatePart(fileHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(filePart, req.Content); err != nil {
		return nil, fmt.Errorf("failed to read image content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	body, _, err := c.do(ctx, http.MethodPost, "/v2/catalog/images", writer.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}

	var response struct {
		Image clients.CatalogObject `json:"image"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse image response: %w", err)
	}
	return &response.Image, nil
}

// BatchChangeInventory applies inventory changes in one call
func (c *Client) BatchChangeInventory(ctx context.Context, idempotencyKey string, changes []clients.InventoryChange) error {
	_, _, err := c.Call(ctx, http.MethodPost, "/v2/inventory/changes/batch-create", map[string]interface{}{
		"idempotency_key": idempotencyKey,
		"changes":         changes,
	})
	return err
}

// ListLocations returns the merchant's locations
func (c *Client) ListLocations(ctx context.Context) ([]clients.Location, error) {
	body, _, err := c.Call(ctx, http.MethodGet, "/v2/locations", nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Locations []clients.Location `json:"locations"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse locations response: %w", err)
	}
	return response.Locations, nil
}
