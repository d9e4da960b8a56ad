package square

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/clients/square/squaretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url, token string) *Client {
	t.Helper()
	return NewClient(Options{BaseURL: url, AccessToken: token, Timeout: 5 * time.Second})
}

func TestClient_SendsAuthAndVersionHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"locations":[{"id":"L1","name":"Shop"}]}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL + "/", AccessToken: "tok"})
	locations, err := client.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "Shop", locations[0].Name)

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, DefaultAPIVersion, got.Get("Square-Version"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

func TestClient_APIErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		conflict bool
	}{
		{name: "unauthorized", status: 401, body: `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`, sentinel: clients.ErrUnauthorized},
		{name: "not found", status: 404, body: `{"errors":[{"code":"NOT_FOUND"}]}`, sentinel: clients.ErrNotFound},
		{name: "conflict status", status: 409, body: `{}`, sentinel: clients.ErrVersionConflict, conflict: true},
		{name: "version mismatch code", status: 400, body: `{"errors":[{"code":"VERSION_MISMATCH","detail":"stale"}]}`, sentinel: clients.ErrVersionConflict, conflict: true},
		{name: "throttled", status: 429, body: `rate limited`, sentinel: clients.ErrThrottled},
		{name: "server error", status: 503, body: `oops`, sentinel: clients.ErrServerError},
		{name: "bad request", status: 400, body: `{"errors":[{"code":"INVALID_VALUE"}]}`, sentinel: clients.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, "tok").RetrieveObject(context.Background(), "X")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *clients.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.conflict, apiErr.IsVersionConflict())
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, _, err := newTestClient(t, url, "tok").Call(context.Background(), http.MethodGet, "/v2/locations", nil)
	var transportErr *clients.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "GET /v2/locations", transportErr.Op)
}

func TestClient_SearchSendsExactQuery(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/catalog/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"objects":[{"type":"ITEM_VARIATION","id":"V1","version":3,"item_variation_data":{"item_id":"I1","name":"Regular","sku":"A-1"}}]}`))
	}))
	defer srv.Close()

	objects, err := newTestClient(t, srv.URL, "tok").SearchCatalogObjects(context.Background(), &clients.SearchRequest{
		ObjectTypes:    []clients.ObjectType{clients.ObjectTypeItemVariation},
		AttributeName:  "sku",
		AttributeValue: "A-1",
	})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, int64(3), objects[0].Version)
	assert.Equal(t, "I1", objects[0].ItemVariationData.ItemID)

	assert.Equal(t, []interface{}{"ITEM_VARIATION"}, body["object_types"])
	exact := body["query"].(map[string]interface{})["exact_query"].(map[string]interface{})
	assert.Equal(t, "sku", exact["attribute_name"])
	assert.Equal(t, "A-1", exact["attribute_value"])
}

func TestClient_UpsertReturnsIDMappings(t *testing.T) {
	fake := squaretest.NewServer(t)
	client := newTestClient(t, fake.URL, fake.Token)

	result, err := client.UpsertObject(context.Background(), "key-1", &clients.CatalogObject{
		Type:         clients.ObjectTypeCategory,
		ID:           "#new_cat",
		CategoryData: &clients.CategoryData{Name: "Tools"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Object.ID)
	assert.Equal(t, result.Object.ID, result.IDMappings["#new_cat"])

	replay, err := client.UpsertObject(context.Background(), "key-1", &clients.CatalogObject{
		Type:         clients.ObjectTypeCategory,
		ID:           "#new_cat",
		CategoryData: &clients.CategoryData{Name: "Tools"},
	})
	require.NoError(t, err)
	assert.Equal(t, result.Object.ID, replay.Object.ID)
	assert.Len(t, fake.Categories(), 1)
}

func TestClient_CreateImageMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/catalog/images", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var meta map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("request")), &meta))
		assert.Equal(t, "idem", meta["idempotency_key"])
		assert.Equal(t, "ITEM-1", meta["object_id"])
		image := meta["image"].(map[string]interface{})
		assert.Equal(t, "IMAGE", image["type"])
		assert.Equal(t, "photo.png", image["image_data"].(map[string]interface{})["caption"])

		file, header, err := r.FormFile("image_file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "photo.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, "PNGDATA", string(data))

		_, _ = w.Write([]byte(`{"image":{"type":"IMAGE","id":"IMG-9","image_data":{"caption":"photo.png"}}}`))
	}))
	defer srv.Close()

	obj, err := newTestClient(t, srv.URL, "tok").CreateImage(context.Background(), &clients.ImageUpload{
		IdempotencyKey: "idem",
		ObjectID:       "ITEM-1",
		Caption:        "photo.png",
		FileName:       "photo.png",
		ContentType:    "image/png",
		Content:        bytes.NewReader([]byte("PNGDATA")),
	})
	require.NoError(t, err)
	assert.Equal(t, "IMG-9", obj.ID)
	assert.Equal(t, "photo.png", obj.Caption())
}

func TestClient_ListCatalogFollowsCursor(t *testing.T) {
	fake := squaretest.NewServer(t)
	fake.PageSize = 2
	for _, sku := range []string{"A", "B", "C"} {
		fake.SeedItem("Item "+sku, sku, 100)
	}
	client := newTestClient(t, fake.URL, fake.Token)

	first, err := client.ListCatalog(context.Background(), []clients.ObjectType{clients.ObjectTypeItem}, "")
	require.NoError(t, err)
	assert.Len(t, first.Objects, 2)
	require.NotEmpty(t, first.Cursor)

	second, err := client.ListCatalog(context.Background(), []clients.ObjectType{clients.ObjectTypeItem}, first.Cursor)
	require.NoError(t, err)
	assert.Len(t, second.Objects, 1)
	assert.Empty(t, second.Cursor)
}

func TestClient_InventoryPayload(t *testing.T) {
	fake := squaretest.NewServer(t)
	client := newTestClient(t, fake.URL, fake.Token)

	err := client.BatchChangeInventory(context.Background(), "inv-1", []clients.InventoryChange{{
		Type: "PHYSICAL_COUNT",
		PhysicalCount: &clients.PhysicalCount{
			CatalogObjectID: "VAR-1",
			State:           "IN_STOCK",
			LocationID:      "LOC-1",
			Quantity:        "12",
			OccurredAt:      "2024-01-01T00:00:00Z",
		},
	}})
	require.NoError(t, err)

	qty, ok := fake.InventoryCount("VAR-1")
	require.True(t, ok)
	assert.Equal(t, "12", qty)
}

func TestClient_RateLimiterHonoursContext(t *testing.T) {
	fake := squaretest.NewServer(t)
	client := NewClient(Options{BaseURL: fake.URL, AccessToken: fake.Token, RateLimit: 0.001})

	_, err := client.ListLocations(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.ListLocations(ctx)
	var transportErr *clients.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.False(t, errors.Is(err, clients.ErrServerError))
}

func TestBaseURLForEnvironment(t *testing.T) {
	assert.Equal(t, ProductionBaseURL, BaseURLForEnvironment("production"))
	assert.Equal(t, SandboxBaseURL, BaseURLForEnvironment("sandbox"))
	assert.Equal(t, SandboxBaseURL, BaseURLForEnvironment(""))
}
