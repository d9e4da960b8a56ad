// Package squaretest provides an in-memory fake of the remote catalog API
// for exercising the sync engine end to end over real HTTP.
package squaretest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"catalog-sync-service/internal/clients"
)

// Request is a recorded call against the fake
type Request struct {
	Method        string
	Path          string
	Authorization string
	APIVersion    string
}

// Server is a fake catalog API backed by maps
type Server struct {
	*httptest.Server

	Token     string
	PageSize  int // ITEM list page size, 0 returns everything at once
	Locations []clients.Location

	mu         sync.Mutex
	objects    map[string]*clients.CatalogObject
	order      []string
	nextID     int
	version    int64
	requests   []Request
	inventory  map[string]string
	uploads    []string
	idemKeys   map[string]string
	failSKU    map[string]int
	failCat    map[string]bool
	conflicts  map[string]int
	failImages bool
	failInv    bool
}

// NewServer starts a fake and registers cleanup on t
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Token:     "test-token",
		Locations: []clients.Location{{ID: "LOC-1", Name: "Main Street", Status: "ACTIVE", Currency: "USD", Country: "US"}},
		objects:   make(map[string]*clients.CatalogObject),
		inventory: make(map[string]string),
		idemKeys:  make(map[string]string),
		failSKU:   make(map[string]int),
		failCat:   make(map[string]bool),
		conflicts: make(map[string]int),
		version:   1000,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// FailSKU makes variation searches for sku fail with status; status 0 drops
// the connection to simulate a transport failure.
func (s *Server) FailSKU(sku string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSKU[sku] = status
}

// FailCategory makes searches for the category name fail
func (s *Server) FailCategory(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCat[name] = true
}

// FailImageUploads makes every image upload return 500
func (s *Server) FailImageUploads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failImages = true
}

// FailInventory makes every inventory change return 500
func (s *Server) FailInventory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInv = true
}

// ConflictOnUpdate makes the next n updates of objectID report VERSION_MISMATCH
func (s *Server) ConflictOnUpdate(objectID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[objectID] = n
}

// SeedItem stores an ITEM with a single variation and returns its ids
func (s *Server) SeedItem(name, sku string, priceCents int64) (itemID, variationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	itemID = s.newID("ITEM")
	variationID = s.newID("VAR")
	variation := clients.CatalogObject{
		Type:    clients.ObjectTypeItemVariation,
		ID:      variationID,
		Version: s.bump(),
		ItemVariationData: &clients.ItemVariationData{
			ItemID:      itemID,
			Name:        "Regular",
			SKU:         sku,
			PricingType: "FIXED_PRICING",
		},
	}
	if priceCents > 0 {
		variation.ItemVariationData.PriceMoney = &clients.Money{Amount: priceCents, Currency: "USD"}
	}
	s.put(&clients.CatalogObject{
		Type:    clients.ObjectTypeItem,
		ID:      itemID,
		Version: s.bump(),
		ItemData: &clients.ItemData{
			Name:       name,
			Variations: []clients.CatalogObject{variation},
		},
	})
	return itemID, variationID
}

// SeedImage attaches an IMAGE with caption to itemID
func (s *Server) SeedImage(itemID, caption string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachImage(itemID, caption)
}

// Object returns a copy of a stored object
func (s *Server) Object(id string) (clients.CatalogObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return clients.CatalogObject{}, false
	}
	return *obj, true
}

// Items returns all stored ITEM objects
func (s *Server) Items() []clients.CatalogObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ofType(clients.ObjectTypeItem)
}

// Categories returns all stored CATEGORY objects
func (s *Server) Categories() []clients.CatalogObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ofType(clients.ObjectTypeCategory)
}

// Uploads returns the captions of every uploaded image
func (s *Server) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

// InventoryCount returns the last physical count pushed for a variation
func (s *Server) InventoryCount(variationID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.inventory[variationID]
	return q, ok
}

// Requests returns every recorded call
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests counts calls matching method and path prefix
func (s *Server) CountRequests(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		APIVersion:    r.Header.Get("Square-Version"),
	})
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v2/catalog/search":
		s.search(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/catalog/object/"):
		s.retrieve(w, strings.TrimPrefix(r.URL.Path, "/v2/catalog/object/"))
	case r.Method == http.MethodPost && r.URL.Path == "/v2/catalog/batch-retrieve":
		s.batchRetrieve(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v2/catalog/object":
		s.upsert(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v2/catalog/list":
		s.list(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v2/catalog/images":
		s.createImage(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v2/inventory/changes/batch-create":
		s.changeInventory(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v2/locations":
		writeJSON(w, http.StatusOK, map[string]interface{}{"locations": s.Locations})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", r.URL.Path)
	}
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ObjectTypes []clients.ObjectType `json:"object_types"`
		Query       struct {
			ExactQuery struct {
				AttributeName  string `json:"attribute_name"`
				AttributeValue string `json:"attribute_value"`
			} `json:"exact_query"`
		} `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	attr := req.Query.ExactQuery.AttributeName
	value := req.Query.ExactQuery.AttributeValue

	s.mu.Lock()
	status, failSKU := s.failSKU[value]
	failCat := s.failCat[value]
	s.mu.Unlock()

	if failSKU && attr == "sku" {
		if status == 0 {
			dropConnection(w)
			return
		}
		writeError(w, status, "INTERNAL_SERVER_ERROR", "injected failure for "+value)
		return
	}
	if failCat && attr == "name" {
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "injected category failure")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []clients.CatalogObject
	for _, t := range req.ObjectTypes {
		switch {
		case t == clients.ObjectTypeItemVariation && attr == "sku":
			for _, item := range s.ofType(clients.ObjectTypeItem) {
				for _, v := range item.ItemData.Variations {
					if v.ItemVariationData != nil && v.ItemVariationData.SKU == value {
						matches = append(matches, v)
					}
				}
			}
		case t == clients.ObjectTypeCategory && attr == "name":
			for _, c := range s.ofType(clients.ObjectTypeCategory) {
				if c.CategoryData != nil && c.CategoryData.Name == value {
					matches = append(matches, c)
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"objects": matches})
}

func (s *Server) retrieve(w http.ResponseWriter, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[id]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "object "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"object": obj})
}

func (s *Server) batchRetrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ObjectIDs []string `json:"object_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objects := make([]clients.CatalogObject, 0, len(req.ObjectIDs))
	for _, id := range req.ObjectIDs {
		if obj, ok := s.objects[id]; ok {
			objects = append(objects, *obj)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"objects": objects})
}

func (s *Server) upsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdempotencyKey string                `json:"idempotency_key"`
		Object         clients.CatalogObject `json:"object"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, seen := s.idemKeys[req.IdempotencyKey]; seen && req.IdempotencyKey != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"catalog_object": s.objects[id]})
		return
	}

	obj := req.Object
	mappings := []map[string]string{}

	if !strings.HasPrefix(obj.ID, "#") {
		existing, ok := s.objects[obj.ID]
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "object "+obj.ID+" not found")
			return
		}
		if n := s.conflicts[obj.ID]; n > 0 {
			s.conflicts[obj.ID] = n - 1
			existing.Version = s.bump()
		}
		if existing.Version != obj.Version {
			writeError(w, http.StatusBadRequest, "VERSION_MISMATCH",
				fmt.Sprintf("object version does not match for object: %s", obj.ID))
			return
		}
	} else {
		clientID := obj.ID
		obj.ID = s.newID(string(obj.Type))
		mappings = append(mappings, map[string]string{"client_object_id": clientID, "object_id": obj.ID})
	}
	obj.Version = s.bump()

	if obj.ItemData != nil {
		for i := range obj.ItemData.Variations {
			v := &obj.ItemData.Variations[i]
			if strings.HasPrefix(v.ID, "#") {
				clientID := v.ID
				v.ID = s.newID("VAR")
				mappings = append(mappings, map[string]string{"client_object_id": clientID, "object_id": v.ID})
			}
			v.Version = s.bump()
			if v.ItemVariationData != nil {
				v.ItemVariationData.ItemID = obj.ID
			}
		}
	}

	s.put(&obj)
	if req.IdempotencyKey != "" {
		s.idemKeys[req.IdempotencyKey] = obj.ID
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"catalog_object": obj, "id_mappings": mappings})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	types := strings.Split(r.URL.Query().Get("types"), ",")
	start, _ := strconv.Atoi(r.URL.Query().Get("cursor"))

	s.mu.Lock()
	defer s.mu.Unlock()

	var all []clients.CatalogObject
	for _, t := range types {
		all = append(all, s.ofType(clients.ObjectType(t))...)
	}

	end := len(all)
	if s.PageSize > 0 && start+s.PageSize < end {
		end = start + s.PageSize
	}
	if start > len(all) {
		start = len(all)
	}
	resp := map[string]interface{}{"objects": all[start:end]}
	if end < len(all) {
		resp["cursor"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createImage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail := s.failImages
	s.mu.Unlock()
	if fail {
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "injected image failure")
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	var meta struct {
		ObjectID string                `json:"object_id"`
		Image    clients.CatalogObject `json:"image"`
	}
	if err := json.Unmarshal([]byte(r.FormValue("request")), &meta); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	file, _, err := r.FormFile("image_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", err.Error())
		return
	}
	defer file.Close()
	if _, err := io.Copy(io.Discard, file); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[meta.ObjectID]; !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "object "+meta.ObjectID+" not found")
		return
	}
	id := s.attachImage(meta.ObjectID, meta.Image.Caption())
	s.uploads = append(s.uploads, meta.Image.Caption())
	writeJSON(w, http.StatusOK, map[string]interface{}{"image": s.objects[id]})
}

func (s *Server) changeInventory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdempotencyKey string                    `json:"idempotency_key"`
		Changes        []clients.InventoryChange `json:"changes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInv {
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "injected inventory failure")
		return
	}
	for _, c := range req.Changes {
		if c.PhysicalCount != nil {
			s.inventory[c.PhysicalCount.CatalogObjectID] = c.PhysicalCount.Quantity
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"counts": []interface{}{}})
}

// attachImage requires s.mu held
func (s *Server) attachImage(itemID, caption string) string {
	id := s.newID("IMG")
	s.put(&clients.CatalogObject{
		Type:      clients.ObjectTypeImage,
		ID:        id,
		Version:   s.bump(),
		ImageData: &clients.ImageData{Caption: caption, URL: "https://images.example.test/" + id},
	})
	if item, ok := s.objects[itemID]; ok && item.ItemData != nil {
		item.ItemData.ImageIDs = append(item.ItemData.ImageIDs, id)
		item.Version = s.bump()
	}
	return id
}

func (s *Server) put(obj *clients.CatalogObject) {
	if _, ok := s.objects[obj.ID]; !ok {
		s.order = append(s.order, obj.ID)
	}
	s.objects[obj.ID] = obj
}

func (s *Server) ofType(t clients.ObjectType) []clients.CatalogObject {
	var out []clients.CatalogObject
	for _, id := range s.order {
		if obj := s.objects[id]; obj.Type == t {
			out = append(out, *obj)
		}
	}
	return out
}

func (s *Server) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%04d", prefix, s.nextID)
}

func (s *Server) bump() int64 {
	s.version++
	return s.version
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]interface{}{
		"errors": []clients.RemoteError{{Category: "API_ERROR", Code: code, Detail: detail}},
	})
}
