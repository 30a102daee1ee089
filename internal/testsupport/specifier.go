// Package testsupport holds in-memory fakes shared by package tests.
package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/idantify-ai/localsource-scraper/internal/specifier"
)

// Call records one request made against the fake.
type Call struct {
	Method   string
	Endpoint string
	Params   map[string]string
}

// Specifier is an in-memory taxonomy API. Nodes are identified by their
// endpoint and every payload field except the image shot type, so creating
// the same (parent, name) twice returns the same id unless NonIdempotent is set.
type Specifier struct {
	mu sync.Mutex

	ShotTypes     []specifier.ShotType
	NonIdempotent bool
	// Fail makes every call to the named endpoint return an error.
	Fail map[string]bool

	nextID int
	nodes  map[string]string
	calls  []Call
}

// NewSpecifier returns a fake seeded with dorsal, lateral, head and profile
// shot types (ids 1 to 4).
func NewSpecifier() *Specifier {
	return &Specifier{
		ShotTypes: []specifier.ShotType{
			{ID: "1", SourceKey: "D", Name: "dorsal"},
			{ID: "2", SourceKey: "L", Name: "lateral"},
			{ID: "3", SourceKey: "H", Name: "head"},
			{ID: "4", SourceKey: "P", Name: "profile"},
		},
		Fail:  make(map[string]bool),
		nodes: make(map[string]string),
	}
}

func identity(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "imageShotTypeId" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return endpoint + "|" + strings.Join(parts, "&")
}

func stringify(payload map[string]any) map[string]string {
	params := make(map[string]string, len(payload))
	for k, v := range payload {
		params[k] = fmt.Sprint(v)
	}
	return params
}

func (s *Specifier) record(method, endpoint string, params map[string]string) {
	s.calls = append(s.calls, Call{Method: method, Endpoint: endpoint, Params: params})
}

// ImageShotTypes implements taxonomy.API.
func (s *Specifier) ImageShotTypes(ctx context.Context) ([]specifier.ShotType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(http.MethodGet, "image-shot-types", nil)
	if s.Fail["image-shot-types"] {
		return nil, fmt.Errorf("%w: image-shot-types unavailable", specifier.ErrNetwork)
	}
	out := make([]specifier.ShotType, len(s.ShotTypes))
	copy(out, s.ShotTypes)
	return out, nil
}

// Create implements taxonomy.API.
func (s *Specifier) Create(ctx context.Context, endpoint string, payload map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	params := stringify(payload)
	s.record(http.MethodPost, endpoint, params)
	if s.Fail[endpoint] {
		return "", fmt.Errorf("%w: POST %s failed", specifier.ErrNetwork, endpoint)
	}

	key := identity(endpoint, params)
	if id, ok := s.nodes[key]; ok && !s.NonIdempotent {
		return id, nil
	}
	s.nextID++
	id := strconv.Itoa(s.nextID)
	if _, ok := s.nodes[key]; !ok {
		s.nodes[key] = id
	}
	return id, nil
}

// Find implements taxonomy.API.
func (s *Specifier) Find(ctx context.Context, endpoint string, query map[string]string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	params := make(map[string]string, len(query))
	for k, v := range query {
		params[k] = v
	}
	s.record(http.MethodGet, endpoint, params)
	if s.Fail[endpoint] {
		return "", false, fmt.Errorf("%w: GET %s failed", specifier.ErrNetwork, endpoint)
	}

	id, ok := s.nodes[identity(endpoint, params)]
	return id, ok, nil
}

// Calls returns a copy of the request log.
func (s *Specifier) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount counts requests with the given method ("" for any).
func (s *Specifier) CallCount(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if method == "" || c.Method == method {
			n++
		}
	}
	return n
}

// NodeCount returns how many distinct nodes exist under endpoint.
func (s *Specifier) NodeCount(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.nodes {
		if strings.HasPrefix(key, endpoint+"|") {
			n++
		}
	}
	return n
}

// ServeHTTP exposes the fake over the REST surface the real client speaks.
func (s *Specifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.Trim(r.URL.Path, "/")
	if i := strings.LastIndex(endpoint, "/"); i >= 0 {
		endpoint = endpoint[i+1:]
	}
	ctx := r.Context()

	switch {
	case r.Method == http.MethodGet && endpoint == "image-shot-types":
		shotTypes, err := s.ImageShotTypes(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		out := make([]map[string]any, 0, len(shotTypes))
		for _, st := range shotTypes {
			out = append(out, map[string]any{"id": jsonID(st.ID), "sourceKey": st.SourceKey, "name": st.Name})
		}
		writeJSON(w, http.StatusOK, out)

	case r.Method == http.MethodPost:
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, err := s.Create(ctx, endpoint, payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": jsonID(id)})

	case r.Method == http.MethodGet:
		query := make(map[string]string)
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		id, found, err := s.Find(ctx, endpoint, query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		item := map[string]any{"id": jsonID(id)}
		for k, v := range query {
			item[k] = jsonID(v)
		}
		writeJSON(w, http.StatusOK, []map[string]any{item})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Server starts an httptest server backed by s and closes it with the test.
func (s *Specifier) Server(t testing.TB) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(s)
	t.Cleanup(server.Close)
	return server
}

func jsonID(id string) any {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
