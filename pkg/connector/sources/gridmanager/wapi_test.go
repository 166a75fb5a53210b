package gridmanager

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	jsonpool "github.com/ajitpratap0/gridfeed/pkg/json"
)

const (
	testUser     = "admin"
	testPassword = "infoblox"
	testCookie   = "ibapcookie"
)

// fakeWAPI serves a schema probe and a fixed sequence of network pages.
// Page i is returned for _page_id "p<i>", page 0 when no token is sent.
type fakeWAPI struct {
	t     *testing.T
	pages [][]map[string]interface{}

	probeStatus int
	pageStatus  map[int]int
	rawPage     map[int]string

	mu       sync.Mutex
	probes   int
	requests []*http.Request
	queries  []url.Values
}

func newFakeWAPI(t *testing.T, pages ...[]map[string]interface{}) *fakeWAPI {
	return &fakeWAPI{t: t, pages: pages, probeStatus: http.StatusOK, pageStatus: map[int]int{}, rawPage: map[int]string{}}
}

func (f *fakeWAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/wapi/v2.5/network" {
		http.NotFound(w, r)
		return
	}

	if r.URL.RawQuery == "_schema" {
		f.probes++
		user, pass, ok := r.BasicAuth()
		if !ok || user != testUser || pass != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"Error":"AdmConProtoError: Authentication required"}`)
			return
		}
		if f.probeStatus != http.StatusOK {
			w.WriteHeader(f.probeStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: testCookie, Value: "session-1", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"supported_versions":["2.5"]}`)
		return
	}

	f.requests = append(f.requests, r.Clone(r.Context()))
	f.queries = append(f.queries, r.URL.Query())

	if c, err := r.Cookie(testCookie); err != nil || c.Value != "session-1" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	idx := 0
	if token := r.URL.Query().Get("_page_id"); token != "" {
		if _, err := fmt.Sscanf(token, "p%d", &idx); err != nil || idx >= len(f.pages) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"Error":"AdmConDataError: invalid page id"}`)
			return
		}
	}

	if status, ok := f.pageStatus[idx]; ok {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"Error":"AdmConDataError: page failed"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if raw, ok := f.rawPage[idx]; ok {
		fmt.Fprint(w, raw)
		return
	}

	body := map[string]interface{}{"result": f.pages[idx]}
	if idx+1 < len(f.pages) {
		body["next_page_id"] = fmt.Sprintf("p%d", idx+1)
	}
	data, err := jsonpool.Marshal(body)
	if err != nil {
		f.t.Errorf("marshal page: %v", err)
	}
	w.Write(data)
}

func (f *fakeWAPI) pageRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeWAPI) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

// start serves f over plain HTTP and returns the domain (host:port)
func (f *fakeWAPI) start() string {
	srv := httptest.NewServer(f)
	f.t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

// startTLS serves f over HTTPS with a self-signed certificate
func (f *fakeWAPI) startTLS() string {
	srv := httptest.NewTLSServer(f)
	f.t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "https://")
}

func networks(prefix string, n int) []map[string]interface{} {
	out := make([]map[string]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{
			"network": fmt.Sprintf("%s.%d.0/24", prefix, i),
			"extattrs": map[string]interface{}{
				"site": map[string]interface{}{
					"value":              "NYC",
					"inheritance_source": map[string]interface{}{"_default": "LAX"},
				},
			},
		}
	}
	return out
}
