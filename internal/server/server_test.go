package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/movemate/internal/classifier"
	"github.com/rcliao/movemate/internal/model"
	"github.com/rcliao/movemate/internal/scanner"
	"github.com/rcliao/movemate/internal/store"
)

type queueDetector struct {
	mu      sync.Mutex
	results []classifier.Result
}

func (q *queueDetector) Detect(ctx context.Context, image []byte) classifier.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.results) == 0 {
		return classifier.Result{}
	}
	r := q.results[0]
	q.results = q.results[1:]
	return r
}

func detected(names ...string) []model.DetectedItem {
	out := make([]model.DetectedItem, len(names))
	for i, n := range names {
		out[i] = model.DetectedItem{Name: n, Category: "Decor", Fragility: "High"}
	}
	return out
}

func newTestServer(t *testing.T, results ...classifier.Result) (*httptest.Server, *scanner.Scanner) {
	t.Helper()
	lg, err := store.NewSQLiteStore(store.MemoryPath)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { lg.Close() })

	sc := scanner.New(&queueDetector{results: results}, scanner.Options{
		NoticeTTL: time.Minute,
		Provider:  "queue",
		Recorder:  lg,
	})
	ts := httptest.NewServer(New(sc, Options{Log: lg}))
	t.Cleanup(ts.Close)
	return ts, sc
}

func postFrame(t *testing.T, url string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "frame.jpg")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	resp, err := http.Post(url+"/api/frames", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func do(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestRequestIDPreserved(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected client request id, got %q", got)
	}
}

func TestPreflight(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodOptions, ts.URL+"/api/items", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestFrameWhileNotScanning(t *testing.T) {
	ts, _ := newTestServer(t, classifier.Result{Items: detected("Lamp")})

	var rep FrameResponse
	decode(t, postFrame(t, ts.URL, []byte("jpeg")), &rep)
	if rep.Outcome != scanner.DroppedIdle || rep.Items != 0 {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestFrameMissingImage(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/frames", "image/jpeg", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", resp.StatusCode)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("other", "x")
	mw.Close()
	resp, err = http.Post(ts.URL+"/api/frames", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing file field, got %d", resp.StatusCode)
	}
}

func TestScanningToggle(t *testing.T) {
	ts, sc := newTestServer(t)

	var st scanner.Status
	decode(t, do(t, http.MethodPost, ts.URL+"/api/scanning", `{"active": true}`), &st)
	if !st.Scanning || !sc.Status().Scanning {
		t.Errorf("scanning not enabled: %+v", st)
	}

	resp := do(t, http.MethodPost, ts.URL+"/api/scanning", `{}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing active, got %d", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/scanning")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &st)
	if !st.Scanning || st.State != scanner.StateIdle {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestUploadListDeleteClear(t *testing.T) {
	ts, sc := newTestServer(t,
		classifier.Result{Items: detected("Chair", "Lamp")},
		classifier.Result{Items: detected("lamp", "Vase")},
	)
	sc.SetScanning(true)

	var rep FrameResponse
	decode(t, postFrame(t, ts.URL, []byte("jpeg-1")), &rep)
	if rep.Outcome != scanner.Accepted || rep.Added != "Lamp" || rep.Items != 2 {
		t.Fatalf("unexpected first report: %+v", rep)
	}

	resp, err := http.Post(ts.URL+"/api/frames", "image/jpeg", strings.NewReader("jpeg-2"))
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &rep)
	if rep.Added != "Vase" || rep.Items != 3 {
		t.Fatalf("unexpected second report: %+v", rep)
	}

	resp, err = http.Get(ts.URL + "/api/notice")
	if err != nil {
		t.Fatal(err)
	}
	var n scanner.Notice
	decode(t, resp, &n)
	if n.Name != "Vase" {
		t.Errorf("expected notice for Vase, got %+v", n)
	}

	resp, err = http.Get(ts.URL + "/api/items")
	if err != nil {
		t.Fatal(err)
	}
	var list ItemsResponse
	decode(t, resp, &list)
	if list.Count != 3 || len(list.Items) != 3 || list.Items[0].Name != "Vase" {
		t.Fatalf("unexpected list: %+v", list)
	}

	resp = do(t, http.MethodDelete, ts.URL+"/api/items/"+list.Items[0].ID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 on delete, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, ts.URL+"/api/items/unknown", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 on unknown delete, got %d", resp.StatusCode)
	}
	if got := len(sc.Items()); got != 2 {
		t.Errorf("expected 2 items after delete, got %d", got)
	}

	resp = do(t, http.MethodDelete, ts.URL+"/api/items", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 on unconfirmed clear, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, ts.URL+"/api/items?confirm=true", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 on clear, got %d", resp.StatusCode)
	}
	if got := len(sc.Items()); got != 0 {
		t.Errorf("expected empty list, got %d", got)
	}
}

func TestNoticeEmpty(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/notice")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestStatsAndRounds(t *testing.T) {
	ts, sc := newTestServer(t, classifier.Result{Items: detected("Mirror")})
	sc.SetScanning(true)
	postFrame(t, ts.URL, []byte("jpeg")).Body.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	var st StatsResponse
	decode(t, resp, &st)
	if st.Scanner.Requests != 1 || st.Items != 1 {
		t.Errorf("unexpected scanner stats: %+v", st)
	}
	if st.Log == nil || st.Log.TotalRounds != 1 || st.Log.TotalAdmitted != 1 {
		t.Errorf("unexpected log stats: %+v", st.Log)
	}

	resp, err = http.Get(ts.URL + "/api/rounds?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	var rounds []model.Round
	decode(t, resp, &rounds)
	if len(rounds) != 1 || rounds[0].Added != "Mirror" || len(rounds[0].Detections) != 1 {
		t.Errorf("unexpected rounds: %+v", rounds)
	}

	resp, err = http.Get(ts.URL + "/api/rounds?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>movemate</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	sc := scanner.New(&queueDetector{}, scanner.Options{})
	ts := httptest.NewServer(New(sc, Options{StaticDir: dir}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "movemate") {
		t.Errorf("static index not served: %q", buf.String())
	}
}
