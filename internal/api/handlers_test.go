package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`</Types>`

// buildDocx assembles a one-paragraph DOCX package in memory.
func buildDocx(t *testing.T, text string) []byte {
	t.Helper()
	docXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body><w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"[Content_Types].xml": testContentTypes,
		"word/document.xml":   docXML,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(Config{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go s.hub.Run()
	return s
}

// compareForm builds the multipart body the compare endpoints accept.
func compareForm(t *testing.T, original, revised []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range map[string][]byte{"original": original, "revised": revised} {
		if data == nil {
			continue
		}
		fw, err := mw.CreateFormFile(name, name+".docx")
		if err != nil {
			t.Fatalf("form file %s: %v", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if body["journal"] != false {
		t.Errorf("journal = %v, want false", body["journal"])
	}
}

func TestHandleCompareReturnsPackage(t *testing.T) {
	s := newTestServer(t)
	form, ctype := compareForm(t,
		buildDocx(t, "Hello world"),
		buildDocx(t, "Hello brave world"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compare", form)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Redline-Insertions"); got != "1" {
		t.Errorf("X-Redline-Insertions = %q, want 1", got)
	}
	out := rec.Body.Bytes()
	if _, err := zip.NewReader(bytes.NewReader(out), int64(len(out))); err != nil {
		t.Errorf("response is not a zip package: %v", err)
	}
}

func TestHandleCompareJSONReport(t *testing.T) {
	s := newTestServer(t)
	form, ctype := compareForm(t,
		buildDocx(t, "Hello world"),
		buildDocx(t, "Hello brave world"),
		map[string]string{"format": "json"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compare", form)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Stats struct {
			Insertions int `json:"insertions"`
		} `json:"stats"`
		ModeUsed string `json:"mode_used"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Stats.Insertions != 1 {
		t.Errorf("insertions = %d, want 1", report.Stats.Insertions)
	}
	if report.ModeUsed == "" {
		t.Error("mode_used missing")
	}
}

func TestHandleCompareMissingFile(t *testing.T) {
	s := newTestServer(t)
	form, ctype := compareForm(t, buildDocx(t, "only one"), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compare", form)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleCompareBadPackage(t *testing.T) {
	s := newTestServer(t)
	form, ctype := compareForm(t, []byte("not a docx"), []byte("still not"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compare", form)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestServer(t)
	form, ctype := compareForm(t,
		buildDocx(t, "Hello world"),
		buildDocx(t, "Hello brave world"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", form)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var job Job
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID == "" || job.Status != JobStatusPending {
		t.Fatalf("job = %+v", job)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		got, ok := s.jobs.Get(job.ID)
		if !ok {
			t.Fatal("job vanished")
		}
		if got.Status == JobStatusCompleted {
			break
		}
		if got.Status == JobStatusFailed {
			t.Fatalf("job failed: %s", got.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, status %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status fetch = %d", rec.Code)
	}
	var done Job
	if err := json.NewDecoder(rec.Body).Decode(&done); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if done.Stats == nil || done.Stats.Insertions != 1 || done.Progress != 100 {
		t.Errorf("completed job = %+v", done)
	}

	rec = httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/result", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("result fetch = %d", rec.Code)
	}
	out := rec.Body.Bytes()
	if _, err := zip.NewReader(bytes.NewReader(out), int64(len(out))); err != nil {
		t.Errorf("result is not a zip package: %v", err)
	}
}

func TestJobResultBeforeCompletion(t *testing.T) {
	s := newTestServer(t)
	job := s.jobs.Create()

	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/result", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestJobNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(t)
	handler := corsMiddleware([]string{"https://allowed.example"}, s.Routes())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://allowed.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Errorf("allowed origin header = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://blocked.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("blocked origin got header %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/compare", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
}
