package routes

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/hosts"
	"github.com/mboyle85/grabdeck/internal/progress"
	"github.com/mboyle85/grabdeck/internal/task"
	"github.com/mboyle85/grabdeck/internal/worker"
)

func newTestHandlers(t *testing.T) (*Handlers, chi.Router) {
	t.Helper()
	old := config.DownloadDir
	config.DownloadDir = t.TempDir()
	t.Cleanup(func() { config.DownloadDir = old })

	bus := progress.NewBus()
	handle := task.NewHandle()
	runner := task.NewRunner(bus, handle)
	h := NewHandlers(bus, runner, handle, worker.New(nil, nil), nil, nil)

	r := chi.NewRouter()
	h.Mount(r)
	return h, r
}

func useFakeYtdlp(t *testing.T, script string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ytdlp.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	old := config.YtdlpPath
	config.YtdlpPath = path
	t.Cleanup(func() { config.YtdlpPath = old })
}

func TestProgressStreamDeliversFramesUntilDone(t *testing.T) {
	h, r := newTestHandlers(t)
	const id = "11111111-2222-3333-4444-555555555555"

	h.Bus.Publish(id, progress.Event{Stage: "Downloading...", Percent: progress.Pct(40)})
	h.Bus.Publish(id, progress.Event{Log: "some output line"})
	h.Bus.Publish(id, progress.Event{Log: progress.DoneSentinel})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/progress/"+id, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var events []progress.Event
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev progress.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("frames = %d: %+v", len(events), events)
	}
	if events[0].Stage != "Downloading..." || *events[0].Percent != 40 {
		t.Errorf("first frame = %+v", events[0])
	}
	if events[2].Log != progress.DoneSentinel {
		t.Errorf("last frame = %+v", events[2])
	}
}

func TestStopWithNothingRunning(t *testing.T) {
	_, r := newTestHandlers(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/stop", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatusIdle(t *testing.T) {
	_, r := newTestHandlers(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		TaskActive bool `json:"task_active"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.TaskActive {
		t.Error("idle server reports an active task")
	}
}

func TestDownloadValidation(t *testing.T) {
	_, r := newTestHandlers(t)

	cases := []struct {
		name string
		form url.Values
	}{
		{"missing url", url.Values{"video_id": {"137"}, "filename": {"x.mkv"}}},
		{"private url", url.Values{"url": {"http://127.0.0.1/v"}, "video_id": {"137"}, "filename": {"x.mkv"}}},
		{"bad scheme", url.Values{"url": {"ftp://example.com/v"}, "video_id": {"137"}, "filename": {"x.mkv"}}},
		{"missing format", url.Values{"url": {"https://example.com/v"}, "filename": {"x.mkv"}}},
		{"missing filename", url.Values{"url": {"https://example.com/v"}, "video_id": {"137"}}},
		{"bad codec", url.Values{"url": {"https://example.com/v"}, "video_id": {"137"}, "filename": {"x.mkv"}, "codec": {"h264"}}},
		{"2-pass without bitrate", url.Values{"url": {"https://example.com/v"}, "video_id": {"137"}, "filename": {"x.mkv"}, "codec": {"h265"}, "pass_mode": {"2-pass"}}},
		{"bad provider", url.Values{"url": {"https://example.com/v"}, "video_id": {"137"}, "filename": {"x.mkv"}, "providers": {"megaupload"}}},
	}

	for _, c := range cases {
		req := httptest.NewRequest("POST", "/api/download", strings.NewReader(c.form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", c.name, rec.Code)
		}
	}
}

func TestDownloadStartsTaskAndStreams(t *testing.T) {
	h, r := newTestHandlers(t)
	useFakeYtdlp(t, `
prev=""
out=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
echo "[download] 100% of 5.00MiB in 00:01"
echo payload > "$out"
`)

	form := url.Values{
		"url":      {"https://example.com/watch?v=1"},
		"video_id": {"137"},
		"filename": {"clip.mkv"},
	}
	req := httptest.NewRequest("POST", "/api/download", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		TaskID string `json:"task_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &started)
	if started.TaskID == "" {
		t.Fatal("no task id returned")
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), taskCookie+"=1") {
		t.Error("task cookie not set")
	}

	sub := h.Bus.Subscribe(started.TaskID)
	for {
		ev, ok := sub.Next(3 * time.Second)
		if !ok {
			t.Fatal("stream stalled before terminal")
		}
		if ev.Terminal() {
			if ev.Log != progress.DoneSentinel {
				t.Fatalf("terminal = %+v, want DONE", ev)
			}
			break
		}
	}

	if _, err := os.Stat(filepath.Join(config.DownloadDir, "clip.mkv")); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
}

func TestSecondTaskRejectedWithConflict(t *testing.T) {
	_, r := newTestHandlers(t)
	useFakeYtdlp(t, "sleep 5")

	form := url.Values{
		"url":      {"https://example.com/watch?v=1"},
		"video_id": {"137"},
		"filename": {"clip.mkv"},
	}
	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/download", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(); rec.Code != http.StatusOK {
		t.Fatalf("first task: status = %d", rec.Code)
	}
	if rec := post(); rec.Code != http.StatusConflict {
		t.Fatalf("second task: status = %d, want 409", rec.Code)
	}

	// Free the runner for other tests.
	stopRec := httptest.NewRecorder()
	r.ServeHTTP(stopRec, httptest.NewRequest("POST", "/api/stop", nil))
}

func TestServeFileRejectsTraversal(t *testing.T) {
	_, r := newTestHandlers(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/download/"+url.PathEscape("../etc/passwd"), nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServeFileAttachment(t *testing.T) {
	_, r := newTestHandlers(t)
	os.WriteFile(filepath.Join(config.DownloadDir, "a.mkv"), []byte("bytes"), 0o644)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/download/a.mkv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "a.mkv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.String() != "bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestConcatMergeValidation(t *testing.T) {
	_, r := newTestHandlers(t)

	body := strings.NewReader(`{"files":["only-one.mkv"],"output":"out.mp4"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/merge/concat", body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListFiles(t *testing.T) {
	_, r := newTestHandlers(t)
	os.WriteFile(filepath.Join(config.DownloadDir, "video.mkv"), []byte("xx"), 0o644)
	os.MkdirAll(filepath.Join(config.DownloadDir, "archive"), 0o755)
	os.WriteFile(filepath.Join(config.DownloadDir, ".hidden"), []byte("x"), 0o644)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/files", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Files []fileEntry `json:"files"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Files) != 2 {
		t.Fatalf("files = %+v", body.Files)
	}
	// Directories sort first.
	if !body.Files[0].IsDir || body.Files[0].Name != "archive" {
		t.Errorf("first entry = %+v", body.Files[0])
	}
	if body.Files[1].Name != "video.mkv" || !body.Files[1].IsMedia {
		t.Errorf("second entry = %+v", body.Files[1])
	}
}

func TestRenameConflict(t *testing.T) {
	_, r := newTestHandlers(t)
	os.WriteFile(filepath.Join(config.DownloadDir, "a.mkv"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(config.DownloadDir, "b.mkv"), []byte("y"), 0o644)

	body := strings.NewReader(`{"path":"a.mkv","newName":"b.mkv"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/files/rename", body))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestValidateTimeParam(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"00:01:30", "00:01:30"},
		{"1:30", "1:30"},
		{"90", "90"},
		{"90.5", "90.5"},
		{"1:30; rm -rf /", ""},
		{"-5", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := validateTimeParam(c.in); got != c.want {
			t.Errorf("validateTimeParam(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestProgressStreamIdleTimeoutForgetsQueue(t *testing.T) {
	h, r := newTestHandlers(t)

	old := config.StreamIdleLimit
	config.StreamIdleLimit = 30 * time.Millisecond
	t.Cleanup(func() { config.StreamIdleLimit = old })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/progress/no-such-task", nil))

	if !strings.Contains(rec.Body.String(), "Progress stream timed out.") {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if got := h.Bus.Tracked(); got != 0 {
		t.Errorf("bus still tracks %d queues after an abandoned stream", got)
	}
}

func TestListFolders(t *testing.T) {
	_, r := newTestHandlers(t)
	os.MkdirAll(filepath.Join(config.DownloadDir, "archive", "old"), 0o755)
	os.MkdirAll(filepath.Join(config.DownloadDir, ".cache"), 0o755)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/folders", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Folders []string `json:"folders"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	want := []string{"/", "archive", "archive/old"}
	if len(body.Folders) != len(want) {
		t.Fatalf("folders = %v", body.Folders)
	}
	for i, f := range want {
		if body.Folders[i] != f {
			t.Errorf("folders[%d] = %q, want %q", i, body.Folders[i], f)
		}
	}
}

func TestBatchMoveSkipsProblemFiles(t *testing.T) {
	_, r := newTestHandlers(t)
	os.WriteFile(filepath.Join(config.DownloadDir, "a.mkv"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(config.DownloadDir, "b.mkv"), []byte("b"), 0o644)

	body := strings.NewReader(`{"paths":["a.mkv","b.mkv","gone.mkv"],"dest":"sorted"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/files/move/batch", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Moved  int      `json:"moved"`
		Failed []string `json:"failed"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Moved != 2 || len(resp.Failed) != 1 || resp.Failed[0] != "gone.mkv" {
		t.Errorf("response = %+v", resp)
	}
	for _, name := range []string{"a.mkv", "b.mkv"} {
		if _, err := os.Stat(filepath.Join(config.DownloadDir, "sorted", name)); err != nil {
			t.Errorf("%s not moved: %v", name, err)
		}
	}
}

func TestBatchEncodeValidation(t *testing.T) {
	_, r := newTestHandlers(t)
	os.WriteFile(filepath.Join(config.DownloadDir, "notes.txt"), []byte("x"), 0o644)

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/encode/batch", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(url.Values{}); rec.Code != http.StatusBadRequest {
		t.Errorf("no files: status = %d, want 400", rec.Code)
	}
	if rec := post(url.Values{"files": {"notes.txt"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("non-media file: status = %d, want 400", rec.Code)
	}
}

func TestBatchEncodeRunsAllFiles(t *testing.T) {
	h, r := newTestHandlers(t)
	os.WriteFile(filepath.Join(config.DownloadDir, "a.mkv"), []byte("aa"), 0o644)
	os.WriteFile(filepath.Join(config.DownloadDir, "b.mkv"), []byte("bb"), 0o644)

	form := url.Values{"files": {"a.mkv", "b.mkv"}, "codec": {"none"}}
	req := httptest.NewRequest("POST", "/api/encode/batch", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var started struct {
		TaskID string `json:"task_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &started)
	sub := h.Bus.Subscribe(started.TaskID)
	for {
		ev, ok := sub.Next(3 * time.Second)
		if !ok {
			t.Fatal("stream stalled before terminal")
		}
		if ev.Terminal() {
			if ev.Log != progress.DoneSentinel {
				t.Fatalf("terminal = %+v, want DONE", ev)
			}
			break
		}
	}

	for _, name := range []string{"a_encoded.mkv", "b_encoded.mkv"} {
		if _, err := os.Stat(filepath.Join(config.DownloadDir, name)); err != nil {
			t.Errorf("batch output %s missing: %v", name, err)
		}
	}
}

func TestGofileImportRebuildsHistory(t *testing.T) {
	h, r := newTestHandlers(t)

	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()
	mux.HandleFunc("/accounts/getid", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":{"id":"acct-1"}}`)
	})
	mux.HandleFunc("/accounts/acct-1", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":{"rootFolder":"root-1"}}`)
	})
	mux.HandleFunc("/contents/root-1", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":{"children":{
			"c1":{"id":"c1","type":"file","name":"a.mkv","size":1048576,"code":"AbCd"}
		}}}`)
	})

	h.Gofile = &hosts.Gofile{APIBase: ts.URL, SiteURL: ts.URL, Token: "tok", Client: ts.Client()}
	h.History = hosts.NewHistory(filepath.Join(t.TempDir(), "history.json"))
	h.History.Add(hosts.HistoryEntry{Name: "stale.mkv", Link: "https://gofile.io/d/stale"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/gofile/import", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	entries := h.History.List()
	if len(entries) != 1 {
		t.Fatalf("history = %+v", entries)
	}
	e := entries[0]
	if e.Name != "a.mkv" || e.Link != ts.URL+"/d/AbCd" || e.Host != "gofile" || e.Size != "1.00 MiB" {
		t.Errorf("entry = %+v", e)
	}
}
