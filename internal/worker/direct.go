package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mboyle85/grabdeck/internal/alerts"
	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/fsutil"
	"github.com/mboyle85/grabdeck/internal/hosts"
	"github.com/mboyle85/grabdeck/internal/progress"
	"github.com/mboyle85/grabdeck/internal/task"
)

const directUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// fallbackCredentials are tried in order on a 401 when the caller supplied
// none. Matches the credentials baked into the devices this panel manages.
var fallbackCredentials = [][2]string{
	{"admin", "1234"},
	{"admin", "oga123456"},
	{"admin", "Oga123456"},
	{"admin", "Oga123456?!"},
}

const maxRedirects = 5

// DirectDownloadRequest is a plain HTTP fetch into the download dir.
type DirectDownloadRequest struct {
	URL      string
	Username string
	Password string
	Referer  string

	Providers []string
}

func (w *Workers) DirectDownload(req DirectDownloadRequest) task.Fn {
	return func(e *progress.Emitter, h *task.Handle) {
		e.StageAt("Starting direct download...", 0)

		if req.Username != "" || req.Password != "" {
			e.Logf("Using authentication: username=%s", req.Username)
		}

		path, err := w.fetchDirect(e, req)
		if err != nil {
			if h.WasCancelled() {
				e.Cancel("")
				return
			}
			alerts.DownloadFailed(e.TaskID(), req.URL, err)
			fail(e, h, fmt.Errorf("Direct download failed: %v", err))
			return
		}
		e.StageAt("✅ Download complete!", 100)

		w.finishWithUploads(e, h, path, req.Providers)
	}
}

func (w *Workers) fetchDirect(e *progress.Emitter, req DirectDownloadRequest) (string, error) {
	headers := map[string]string{
		"User-Agent": directUserAgent,
		"Referer":    "https://gofile.io/",
		"Origin":     "https://gofile.io",
	}
	if req.Referer != "" {
		headers["Referer"] = req.Referer
	}
	if strings.Contains(req.URL, "gofile.io") {
		w.addGofileBypass(e, headers)
	}

	resp, err := w.directGet(e, req.URL, req.Username, req.Password, headers)
	if err == nil {
		defer resp.Body.Close()
		return w.saveResponse(e, resp, req.URL)
	}

	// Unauthenticated 401: walk the fallback credential list.
	if he, ok := err.(*httpStatusError); ok && he.code == http.StatusUnauthorized && req.Username == "" && req.Password == "" {
		for i, cred := range fallbackCredentials {
			e.Logf("Access denied. Trying fallback credential %d/%d: %s...", i+1, len(fallbackCredentials), cred[0])
			resp, err := w.directGet(e, req.URL, cred[0], cred[1], map[string]string{"User-Agent": "Mozilla/5.0"})
			if err != nil {
				if he, ok := err.(*httpStatusError); ok && he.code == http.StatusUnauthorized {
					continue
				}
				return "", err
			}
			e.Logf("✅ Authenticated successfully with %s", cred[0])
			defer resp.Body.Close()
			return w.saveResponse(e, resp, req.URL)
		}
		return "", fmt.Errorf("Authentication failed (401). All credential options failed.")
	}
	return "", err
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

// directGet follows redirects by hand so auth and custom headers survive
// every hop; Go's client drops Authorization across hosts.
func (w *Workers) directGet(e *progress.Emitter, rawURL, username, password string, headers map[string]string) (*http.Response, error) {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	current := rawURL
	for jump := 0; jump < maxRedirects; jump++ {
		if u, err := url.Parse(current); err == nil {
			e.Logf("Connecting to %s...", u.Host)
		}

		req, err := http.NewRequest(http.MethodGet, current, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if username != "" || password != "" {
			req.SetBasicAuth(username, password)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return nil, fmt.Errorf("redirect with no Location header")
			}
			// Redirect back to a landing page means the direct link got
			// blocked; retry with the landing page as referer.
			if strings.Contains(location, "gofile.io/d/") && !strings.Contains(location, "/download/") {
				e.Log("⚠️ Block detected. Retrying with landing page referer...")
				headers["Referer"] = location
			}
			if !strings.HasPrefix(location, "http") {
				location = "https://gofile.io" + location
			}
			current = location
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			code := resp.StatusCode
			resp.Body.Close()
			return nil, &httpStatusError{code: code}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("too many redirects")
}

// saveResponse streams the body into the download dir, reporting byte-count
// percent when the length is known.
func (w *Workers) saveResponse(e *progress.Emitter, resp *http.Response, rawURL string) (string, error) {
	name := filenameFromResponse(resp, rawURL, "direct_download")
	path := fsutil.UniquePath(filepath.Join(config.DownloadDir, name))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	total := resp.ContentLength
	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.Remove(path)
				return "", werr
			}
			written += int64(n)
			if total > 0 {
				e.StageAt("Downloading...", float64(written)/float64(total)*100)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			os.Remove(path)
			return "", rerr
		}
	}
	return path, f.Close()
}

// addGofileBypass attaches the website token and a guest account token,
// both needed for gofile's direct download endpoints.
func (w *Workers) addGofileBypass(e *progress.Emitter, headers map[string]string) {
	g, ok := w.Uploaders["gofile"].(*hosts.Gofile)
	if !ok {
		return
	}

	e.Log("Fetching Gofile security tokens...")
	wt := g.WebsiteToken(context.Background())
	headers["X-Website-Token"] = wt

	payload := strings.NewReader("{}")
	req, err := http.NewRequest(http.MethodPost, g.APIBase+"/accounts", payload)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", headers["User-Agent"])
	req.Header.Set("Referer", "https://gofile.io/")
	req.Header.Set("X-Website-Token", wt)

	resp, err := g.Client.Do(req)
	if err != nil {
		e.Logf("Note: Failed to get Gofile guest token: %v", err)
		return
	}
	defer resp.Body.Close()

	var data struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if json.NewDecoder(resp.Body).Decode(&data) == nil && data.Data.Token != "" {
		headers["Authorization"] = "Bearer " + data.Data.Token
		e.Logf("✅ Got Gofile guest token: %s...", data.Data.Token[:min(5, len(data.Data.Token))])
	}
}
