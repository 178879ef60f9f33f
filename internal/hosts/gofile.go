package hosts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/progress"
)

var gofileWtRe = regexp.MustCompile(`wt:\s*"([^"]+)"`)

// Gofile talks to the gofile.io API: uploads, account content listing and
// deletion. Anonymous uploads work without a token but then cannot be
// managed afterwards.
type Gofile struct {
	APIBase string
	SiteURL string
	// UploadHostFormat turns a server name into its upload endpoint.
	UploadHostFormat string
	Token            string
	Client           *http.Client

	mu       sync.Mutex
	wt       string
	wtExpiry time.Time
}

func NewGofile(token string) *Gofile {
	return &Gofile{
		APIBase:          "https://api.gofile.io",
		SiteURL:          "https://gofile.io",
		UploadHostFormat: "https://%s.gofile.io/contents/uploadfile",
		Token:            token,
		Client:           newHTTPClient(),
	}
}

func (g *Gofile) Name() string { return "gofile" }

type gofileEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (g *Gofile) call(ctx context.Context, method, url string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "gofile request")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("gofile HTTP %d: %s", resp.StatusCode, trimBody(raw))
	}

	var env gofileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, "gofile response")
	}
	if env.Status != "ok" {
		return errors.Errorf("gofile API status %q", env.Status)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, "gofile data")
		}
	}
	return nil
}

func (g *Gofile) bestServer(ctx context.Context) (string, error) {
	var data struct {
		Servers []struct {
			Name string `json:"name"`
			Zone string `json:"zone"`
		} `json:"servers"`
	}
	if err := g.call(ctx, http.MethodGet, g.APIBase+"/servers", nil, "", &data); err != nil {
		return "", err
	}
	if len(data.Servers) == 0 {
		return "", errors.New("gofile returned no upload servers")
	}
	return data.Servers[0].Name, nil
}

func (g *Gofile) Upload(ctx context.Context, path, filename string, e *progress.Emitter) (*Result, error) {
	server, err := g.bestServer(ctx)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open upload source")
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, newProgressReader(f, "Uploading to gofile...", e)); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	var data struct {
		DownloadPage string `json:"downloadPage"`
		Code         string `json:"code"`
		ID           string `json:"id"`
	}
	endpoint := fmt.Sprintf(g.UploadHostFormat, server)
	if err := g.call(ctx, http.MethodPost, endpoint, pr, mw.FormDataContentType(), &data); err != nil {
		return nil, err
	}
	if data.DownloadPage == "" {
		return nil, errors.New("gofile response missing download page")
	}

	id := data.ID
	if id == "" {
		id = data.Code
	}
	return &Result{Host: g.Name(), URL: data.DownloadPage, ID: id}, nil
}

// WebsiteToken scrapes the "wt" value from gofile's bundled JS. Listing
// folder contents requires it on top of the account token. Falls back to a
// long-lived known value when the scrape fails.
func (g *Gofile) WebsiteToken(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wt != "" && time.Now().Before(g.wtExpiry) {
		return g.wt
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.SiteURL+"/dist/js/global.js", nil)
	if err == nil {
		if resp, err := g.Client.Do(req); err == nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			if m := gofileWtRe.FindSubmatch(body); m != nil {
				g.wt = string(m[1])
				g.wtExpiry = time.Now().Add(time.Hour)
				return g.wt
			}
		}
	}
	return config.GofileFallbackWT
}

// RemoteFile is one entry in the account's root folder.
type RemoteFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Link string `json:"link"`
}

func (g *Gofile) rootFolder(ctx context.Context) (string, error) {
	var idData struct {
		ID string `json:"id"`
	}
	if err := g.call(ctx, http.MethodGet, g.APIBase+"/accounts/getid", nil, "", &idData); err != nil {
		return "", err
	}
	var acct struct {
		RootFolder string `json:"rootFolder"`
	}
	if err := g.call(ctx, http.MethodGet, g.APIBase+"/accounts/"+idData.ID, nil, "", &acct); err != nil {
		return "", err
	}
	if acct.RootFolder == "" {
		return "", errors.New("gofile account has no root folder")
	}
	return acct.RootFolder, nil
}

// ListRemote returns the files currently stored in the account root folder.
func (g *Gofile) ListRemote(ctx context.Context) ([]RemoteFile, error) {
	if g.Token == "" {
		return nil, errors.New("gofile token not configured")
	}

	root, err := g.rootFolder(ctx)
	if err != nil {
		return nil, err
	}

	var data struct {
		Children map[string]struct {
			ID   string `json:"id"`
			Type string `json:"type"`
			Name string `json:"name"`
			Size int64  `json:"size"`
			Code string `json:"code"`
		} `json:"children"`
	}
	url := fmt.Sprintf("%s/contents/%s?wt=%s", g.APIBase, root, g.WebsiteToken(ctx))
	if err := g.call(ctx, http.MethodGet, url, nil, "", &data); err != nil {
		return nil, err
	}

	files := make([]RemoteFile, 0, len(data.Children))
	for _, child := range data.Children {
		link := child.Code
		if link != "" {
			link = g.SiteURL + "/d/" + link
		}
		files = append(files, RemoteFile{
			ID:   child.ID,
			Name: child.Name,
			Size: child.Size,
			Link: link,
		})
	}
	return files, nil
}

// DeleteRemote removes contents by id from the account.
func (g *Gofile) DeleteRemote(ctx context.Context, contentIDs []string) error {
	if g.Token == "" {
		return errors.New("gofile token not configured")
	}
	payload, _ := json.Marshal(map[string]string{
		"contentsId": strings.Join(contentIDs, ","),
	})
	return g.call(ctx, http.MethodDelete, g.APIBase+"/contents",
		strings.NewReader(string(payload)), "application/json", nil)
}
