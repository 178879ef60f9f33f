package hosts

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/pkg/errors"

	"github.com/mboyle85/grabdeck/internal/progress"
)

// FourStream uploads in two steps: ask the API for an upload server, then
// multipart POST the file to it.
type FourStream struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewFourStream(apiKey string) *FourStream {
	return &FourStream{
		BaseURL: "https://4stream.org",
		APIKey:  apiKey,
		Client:  newHTTPClient(),
	}
}

func (s *FourStream) Name() string { return "4stream" }

func (s *FourStream) uploadServer(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.BaseURL+"/api/upload/server?key="+s.APIKey, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "4stream server lookup")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("4stream server lookup HTTP %d", resp.StatusCode)
	}

	var data struct {
		Status string `json:"status"`
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", errors.Wrap(err, "4stream server response")
	}
	if data.Result == "" {
		return "", errors.New("4stream returned no upload server")
	}
	return data.Result, nil
}

func (s *FourStream) Upload(ctx context.Context, path, filename string, e *progress.Emitter) (*Result, error) {
	if s.APIKey == "" {
		return nil, errors.New("4stream API key not configured")
	}

	server, err := s.uploadServer(ctx)
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
		mw.WriteField("key", s.APIKey)
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, newProgressReader(f, "Uploading to 4stream...", e)); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "4stream upload")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("4stream upload HTTP %d: %s", resp.StatusCode, trimBody(body))
	}

	var data struct {
		Status string `json:"status"`
		Files  []struct {
			URL      string `json:"url"`
			Filecode string `json:"filecode"`
		} `json:"files"`
	}
	if err := json.Unmarshal(body, &data); err != nil || len(data.Files) == 0 || data.Files[0].URL == "" {
		return nil, errors.New("4stream response missing file URL")
	}

	return &Result{
		Host: s.Name(),
		URL:  data.Files[0].URL,
		ID:   data.Files[0].Filecode,
	}, nil
}
