package hosts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/pkg/errors"

	"github.com/mboyle85/grabdeck/internal/progress"
)

// Pixeldrain uploads via the authenticated PUT endpoint. The API key rides in
// basic auth with an empty username.
type Pixeldrain struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewPixeldrain(apiKey string) *Pixeldrain {
	return &Pixeldrain{
		BaseURL: "https://pixeldrain.com",
		APIKey:  apiKey,
		Client:  newHTTPClient(),
	}
}

func (p *Pixeldrain) Name() string { return "pixeldrain" }

func (p *Pixeldrain) Upload(ctx context.Context, path, filename string, e *progress.Emitter) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open upload source")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat upload source")
	}

	return p.UploadStream(ctx, newProgressReader(f, "Uploading to pixeldrain...", e), info.Size(), filename)
}

// UploadStream pushes an arbitrary reader, used by the remote pass-through
// upload where the source never touches disk. size may be -1 when unknown.
func (p *Pixeldrain) UploadStream(ctx context.Context, r io.Reader, size int64, filename string) (*Result, error) {
	if p.APIKey == "" {
		return nil, errors.New("pixeldrain API key not configured")
	}

	endpoint := p.BaseURL + "/api/file/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, r)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("", p.APIKey)
	if size >= 0 {
		req.ContentLength = size
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "pixeldrain request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("pixeldrain HTTP %d: %s", resp.StatusCode, trimBody(body))
	}

	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &data); err != nil || data.ID == "" {
		return nil, errors.New("pixeldrain response missing file id")
	}

	return &Result{
		Host:      p.Name(),
		URL:       fmt.Sprintf("%s/u/%s", p.BaseURL, data.ID),
		ID:        data.ID,
		DirectURL: fmt.Sprintf("%s/api/file/%s", p.BaseURL, data.ID),
	}, nil
}

func trimBody(b []byte) string {
	const limit = 200
	if len(b) > limit {
		b = b[:limit]
	}
	return string(b)
}
