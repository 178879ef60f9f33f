// Package hosts implements clients for the external file hosts files get
// mirrored to after processing. Every client takes its base URL as a field so
// tests can point it at a local server.
package hosts

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/progress"
)

// Result describes a completed upload on any host.
type Result struct {
	Host      string `json:"host"`
	URL       string `json:"url"`
	ID        string `json:"id,omitempty"`
	DirectURL string `json:"directUrl,omitempty"`
}

// Uploader is a single file host. Upload pushes the file at path under the
// given display name and reports percent on the emitter as bytes go out.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, path, filename string, e *progress.Emitter) (*Result, error)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: config.UploadTimeout}
}

// progressReader reports cumulative read percent to the emitter. Hosts wrap
// the source file with it so multipart streaming doubles as upload progress.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	stage   string
	e       *progress.Emitter
	lastPct int
}

func newProgressReader(f *os.File, stage string, e *progress.Emitter) *progressReader {
	var total int64
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	return &progressReader{r: f, total: total, stage: stage, e: e, lastPct: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.e != nil && p.total > 0 {
		pct := int(float64(p.read) / float64(p.total) * 100)
		if pct != p.lastPct {
			p.lastPct = pct
			p.e.StageAt(p.stage, float64(pct))
		}
	}
	return n, err
}
