package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/worker"
)

type formatEntry struct {
	ID         string  `json:"id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps,omitempty"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	Filesize   int64   `json:"filesize,omitempty"`
	TBR        float64 `json:"tbr,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// handleFormats lists the available yt-dlp formats for a URL. Synchronous;
// metadata fetches do not go through the task runner.
func (h *Handlers) handleFormats(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if msg := validateURL(rawURL); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.MetadataTimeout)
	defer cancel()

	args := []string{"--force-ipv4", "-J", rawURL}
	if _, err := os.Stat(config.CookiesFile); err == nil {
		args = append([]string{"--cookies", config.CookiesFile}, args...)
	}
	out, err := exec.CommandContext(ctx, config.YtdlpPath, args...).Output()
	if err != nil {
		respondError(w, http.StatusBadGateway, "Could not fetch formats for this URL.")
		return
	}

	var info struct {
		Title    string  `json:"title"`
		Duration float64 `json:"duration"`
		Formats  []struct {
			FormatID   string  `json:"format_id"`
			Ext        string  `json:"ext"`
			Resolution string  `json:"resolution"`
			FPS        float64 `json:"fps"`
			VCodec     string  `json:"vcodec"`
			ACodec     string  `json:"acodec"`
			Filesize   int64   `json:"filesize"`
			TBR        float64 `json:"tbr"`
			Note       string  `json:"format_note"`
		} `json:"formats"`
	}
	if err := json.Unmarshal(out, &info); err != nil {
		respondError(w, http.StatusBadGateway, "Unreadable format listing.")
		return
	}

	formats := make([]formatEntry, 0, len(info.Formats))
	var raw []string
	for _, f := range info.Formats {
		entry := formatEntry{
			ID:         f.FormatID,
			Ext:        f.Ext,
			Resolution: f.Resolution,
			FPS:        f.FPS,
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
			Filesize:   f.Filesize,
			TBR:        f.TBR,
			Note:       f.Note,
		}
		formats = append(formats, entry)
		raw = append(raw, fmt.Sprintf("%-8s %-5s %-12s %s", f.FormatID, f.Ext, f.Resolution, f.Note))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"title":    info.Title,
		"duration": info.Duration,
		"formats":  formats,
		"raw":      strings.Join(raw, "\n"),
	})
}

// parseEncodeForm reads the shared encode fields. Returns nil when the
// codec is "none" with no processing requested in a download context.
func parseEncodeForm(r *http.Request) (worker.EncodeRequest, string) {
	req := worker.EncodeRequest{
		Codec:         formValueOr(r, "codec", "none"),
		Preset:        formValueOr(r, "preset", "medium"),
		PassMode:      formValueOr(r, "pass_mode", "1-pass"),
		Bitrate:       intFormValue(r, "bitrate", 0),
		CRF:           intFormValue(r, "crf", 0),
		AudioBitrate:  intFormValue(r, "audio_bitrate", 0),
		FPS:           r.FormValue("fps"),
		Scale:         r.FormValue("scale"),
		ForceStereo:   boolFormValue(r, "force_stereo"),
		AQMode:        formValueOr(r, "aq_mode", "2"),
		VarianceBoost: formValueOr(r, "variance_boost", "2"),
		Tiles:         r.FormValue("tiles"),
		EnableVMAF:    boolFormValue(r, "enable_vmaf"),
	}

	if !config.Contains(config.AllowedCodecs, req.Codec) {
		return req, "Unknown codec."
	}
	if !config.Contains(config.AllowedPassModes, req.PassMode) {
		return req, "Unknown pass mode."
	}
	if req.Scale != "" {
		if _, ok := config.ScaleTags[req.Scale]; !ok {
			return req, "Unknown scale value."
		}
	}
	if req.PassMode == "2-pass" && req.Bitrate < 100 {
		return req, "Bitrate required for 2-pass."
	}
	if req.FPS != "" && validateTimeParam(req.FPS) == "" {
		return req, "Invalid FPS value."
	}
	return req, ""
}

// parseProviders returns the upload chain requested by the form.
func parseProviders(r *http.Request) ([]string, string) {
	providers := r.Form["providers"]
	for _, name := range config.AllowedProviders {
		if boolFormValue(r, "upload_"+name) {
			providers = append(providers, name)
		}
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range providers {
		if !config.Contains(config.AllowedProviders, p) {
			return nil, "Unknown upload provider: " + p
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, ""
}

func (h *Handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	rawURL := r.FormValue("url")
	if msg := validateURL(rawURL); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	videoID := strings.TrimSpace(r.FormValue("video_id"))
	if videoID == "" {
		respondError(w, http.StatusBadRequest, "Video format is required.")
		return
	}
	filename := strings.TrimSpace(r.FormValue("filename"))
	if filename == "" {
		respondError(w, http.StatusBadRequest, "Filename is required.")
		return
	}

	encReq, msg := parseEncodeForm(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	providers, msg := parseProviders(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	req := worker.DownloadRequest{
		URL:        rawURL,
		VideoID:    videoID,
		AudioID:    strings.TrimSpace(r.FormValue("audio_id")),
		Filename:   filename,
		UseCookies: formValueOr(r, "use_cookies", "true") != "false",
		Providers:  providers,
	}
	if encReq.Codec != "none" {
		enc := encReq
		req.Encode = &enc
	}

	h.startTask(w, "download", h.Workers.Download(req))
}

func (h *Handlers) handleDirectDownload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	rawURL := r.FormValue("url")
	if msg := validateURL(rawURL); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	providers, msg := parseProviders(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	req := worker.DirectDownloadRequest{
		URL:       rawURL,
		Username:  r.FormValue("username"),
		Password:  r.FormValue("password"),
		Referer:   r.FormValue("referer"),
		Providers: providers,
	}
	h.startTask(w, "direct-download", h.Workers.DirectDownload(req))
}

func (h *Handlers) handleMerge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	rawURL := r.FormValue("url")
	if msg := validateURL(rawURL); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	videoID := strings.TrimSpace(r.FormValue("video_id"))
	if videoID == "" {
		respondError(w, http.StatusBadRequest, "Video format is required.")
		return
	}
	filename := strings.TrimSpace(r.FormValue("filename"))
	if filename == "" {
		respondError(w, http.StatusBadRequest, "Filename is required.")
		return
	}
	providers, msg := parseProviders(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	req := worker.MergeRequest{
		URL:       rawURL,
		VideoID:   videoID,
		AudioID:   strings.TrimSpace(r.FormValue("audio_id")),
		Filename:  filename,
		Providers: providers,
	}
	h.startTask(w, "merge", h.Workers.Merge(req))
}
