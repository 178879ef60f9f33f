package config

import (
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

var Version = "dev"

var (
	Port    string
	EnvMode string

	DownloadDir string
	CookiesFile string
	HistoryFile string

	CORSOriginsFile = "cors-origins.txt"

	FFmpegPath  string
	FFprobePath string
	YtdlpPath   string

	PixeldrainKey string
	FourStreamKey string
	GofileToken   string

	DiscordWebhookURL string
	DiscordPingUserID string
	DiscordAlerts     bool
)

// StreamIdleLimit is how long a progress stream waits for the next event
// before giving up on the task. A var so tests can shrink it.
var StreamIdleLimit = 30 * time.Second

const (
	DiskSpaceMinGB   = 2
	MaxURLLength     = 2048
	MaxMergeFiles    = 20
	HistoryCap       = 100
	RateLimitWindow  = 60 * time.Second
	RateLimitMax     = 120
	StopKillWait     = 2 * time.Second
	UploadTimeout    = 10 * time.Minute
	HostAPITimeout   = 10 * time.Second
	MetadataTimeout  = 60 * time.Second
	GofileFallbackWT = "4fd6sg89d7s6"
)

// Scale values accepted by the encode form, mapped to the filename tag
// appended to scaled outputs.
var ScaleTags = map[string]string{
	"1920:-2": "1080p",
	"1280:-2": "720p",
	"854:-2":  "480p",
	"640:-2":  "360p",
}

var (
	AllowedCodecs = []string{
		"none", "copy_video",
		"h265", "h265_copy_audio",
		"av1", "av1_copy_audio",
	}
	AllowedPassModes = []string{"1-pass", "2-pass"}
	AllowedProviders = []string{"pixeldrain", "4stream", "gofile"}
)

var VideoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".3gp": true, ".mpg": true,
	".mpeg": true, ".ts": true, ".vob": true,
}

var AudioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".aac": true, ".ogg": true,
	".wma": true, ".m4a": true, ".opus": true,
}

func Load() {
	Port = envOrDefault("PORT", "5000")
	EnvMode = envOrDefault("ENV_MODE", "development")

	DownloadDir = envOrDefault("DOWNLOAD_DIR", "downloads")
	if abs, err := filepath.Abs(DownloadDir); err == nil {
		DownloadDir = abs
	}
	CookiesFile = envOrDefault("COOKIES_FILE", "cookies.txt")
	CORSOriginsFile = envOrDefault("CORS_ORIGINS_FILE", CORSOriginsFile)
	HistoryFile = envOrDefault("GOFILE_HISTORY_FILE", filepath.Join(DownloadDir, ".gofile_history.json"))

	FFmpegPath = findCommand("ffmpeg")
	FFprobePath = findCommand("ffprobe")
	YtdlpPath = findCommand("yt-dlp")

	PixeldrainKey = os.Getenv("PIXELDRAIN_API_KEY")
	FourStreamKey = os.Getenv("UP4STREAM_API_KEY")
	GofileToken = os.Getenv("GOFILE_API_TOKEN")

	DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	DiscordPingUserID = os.Getenv("DISCORD_PING_USER_ID")
	DiscordAlerts = DiscordWebhookURL != ""

	if err := os.MkdirAll(DownloadDir, 0755); err != nil {
		log.Printf("[Config] Failed to create download dir %s: %v", DownloadDir, err)
	}
}

var commonBinPaths = []string{"/usr/bin", "/usr/local/bin", "/opt/bin"}

// findCommand resolves an external binary: env override, then PATH, then
// common locations. Falls back to the bare name so the failure surfaces at
// run time with a useful error.
func findCommand(name string) string {
	envKey := ""
	switch name {
	case "ffmpeg":
		envKey = "FFMPEG_PATH"
	case "ffprobe":
		envKey = "FFPROBE_PATH"
	case "yt-dlp":
		envKey = "YTDLP_PATH"
	}
	if envKey != "" {
		if p := os.Getenv(envKey); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}
			log.Printf("[Config] %s=%s does not exist, ignoring", envKey, p)
		}
	}

	if p, err := exec.LookPath(name); err == nil {
		return p
	}

	for _, dir := range commonBinPaths {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}

	return name
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func Contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
