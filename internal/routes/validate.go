package routes

import (
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mboyle85/grabdeck/internal/config"
	"github.com/mboyle85/grabdeck/internal/fsutil"
)

var (
	timeRe = regexp.MustCompile(`^(?:(\d{1,2}):)?(\d{1,2}):(\d{1,2}(?:\.\d+)?)$`)
	numRe  = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// validateURL rejects anything that is not a public http(s) URL. Keeps
// yt-dlp and the direct downloader away from internal services.
func validateURL(rawURL string) string {
	if rawURL == "" {
		return "URL is required"
	}
	if len(rawURL) > config.MaxURLLength {
		return "URL is too long"
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "Invalid URL format"
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "Only HTTP/HTTPS URLs are allowed"
	}
	if isPrivateHost(strings.ToLower(parsed.Hostname())) {
		return "Private/local URLs are not allowed"
	}
	return ""
}

var privateNets []*net.IPNet

func init() {
	cidrs := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"0.0.0.0/8",
		"169.254.0.0/16",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, _ := net.ParseCIDR(cidr)
		privateNets = append(privateNets, network)
	}
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isPrivateHost(hostname string) bool {
	if hostname == "" || hostname == "localhost" {
		return true
	}

	ip := net.ParseIP(hostname)
	if ip == nil {
		ip = net.ParseIP(strings.Trim(hostname, "[]"))
	}
	if ip != nil {
		return isPrivateIP(ip)
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return true
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return true
		}
	}
	return false
}

// validateTimeParam accepts "SS", "MM:SS" or "HH:MM:SS" forms; anything
// else comes back empty.
func validateTimeParam(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if numRe.MatchString(value) || timeRe.MatchString(value) {
		return value
	}
	return ""
}

// resolveDownloadPath maps a user-supplied relative path to an absolute one
// inside the download dir, refusing traversal.
func resolveDownloadPath(rel string) (string, bool) {
	if rel == "" || strings.Contains(rel, "..") {
		return "", false
	}
	abs := filepath.Join(config.DownloadDir, filepath.FromSlash(rel))
	if !fsutil.WithinRoot(config.DownloadDir, abs) {
		return "", false
	}
	return abs, true
}
