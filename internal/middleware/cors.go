package middleware

import (
	"bufio"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/cors"

	"github.com/mboyle85/grabdeck/internal/config"
)

// LoadCORS builds the CORS layer from the origins allowlist file. With an
// allowlist, credentialed requests are permitted from those origins only;
// without one the panel stays reachable from anywhere, but credentials are
// refused so an open instance cannot be ridden by another site.
func LoadCORS() func(http.Handler) http.Handler {
	origins, err := readOrigins(config.CORSOriginsFile)
	if err == nil && len(origins) > 0 {
		log.Printf("[CORS] Allowing %d origins from %s", len(origins), config.CORSOriginsFile)
		return cors.Handler(corsOptions(origins, true))
	}

	log.Printf("[CORS] No %s found; allowing all origins without credentials", config.CORSOriginsFile)
	return cors.Handler(corsOptions([]string{"*"}, false))
}

func corsOptions(origins []string, credentials bool) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: credentials,
		MaxAge:           86400,
	}
}

// readOrigins parses the allowlist file: one origin per line, blank lines
// and #-comments skipped.
func readOrigins(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var origins []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		origins = append(origins, line)
	}
	return origins, scanner.Err()
}
