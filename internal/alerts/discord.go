package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/mboyle85/grabdeck/internal/config"
)

var (
	mu                sync.Mutex
	categoryCooldowns = make(map[string]time.Time)
)

const (
	colorOrange = 0xFFA500
	colorRed    = 0xFF4444
	colorCrit   = 0xFF0000
	colorGreen  = 0x2ECC71
)

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp"`
	Footer      *footer `json:"footer,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type footer struct {
	Text string `json:"text"`
}

type payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

func send(category string, cooldown time.Duration, ping bool, color int, title, description string, fields map[string]string) {
	if !config.DiscordAlerts || config.DiscordWebhookURL == "" {
		return
	}

	mu.Lock()
	now := time.Now()
	if cooldown > 0 {
		if last, ok := categoryCooldowns[category]; ok && now.Sub(last) < cooldown {
			mu.Unlock()
			return
		}
	}
	categoryCooldowns[category] = now
	mu.Unlock()

	var embedFields []field
	for k, v := range fields {
		if v == "" {
			continue
		}
		if len(v) > 1024 {
			v = v[:1021] + "..."
		}
		embedFields = append(embedFields, field{Name: k, Value: v, Inline: true})
	}

	p := payload{
		Embeds: []embed{{
			Title:       title,
			Description: truncate(description, 2048),
			Color:       color,
			Fields:      embedFields,
			Timestamp:   now.UTC().Format(time.RFC3339),
			Footer:      &footer{Text: "grabdeck"},
		}},
	}

	if ping && config.DiscordPingUserID != "" {
		p.Content = fmt.Sprintf("<@%s>", config.DiscordPingUserID)
	}

	body, _ := json.Marshal(p)
	go func() {
		resp, err := http.Post(config.DiscordWebhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("[Discord] send failed: %v", err)
			return
		}
		resp.Body.Close()
	}()
}

func ServerStarted() {
	send("server-start", 0, false, colorGreen, "Server Started", fmt.Sprintf("grabdeck %s listening on :%s", config.Version, config.Port), nil)
}

func ServerStopping() {
	send("server-stop", 0, false, colorOrange, "Server Stopping", "grabdeck is shutting down", nil)
}

func DownloadFailed(taskID, url string, err error) {
	send("download", 5*time.Second, true, colorRed, "Download Failed", err.Error(), map[string]string{
		"Task":  taskID,
		"URL":   truncate(url, 200),
		"Error": truncate(err.Error(), 500),
	})
}

func EncodeFailed(taskID, file string, err error) {
	send("encode", 5*time.Second, true, colorRed, "Encode Failed", err.Error(), map[string]string{
		"Task":  taskID,
		"File":  truncate(file, 200),
		"Error": truncate(err.Error(), 500),
	})
}

func MergeFailed(taskID string, err error) {
	send("merge", 5*time.Second, true, colorRed, "Merge Failed", err.Error(), map[string]string{
		"Task":  taskID,
		"Error": truncate(err.Error(), 500),
	})
}

// UploadHostFailed covers a single host failing inside an upload chain. Not
// pinged because the chain usually still produces a link.
func UploadHostFailed(taskID, host, file string, err error) {
	send("upload-"+host, 10*time.Second, false, colorOrange, "Upload Host Failed", err.Error(), map[string]string{
		"Task":  taskID,
		"Host":  host,
		"File":  truncate(file, 200),
		"Error": truncate(err.Error(), 500),
	})
}

func DiskSpaceLow(availGB float64) {
	send("disk-space", 60*time.Second, true, colorCrit, "Disk Space Low",
		fmt.Sprintf("Only %.1f GB available in the download directory", availGB), nil)
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
