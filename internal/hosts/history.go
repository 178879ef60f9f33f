package hosts

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mboyle85/grabdeck/internal/config"
)

// HistoryEntry is one recorded upload. Kept in a small JSON file so links
// survive restarts.
type HistoryEntry struct {
	Name string `json:"name"`
	Link string `json:"link"`
	Host string `json:"host"`
	Size string `json:"size,omitempty"`
	Date string `json:"date"`
}

// History persists upload results, newest first, capped and deduplicated by
// link.
type History struct {
	path string
	mu   sync.Mutex
}

func NewHistory(path string) *History {
	return &History{path: path}
}

func (h *History) load() []HistoryEntry {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil
	}
	var entries []HistoryEntry
	if json.Unmarshal(data, &entries) != nil {
		return nil
	}
	return entries
}

func (h *History) save(entries []HistoryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(h.path, data, 0o644), "write history")
}

// Add prepends an entry, dropping any older entry with the same link and
// trimming to the cap.
func (h *History) Add(entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry.Date == "" {
		entry.Date = time.Now().Format(time.RFC3339)
	}

	entries := h.load()
	kept := make([]HistoryEntry, 0, len(entries)+1)
	kept = append(kept, entry)
	for _, e := range entries {
		if e.Link != entry.Link {
			kept = append(kept, e)
		}
	}
	if len(kept) > config.HistoryCap {
		kept = kept[:config.HistoryCap]
	}
	return h.save(kept)
}

// List returns all recorded entries, newest first.
func (h *History) List() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

// RemoveLinks drops every entry whose link is in the given set.
func (h *History) RemoveLinks(links []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]bool, len(links))
	for _, l := range links {
		drop[l] = true
	}
	entries := h.load()
	kept := entries[:0]
	for _, e := range entries {
		if !drop[e.Link] {
			kept = append(kept, e)
		}
	}
	return h.save(kept)
}

// Replace overwrites the history wholesale. Used when rebuilding from the
// remote account listing.
func (h *History) Replace(entries []HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(entries) > config.HistoryCap {
		entries = entries[:config.HistoryCap]
	}
	return h.save(entries)
}
