// Package worker holds the long-running task bodies: download, encode,
// merge, trim and upload. Each worker receives the task's Emitter and the
// shared process Handle from the runner and must leave exactly one terminal
// event behind; the runner backstops workers that forget.
package worker

import (
	"bufio"
	"errors"
	"io"
	"log"
	"os/exec"
	"strings"

	"github.com/mboyle85/grabdeck/internal/hosts"
	"github.com/mboyle85/grabdeck/internal/progress"
	"github.com/mboyle85/grabdeck/internal/task"
)

// ErrCancelled marks a subprocess that exited because the stop endpoint
// killed it.
var ErrCancelled = errors.New("task cancelled")

// Workers bundles the dependencies every task body needs. Uploaders are keyed
// by provider name in the order they should be attempted.
type Workers struct {
	Uploaders map[string]hosts.Uploader
	History   *hosts.History
}

func New(uploaders []hosts.Uploader, history *hosts.History) *Workers {
	m := make(map[string]hosts.Uploader, len(uploaders))
	for _, u := range uploaders {
		m[u.Name()] = u
	}
	return &Workers{Uploaders: m, History: history}
}

// tailBuffer keeps the last few output lines so a failed subprocess can
// report something more useful than an exit code.
type tailBuffer struct {
	lines []string
}

const tailKeep = 40

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > tailKeep {
		t.lines = t.lines[1:]
	}
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}

// runCommand starts the binary, registers it on the handle so the stop
// endpoint can kill it, and streams merged stdout+stderr to onLine one line
// at a time. Returns the output tail plus the wait error; a kill via the
// handle comes back as ErrCancelled.
func runCommand(h *task.Handle, name string, args []string, onLine func(string)) (string, error) {
	cmd := exec.Command(name, args...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return "", err
	}
	h.Set(cmd)

	var tail tailBuffer
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail.add(line)
			if onLine != nil {
				onLine(line)
			}
		}
	}()

	err := cmd.Wait()
	pw.Close()
	<-scanDone
	h.Clear()

	if h.WasCancelled() {
		return tail.String(), ErrCancelled
	}
	return tail.String(), err
}

// fail ends the stream, distinguishing a user stop from a real failure.
func fail(e *progress.Emitter, h *task.Handle, err error) {
	if errors.Is(err, ErrCancelled) || h.WasCancelled() {
		e.Cancel("")
		return
	}
	log.Printf("[%s] task failed: %v", shortID(e.TaskID()), err)
	e.Fail(err)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
