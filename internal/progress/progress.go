package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Bar reports progress of a volume walk. The number of entries on a volume
// is not known up front, so it shows a running count with the volumes and
// directories currently being scanned instead of a percentage.
type Bar struct {
	writer     io.Writer
	mu         sync.Mutex
	current    int64
	frame      int
	dirs       map[string]string // volume -> current directory
	enabled    bool
	lastUpdate time.Time
}

func New(w io.Writer) *Bar {
	return &Bar{
		writer:     w,
		dirs:       make(map[string]string),
		enabled:    true,
		lastUpdate: time.Now(),
	}
}

// NewTerminal returns a bar on stdout that only renders when stdout is a
// terminal, so piped output stays clean.
func NewTerminal() *Bar {
	b := New(os.Stdout)
	b.enabled = isTerminal(os.Stdout)
	return b
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Visit records one indexed entry of volume found in dir.
func (b *Bar) Visit(volume, dir string) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++
	b.dirs[volume] = dir

	// Update at most every 100ms to reduce flickering
	now := time.Now()
	if now.Sub(b.lastUpdate) > 100*time.Millisecond {
		b.lastUpdate = now
		b.render()
	}
}

// Done marks volume as finished.
func (b *Bar) Done(volume string) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dirs, volume)
	b.render()
}

// render must be called with mu already locked
func (b *Bar) render() {
	b.frame = (b.frame + 1) % len(spinner)

	dirs := make([]string, 0, len(b.dirs))
	for _, dir := range b.dirs {
		dirs = append(dirs, filepath.Base(dir))
	}

	var dirDisplay string
	if len(dirs) > 0 {
		if len(dirs) > 3 {
			dirDisplay = fmt.Sprintf(" | %s, %s, %s +%d more", dirs[0], dirs[1], dirs[2], len(dirs)-3)
		} else {
			dirDisplay = " | " + strings.Join(dirs, ", ")
		}
	}

	// Clear the line and write progress
	fmt.Fprintf(b.writer, "\r\033[K%s %d entries indexed%s", spinner[b.frame], b.current, dirDisplay)
}

func (b *Bar) Finish() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.dirs = make(map[string]string)
	b.render()
	fmt.Fprintf(b.writer, "\n")
}
