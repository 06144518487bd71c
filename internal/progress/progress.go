// Package progress renders an optional terminal spinner while a crawl runs.
// The spinner is fed by the crawl engine's progress callback and draws
// nothing when its output is not a terminal.
package progress

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"

	"github.com/crawlingchimp/crawlingchimp/internal/crawler"
)

// maxURLLen bounds the URL shown next to the spinner.
const maxURLLen = 40

// clearLine moves to the start of the line and erases it.
const clearLine = "\r\033[K"

// Indicator shows the page being fetched next to a spinner. It is also an
// io.Writer for console logging, so log lines do not end up inside the
// spinner line.
type Indicator struct {
	spinner *spinner.Spinner
	out     *os.File
	tty     bool
	started bool
}

// New creates an Indicator drawing to f, typically os.Stderr.
func New(f *os.File) *Indicator {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriterFile(f))
	s.HideCursor = true
	return &Indicator{
		spinner: s,
		out:     f,
		tty:     term.IsTerminal(int(f.Fd())), //nolint:gosec // file descriptors fit in int
	}
}

// Write writes p to the spinner's output between two frames. On a terminal
// the current frame is erased first; the next frame redraws it below p.
func (i *Indicator) Write(p []byte) (int, error) {
	i.spinner.Lock()
	defer i.spinner.Unlock()

	if i.started && i.tty {
		if _, err := io.WriteString(i.out, clearLine); err != nil {
			return 0, err
		}
	}
	return i.out.Write(p)
}

// Update implements the engine's progress callback. The spinner starts on
// the first update.
func (i *Indicator) Update(p crawler.Progress) {
	i.spinner.Lock()
	i.spinner.Suffix = Message(p)
	i.spinner.Unlock()

	if !i.started {
		i.spinner.Start()
		i.started = true
	}
}

// Stop clears the spinner. It is safe to call more than once.
func (i *Indicator) Stop() {
	if i.started {
		i.spinner.Stop()
		i.started = false
	}
}

// Message formats p as the spinner suffix.
func Message(p crawler.Progress) string {
	return fmt.Sprintf(" [%d/%d] depth %d %s (%d queued)",
		p.PagesFetched+1, p.MaxPages, p.Depth, shortenURL(p.Current, maxURLLen), p.Queued)
}

// shortenURL keeps the host and the tail of the path within maxLen.
func shortenURL(rawURL string, maxLen int) string {
	if len(rawURL) <= maxLen {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "..." + rawURL[len(rawURL)-maxLen+3:]
	}

	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	room := maxLen - len(u.Host) - 3
	if room <= 0 {
		return u.Host
	}
	if len(path) > room {
		path = "..." + path[len(path)-room:]
	}
	return u.Host + path
}
