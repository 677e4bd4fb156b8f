package downloader

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wikimirror/wikimirror/internal/urlutil"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// LocalRenderer describes the subprocess fallback spawned when neither
// remote rendering endpoint answers the probe.
type LocalRenderer struct {
	ParsoidCommand string // defaults to "parsoid"
	MCSCommand     string // defaults to "mcs"
	Port           int    // defaults to 6927

	processes []*exec.Cmd
}

// ProbeCapabilities checks the mobile-sections and visual-editor
// endpoints against the main page and points the article endpoints at
// whichever path answered. With both remote paths down, the local
// renderer is spawned when provided; otherwise the error is fatal.
func (d *Downloader) ProbeCapabilities(ctx context.Context, meta *models.WikiMetadata, local *LocalRenderer) (models.Capabilities, error) {
	caps := models.Capabilities{Coordinates: true}
	mainPage := urlutil.EncodeArticleID(meta.MainPage)

	restBase := meta.RestURL + "page/mobile-sections/"
	if d.probeEndpoint(ctx, restBase+mainPage) {
		caps.RestAPI = true
	}

	veBase := meta.VisualEditorURL + "?action=visualeditor&mobileformat=html&format=json&paction=parse&page="
	if d.probeEndpoint(ctx, veBase+mainPage) {
		caps.VisualEditor = true
	}

	parseBase := meta.APIURL + "?action=parse&format=json&prop=modules%7Cjsconfigvars%7Cheadhtml%7Ctext&page="

	switch {
	case caps.RestAPI:
		d.baseURL = restBase
	case caps.VisualEditor:
		d.baseURL = veBase
	}
	// The main page is always rendered through the desktop path.
	if caps.VisualEditor {
		d.baseURLForMainPage = veBase
	} else {
		d.baseURLForMainPage = parseBase
	}

	if !caps.RestAPI && !caps.VisualEditor {
		if local == nil {
			return caps, fmt.Errorf("neither mobile-sections nor visualeditor answered and local fallback is disabled")
		}
		if err := local.start(ctx); err != nil {
			return caps, fmt.Errorf("starting local renderer: %w", err)
		}
		localBase := fmt.Sprintf("http://localhost:%d/%s/v3/page/pagebundle/", local.Port, urlutil.StripHTTP(meta.BaseURL))
		d.baseURL = localBase
		d.baseURLForMainPage = localBase
		log.Warn().Str("base", localBase).Msg("Falling back to local renderer")
	}

	log.Info().
		Bool("restApi", caps.RestAPI).
		Bool("veApi", caps.VisualEditor).
		Msg("Capability probe complete")

	return caps, nil
}

// probeEndpoint issues one non-retried GET and reports 2xx.
func (d *Downloader) probeEndpoint(ctx context.Context, url string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, d.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("Probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// start launches the parsoid and MCS subprocesses and waits for the
// service port to answer.
func (l *LocalRenderer) start(ctx context.Context) error {
	if l.ParsoidCommand == "" {
		l.ParsoidCommand = "parsoid"
	}
	if l.MCSCommand == "" {
		l.MCSCommand = "mcs"
	}
	if l.Port == 0 {
		l.Port = 6927
	}

	for _, command := range []string{l.ParsoidCommand, l.MCSCommand} {
		if _, err := exec.LookPath(command); err != nil {
			return fmt.Errorf("local renderer binary %q not found: %w", command, err)
		}
		cmd := exec.CommandContext(ctx, command) //nolint:gosec
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("starting %s: %w", command, err)
		}
		l.processes = append(l.processes, cmd)
		log.Info().Str("command", command).Int("pid", cmd.Process.Pid).Msg("Local renderer process started")
	}

	// Wait for the service to come up.
	deadline := time.Now().Add(30 * time.Second)
	probe := fmt.Sprintf("http://localhost:%d/", l.Port)
	for time.Now().Before(deadline) {
		resp, err := http.Get(probe) //nolint:gosec
		if err == nil {
			resp.Body.Close()
			return nil
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("local renderer did not answer on port %d", l.Port)
}

// Stop terminates the local renderer subprocesses.
func (l *LocalRenderer) Stop() {
	for _, cmd := range l.processes {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	l.processes = nil
}
