package downloader

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Optimizer runs downloaded bitmaps through the external optimisation
// tools before they are written to the archive: lossy PNG quantisation
// and re-compression, JPEG optimisation, GIF optimisation.
type Optimizer struct {
	tmpDir string
}

// optimizerBinaries are required on PATH unless optimisation is
// disabled; a missing binary is a fatal configuration error.
var optimizerBinaries = []string{"pngquant", "advpng", "jpegoptim", "gifsicle"}

// NewOptimizer verifies the external binaries and prepares a scratch
// directory.
func NewOptimizer(tmpDir string) (*Optimizer, error) {
	for _, bin := range optimizerBinaries {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, fmt.Errorf("image optimisation binary %q not found: %w", bin, err)
		}
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating optimizer scratch dir: %w", err)
	}
	return &Optimizer{tmpDir: tmpDir}, nil
}

// Optimize runs the pipeline matching the content type and returns the
// optimised bytes. Unknown types pass through unchanged.
func (o *Optimizer) Optimize(contentType string, data []byte) ([]byte, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/png"):
		return o.run(data, ".png",
			[]string{"pngquant", "--force", "--skip-if-larger", "--ext", ".png", "--speed", "3"},
			[]string{"advpng", "-z", "-4"},
		)
	case strings.HasPrefix(ct, "image/jpeg"):
		return o.run(data, ".jpg",
			[]string{"jpegoptim", "--strip-all", "-m60"},
		)
	case strings.HasPrefix(ct, "image/gif"):
		return o.run(data, ".gif",
			[]string{"gifsicle", "-O3", "--batch"},
		)
	default:
		return data, nil
	}
}

// run writes data to a scratch file, applies each command in-place and
// reads the result back. A failing step keeps the previous bytes.
func (o *Optimizer) run(data []byte, ext string, commands ...[]string) ([]byte, error) {
	f, err := os.CreateTemp(o.tmpDir, "optim-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("creating scratch file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing scratch file: %w", err)
	}
	f.Close()

	for _, argv := range commands {
		cmd := exec.Command(argv[0], append(argv[1:], path)...) //nolint:gosec
		if out, err := cmd.CombinedOutput(); err != nil {
			log.Debug().
				Str("tool", argv[0]).
				Str("file", filepath.Base(path)).
				Str("output", strings.TrimSpace(string(out))).
				Err(err).
				Msg("Optimisation step failed, keeping current bytes")
		}
	}

	optimised, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading optimised file: %w", err)
	}
	if len(optimised) == 0 || len(optimised) >= len(data) {
		return data, nil
	}
	return optimised, nil
}
