package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/wikimirror/wikimirror/internal/archive"
)

// The offline page cannot call back into load.php, so the ResourceLoader
// bootstrap is patched: the startup module stops injecting its loader
// script and instead waits for a custom event, and the mediawiki module
// fires that event once it has executed.
const (
	startupNeedle   = `script=document.createElement('script');`
	startupPatch    = `document.body.addEventListener("fireStartUp",function(){startUp()},false);return;`
	mediawikiSuffix = `;document.body.dispatchEvent(new CustomEvent("fireStartUp"));`
)

// fetchModules is phase 5: every accumulated module name is fetched
// from load.php with the matching only= selector and stored as an
// asset entry.
func (s *Scraper) fetchModules(ctx context.Context) error {
	js, css := s.moduleLists()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Speed)

	for _, mod := range js {
		g.Go(func() error {
			return s.fetchOneModule(gctx, mod, "scripts")
		})
	}
	for _, mod := range css {
		g.Go(func() error {
			return s.fetchOneModule(gctx, mod, "styles")
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	configVars := s.jsConfigVars
	s.mu.Unlock()
	if configVars != "" {
		if err := s.opts.Writer.AddEntry(archive.Entry{
			Namespace: archive.NamespaceAsset,
			URL:       "j/jsConfigVars.js",
			MimeType:  "application/javascript",
			Data:      []byte(configVars),
		}); err != nil {
			return err
		}
	}

	log.Info().Int("js", len(js)).Int("css", len(css)).Msg("Modules fetched")
	return nil
}

func (s *Scraper) fetchOneModule(ctx context.Context, module, only string) error {
	query := url.Values{}
	query.Set("modules", module)
	query.Set("only", only)
	query.Set("skin", "vector")
	query.Set("lang", s.meta.LangISO2)
	u := s.loadPHPURL() + "?" + query.Encode()

	body, _, err := s.opts.Downloader.DownloadContent(ctx, u)
	if err != nil {
		log.Warn().Err(err).Str("module", module).Msg("Module fetch failed")
		return nil
	}

	entry := archive.Entry{Namespace: archive.NamespaceAsset}
	if only == "scripts" {
		entry.URL = "j/" + module + ".js"
		entry.MimeType = "application/javascript"
		entry.Data = []byte(patchModuleSource(module, string(body)))
	} else {
		entry.URL = "m/" + module + ".css"
		entry.MimeType = "text/css"
		entry.Data = body
	}
	return s.opts.Writer.AddEntry(entry)
}

func (s *Scraper) loadPHPURL() string {
	base := strings.TrimSuffix(s.meta.APIURL, "/")
	base = strings.TrimSuffix(base, "api.php")
	return base + "load.php"
}

// patchModuleSource applies the two required source edits. Modules are
// fetched once per run, so each edit happens exactly once.
func patchModuleSource(module, source string) string {
	switch module {
	case "startup":
		return strings.Replace(source, startupNeedle, startupPatch, 1)
	case "mediawiki":
		return source + mediawikiSuffix
	default:
		return source
	}
}

// jsConfigVarsScript renders the config map the way ResourceLoader
// inlines it.
func jsConfigVarsScript(vars map[string]any) string {
	encoded, err := json.Marshal(vars)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("mw.config=mw.config||{};mw.loader=mw.loader||{};window.RLQ=window.RLQ||[];RLQ.push(function(){mw.config.set(%s);});", encoded)
}
