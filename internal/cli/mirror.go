// internal/cli/mirror.go
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/auth"
	"github.com/wikimirror/wikimirror/internal/config"
	"github.com/wikimirror/wikimirror/internal/downloader"
	"github.com/wikimirror/wikimirror/internal/scraper"
	"github.com/wikimirror/wikimirror/internal/ui"
	"github.com/wikimirror/wikimirror/internal/urlutil"
	"github.com/wikimirror/wikimirror/internal/wiki"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror <wiki-url>",
	Short: "Mirror a wiki into an offline archive",
	Long: `Mirror enumerates the wiki's articles, fetches each one with its media
and style dependencies, rewrites links to archive-local paths and
packages everything into a single archive file.`,
	Args: cobra.ExactArgs(1),
	RunE: runMirror,
}

func init() {
	config.RegisterMirrorFlags(mirrorCmd)
	mirrorCmd.Flags().String("api-path", "w/api.php", "Path of api.php under the wiki URL")
	rootCmd.AddCommand(mirrorCmd)
}

func runMirror(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	cfg := a.Config
	ctx := cmd.Context()

	wikiURL := strings.TrimSuffix(args[0], "/")
	if err := urlutil.ValidateURL(wikiURL); err != nil {
		return err
	}
	apiPath, _ := cmd.Flags().GetString("api-path")
	apiURL := wikiURL + "/" + strings.Trim(apiPath, "/")

	// Optional login before anything else touches the API.
	if cfg.Username != "" {
		password, err := auth.ResolvePassword(cfg.Username, cfg.Password)
		if err != nil {
			return err
		}
		creds := auth.Credentials{Username: cfg.Username, Password: password}
		if err := auth.Login(ctx, a.Downloader.HTTPClient(), apiURL, creds); err != nil {
			return err
		}
	}

	var articleList []string
	if cfg.ArticleListPath != "" {
		var err error
		articleList, err = readArticleList(cfg.ArticleListPath)
		if err != nil {
			return err
		}
	}

	var writer archive.Writer
	if cfg.NoZim {
		writer = archive.NewDirWriter(strings.TrimSuffix(cfg.OutputPath, ".zip"))
	} else {
		writer = archive.NewZipWriter(cfg.OutputPath)
	}

	var local *downloader.LocalRenderer
	if !cfg.NoLocalParser {
		local = &downloader.LocalRenderer{}
	}

	s := scraper.New(scraper.Options{
		Wiki:                wiki.New(apiURL, "_", a.Downloader),
		Downloader:          a.Downloader,
		Writer:              writer,
		Stores:              a.Stores,
		ResponseCache:       a.Cache,
		Speed:               cfg.Speed,
		ArticleList:         articleList,
		MainPage:            cfg.MainPage,
		CreatorName:         cfg.CreatorName,
		NoPictures:          cfg.NoPictures,
		NoVideos:            cfg.NoVideos,
		NoDetails:           cfg.NoDetails,
		Minify:              cfg.Minify,
		KeepEmptyParagraphs: cfg.KeepEmptyParagraphs,
		LocalRenderer:       local,
	})

	if err := s.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error("mirror failed: "+err.Error()))
		return err
	}

	status := s.Status()
	fmt.Println(ui.Success(fmt.Sprintf(
		"All dumping(s) finished with success (%d articles, %d files; %d/%d failed)",
		status.Articles.Successes(), status.Files.Successes(),
		status.Articles.Failures(), status.Files.Failures(),
	)))
	return nil
}

// readArticleList reads one title per line, skipping blanks and
// comments. Spaces become the title delimiter.
func readArticleList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening article list: %w", err)
	}
	defer f.Close()

	var titles []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		titles = append(titles, strings.ReplaceAll(line, " ", "_"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading article list: %w", err)
	}
	return titles, nil
}
