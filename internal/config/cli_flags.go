package config

import "github.com/spf13/cobra"

// RegisterFlags registers the shared CLI flags on the root command.
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json", false, "Emit JSON logs instead of console output")
	cmd.PersistentFlags().String("timeout", "30s", "Hard timeout per request")
	cmd.PersistentFlags().String("user-agent", "", "Custom user agent string")
}

// RegisterMirrorFlags registers the flags of the mirror command.
func RegisterMirrorFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	f := cmd.Flags()
	f.String("output", "output.zim.zip", "Archive file to produce")
	f.IntP("speed", "s", DefaultSpeed, "Base worker concurrency")
	f.String("format", "", "Format flags, any of: nopic, novid, nodet, nozim")
	f.String("article-list", "", "File with one article title per line")
	f.String("main-page", "", "Override the wiki's main page")
	f.String("creator", DefaultCreatorName, "Creator name written into article footers")
	f.String("admin-email", "", "Contact email appended to the user agent")
	f.String("username", "", "Wiki account for the optional login")
	f.String("password", "", "Password for --username (keyring is consulted when empty)")
	f.String("redis", "", "Redis address for persistent stores and the blob cache")
	f.String("cache-dir", DefaultCacheDir, "Run-local response cache directory")
	f.Bool("skip-cache-cleaning", false, "Keep response cache entries from earlier runs")
	f.Bool("skip-optim", false, "Disable the image optimisation pipeline")
	f.Bool("keep-empty-paragraphs", false, "Skip empty-section pruning")
	f.Bool("minify", false, "Minify the produced HTML")
	f.Bool("no-local-parser", false, "Abort instead of spawning the local parser fallback")
}
