// internal/cli/root.go
package cli

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wikimirror/wikimirror/internal/app"
	"github.com/wikimirror/wikimirror/internal/config"
)

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "wikimirror",
	Short:   "Produce an offline archive of a MediaWiki instance",
	Long:    `Wikimirror fetches a wiki's articles, media and styles and packages them into a single offline archive.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and runs it.
// Called by main.main(); exits non-zero on fatal errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd)

	// The application is initialized lazily so -h/--help stays cheap.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetAppFromCmd(cmd) != nil {
			return nil
		}

		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}

		appCtx, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		SetApp(cmd, appCtx)
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		appCtx := GetAppFromCmd(cmd)
		if appCtx == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), appCtx.Config.HTTPTimeout)
		defer cancel()
		if err := appCtx.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown error")
		}
		SetApp(cmd, nil)
	}
}
