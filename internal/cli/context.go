// Package cli provides the command-line interface for wikimirror.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/wikimirror/wikimirror/internal/app"
)

// SetApp stores the Application for commands to retrieve.
func SetApp(cmd *cobra.Command, a *app.Application) {
	if cmd == nil {
		return
	}
	globalApp = a
}

// GetApp retrieves the Application.
func GetApp() *app.Application {
	return globalApp
}

// GetAppFromCmd retrieves the Application for a command.
func GetAppFromCmd(_ *cobra.Command) *app.Application {
	return globalApp
}

var globalApp *app.Application
