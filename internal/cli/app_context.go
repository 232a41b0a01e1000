package cli

import (
	"github.com/tombee/forge/internal/app"
)

// newApp constructs the wired App using the root command's persistent flags.
func newApp() (*app.App, error) {
	return app.New(app.Options{
		DatabasePath: dbPath,
		RepoRoot:     repoRoot,
		ConfigPath:   configPath,
	})
}
