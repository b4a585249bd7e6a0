package flags

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

// NewApp creates an app with sane defaults.
func NewApp(version, usage string) *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Version = version
	app.Usage = usage
	app.EnableBashCompletion = true
	return app
}
