package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/utils"
)

var logger = utils.GetLogger("main")

func setLoggerLevel(c *cli.Context) {
	switch {
	case c.Bool("quiet"):
		utils.SetLogLevel(logrus.WarnLevel)
	case c.Bool("verbose"):
		utils.SetLogLevel(logrus.DebugLevel)
	default:
		utils.SetLogLevel(logrus.InfoLevel)
	}
}

func loadSettings(c *cli.Context) (*settings.Settings, error) {
	return settings.New(settings.NewDirs())
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "turn on debug logging"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only show warnings and errors"},
	}
}

func main() {
	app := &cli.App{
		Name:  "supertag",
		Usage: "a tag-based filesystem",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			mountFlags(),
			unmountFlags(),
			lnFlags(),
			mvFlags(),
			rmFlags(),
			rmdirFlags(),
			fstabFlags(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Fatalf("%s", err)
	}
}
