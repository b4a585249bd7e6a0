// gslp is the Side Ledger Protocol node: it indexes SLP contracts
// carried by base-layer transactions and gossips proof of history with
// its peers.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Solar-network/go-slp/core"
	"github.com/Solar-network/go-slp/internal/flags"
	"github.com/Solar-network/go-slp/logutil"
	"github.com/Solar-network/go-slp/params"
	"github.com/Solar-network/go-slp/slpdb/leveldb"
)

const clientIdentifier = "gslp"

var log = logrus.WithField("prefix", "gslp")

var (
	datadirFlag = &cli.StringFlag{
		Name:     "datadir",
		Usage:    "Data directory for the databases, configuration and log files",
		Value:    defaultDataDir(),
		Category: flags.NodeCategory,
	}
	networkFlag = &cli.StringFlag{
		Name:     "network",
		Usage:    "Network configuration name ({network}.json in the data directory)",
		Value:    "sxp",
		Category: flags.NodeCategory,
	}
	listenFlag = &cli.StringFlag{
		Name:     "listen",
		Usage:    "Gossip listening address",
		Value:    "0.0.0.0:5201",
		Category: flags.NetworkingCategory,
	}
	publicFlag = &cli.StringFlag{
		Name:     "public",
		Usage:    "Public URL advertised to peers (http://ip:port)",
		Category: flags.NetworkingCategory,
	}
	logLevelFlag = &cli.StringFlag{
		Name:     "loglevel",
		Usage:    "Console logging level (overrides the network configuration)",
		Category: flags.LoggingCategory,
	}
)

var app = flags.NewApp(params.Version, "the Side Ledger Protocol node")

func init() {
	app.Flags = []cli.Flag{
		datadirFlag, networkFlag, listenFlag, publicFlag, logLevelFlag,
	}
	app.Commands = []*cli.Command{
		runCommand,
		initCommand,
		cleanCommand,
		resetCommand,
		subscribeCommand,
		unsubscribeCommand,
		deployCommand,
	}
	// bare gslp runs the node
	app.Action = runNode
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + clientIdentifier
	}
	return filepath.Join(home, "."+clientIdentifier)
}

// makeConfig loads the network configuration and wires the console
// logger.
func makeConfig(ctx *cli.Context) (*params.Config, string, error) {
	datadir := ctx.String(datadirFlag.Name)
	if err := os.MkdirAll(datadir, 0755); err != nil {
		return nil, "", err
	}
	config, err := params.Load(datadir, ctx.String(networkFlag.Name))
	if err != nil {
		return nil, "", err
	}
	level := ctx.String(logLevelFlag.Name)
	if level == "" {
		level = config.LogLevel()
	}
	if err := logutil.Setup(level); err != nil {
		return nil, "", err
	}
	return config, datadir, nil
}

// openStore opens (creating as needed) the node's ledger database.
func openStore(config *params.Config, datadir string) (*core.Store, error) {
	db, err := leveldb.New(
		filepath.Join(datadir, "db", config.DatabaseName()), 128, 1024, false,
	)
	if err != nil {
		return nil, err
	}
	return core.NewStore(db, config, datadir), nil
}
