package main

import (
	"github.com/urfave/cli/v2"

	"github.com/Solar-network/go-slp/chain"
)

var (
	initCommand = &cli.Command{
		Action:    initDatabase,
		Name:      "init",
		Usage:     "Load the network configuration and create the ledger database",
		ArgsUsage: " ",
		Description: `
Validates {network}.json and milestones.json from the data directory
and creates the ledger database so a later run starts immediately.
`,
	}
	cleanCommand = &cli.Command{
		Action:    cleanDatabase,
		Name:      "clean",
		Usage:     "Drop the derived state, keeping the journal",
		ArgsUsage: " ",
		Description: `
Removes contracts, wallets, rejected copies and verdicts, and flags the
mark file for rebuild. The next run replays the journal instead of
downloading blocks again.
`,
	}
	resetCommand = &cli.Command{
		Action:    resetDatabase,
		Name:      "reset",
		Usage:     "Drop the whole ledger, journal included",
		ArgsUsage: " ",
		Description: `
Removes everything clean removes, plus the journal and the back-fill
mark. The next run downloads the chain from the first milestone.
`,
	}
	subscribeCommand = &cli.Command{
		Action:    subscribeWebhook,
		Name:      "subscribe",
		Usage:     "Register the block.applied webhook on the webhook peer",
		ArgsUsage: " ",
	}
	unsubscribeCommand = &cli.Command{
		Action:    unsubscribeWebhook,
		Name:      "unsubscribe",
		Usage:     "Drop the block.applied webhook from the webhook peer",
		ArgsUsage: " ",
	}
)

func initDatabase(ctx *cli.Context) error {
	config, datadir, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	store, err := openStore(config, datadir)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Infof("network %q initialized in %s", config.Name, datadir)
	return nil
}

func cleanDatabase(ctx *cli.Context) error {
	config, datadir, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	store, err := openStore(config, datadir)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Info("dropping derived state...")
	if err := store.DropState(); err != nil {
		return err
	}
	mark := chain.LoadMark(datadir, config.DatabaseName())
	mark.Rebuild = true
	return mark.Dump(datadir, config.DatabaseName())
}

func resetDatabase(ctx *cli.Context) error {
	config, datadir, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	store, err := openStore(config, datadir)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Info("dropping the whole ledger...")
	if err := store.DropState(); err != nil {
		return err
	}
	if err := store.DropJournal(); err != nil {
		return err
	}
	chain.ClearMark(datadir, config.DatabaseName())
	log.Info("reset done")
	return nil
}

func subscribeWebhook(ctx *cli.Context) error {
	config, datadir, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	listen := publicAddress(ctx)
	return chain.Subscribe(newClient(), config, datadir, listen)
}

func unsubscribeWebhook(ctx *cli.Context) error {
	config, datadir, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	return chain.Unsubscribe(newClient(), config, datadir)
}

// publicAddress is the host:port webhook deliveries must reach.
func publicAddress(ctx *cli.Context) string {
	if public := ctx.String(publicFlag.Name); public != "" {
		return trimScheme(public)
	}
	return ctx.String(listenFlag.Name)
}

func trimScheme(url string) string {
	for _, scheme := range []string{"http://", "https://"} {
		if len(url) > len(scheme) && url[:len(scheme)] == scheme {
			return url[len(scheme):]
		}
	}
	return url
}
