package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Solar-network/go-slp/chain"
	"github.com/Solar-network/go-slp/core"
	"github.com/Solar-network/go-slp/logutil"
	"github.com/Solar-network/go-slp/node"
)

// backfillTimeout is the base-layer RPC timeout; busy peers serve
// large transaction pages slowly.
const backfillTimeout = 30 * time.Second

var (
	runCommand = &cli.Command{
		Action:    runNode,
		Name:      "run",
		Usage:     "Run the SLP node",
		ArgsUsage: " ",
		Description: `
Starts the whole node: the back-fill processor, the block parser, the
gossip workers and the HTTP surface. Subscribes the base-layer webhook
when no subscription exists yet.
`,
	}
	deployCommand = &cli.Command{
		Action:    deployService,
		Name:      "deploy",
		Usage:     "Write a systemd unit running this node",
		ArgsUsage: " ",
	}
)

func newClient() *chain.HTTPClient {
	return chain.NewHTTPClient(backfillTimeout)
}

func runNode(ctx *cli.Context) error {
	config, datadir, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	writer, err := logutil.ConfigurePersistentLogging(datadir, config.DatabaseName())
	if err != nil {
		return err
	}
	defer writer.Close()

	store, err := openStore(config, datadir)
	if err != nil {
		return err
	}
	defer store.Close()
	engine := core.NewEngine(store, config)
	client := newClient()

	// a clean run left the journal without derived state: replay it
	// before touching the network
	mark := chain.LoadMark(datadir, config.DatabaseName())
	if mark.Rebuild {
		if err := engine.Replay(); err != nil {
			return err
		}
		mark.Rebuild = false
		if err := mark.Dump(datadir, config.DatabaseName()); err != nil {
			return err
		}
	}

	if !chain.Subscribed(datadir, config) {
		if err := chain.Subscribe(client, config, datadir, publicAddress(ctx)); err != nil {
			log.WithError(err).Error("webhook subscription failed, relying on back-fill only")
		}
	}

	parser := chain.NewParser(client, config, store, engine)
	parser.Start()
	defer parser.Stop()
	processor := chain.NewProcessor(client, config, store, parser, datadir)
	processor.Start()
	defer processor.Stop()

	public := ctx.String(publicFlag.Name)
	if public == "" {
		public = "http://" + ctx.String(listenFlag.Name)
	}
	transport := node.NewHTTPTransport(10 * time.Second)
	n := node.New(config, store, transport, datadir, public)
	n.AttachPipeline(parser, processor.Active)
	n.Start()
	defer n.Stop()
	go n.ScanTopology(client)

	server := node.NewServer(n, ctx.String(listenFlag.Name))
	errc := server.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Infof("got %s, shutting down...", s)
	case err := <-errc:
		if err != nil {
			log.WithError(err).Error("HTTP surface failed")
		}
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdown)
}

const unitTemplate = `[Unit]
Description=Side Ledger Protocol node
After=network.target

[Service]
User=%s
ExecStart=%s run --datadir %s --network %s
Restart=always

[Install]
WantedBy=multi-user.target
`

// deployService writes gslp.service next to the data directory; moving
// it into /etc/systemd/system stays a manual, privileged step.
func deployService(ctx *cli.Context) error {
	_, datadir, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "root"
	}
	unit := fmt.Sprintf(unitTemplate, user, executable, datadir, ctx.String(networkFlag.Name))
	path := filepath.Join(datadir, clientIdentifier+".service")
	if err := os.WriteFile(path, []byte(unit), 0644); err != nil {
		return err
	}
	fmt.Printf("unit written to %s\n", path)
	fmt.Printf("install it with:\n  sudo mv %s /etc/systemd/system/\n  sudo systemctl enable --now %s\n",
		path, clientIdentifier)
	return nil
}
