package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redbco/redb-open/services/raftcore/internal/node"
	"github.com/redbco/redb-open/services/raftcore/pkg/config"
	"github.com/redbco/redb-open/services/raftcore/pkg/logger"
)

var (
	clusterPath    = flag.String("cluster", "cluster.yaml", "Path to the cluster configuration file")
	listenAddr     = flag.String("listen", ":8080", "Address this node's peer transport listens on")
	adminAddr      = flag.String("admin", ":8090", "Address the status/health HTTP surface listens on")
	serviceVersion = "1.0.0"
)

func main() {
	flag.Parse()

	cluster, err := config.LoadClusterConfig(*clusterPath)
	if err != nil {
		log.Fatalf("load cluster config: %v", err)
	}

	lg := logger.New("raftcore", serviceVersion)

	opts := node.DefaultOptions()
	opts.AdminAddr = *adminAddr
	opts.TransportCfg.ListenAddr = *listenAddr

	n := node.New(cluster, opts, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		lg.Fatalf("start node: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	lg.Info("shutting down", "self", cluster.Self().PeerID)
	n.Stop()
	time.Sleep(200 * time.Millisecond)
}
