// mensajes-export fetches the full message log once and writes the CSV
// projection, without starting the daemon. The network is resolved through
// the wallet bridge unless -network pins one explicitly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/config"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/logging"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/service"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/wallet"
)

func main() {
	configPath := flag.String("config", "configs/mensajesd.yaml", "path to client config")
	network := flag.String("network", "", "network id (default: resolve via wallet bridge)")
	out := flag.String("out", "-", "output file, - for stdout")
	reverse := flag.Bool("reverse", false, "newest entries first")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	networkID := *network
	if networkID == "" {
		bridge := wallet.NewBridge(cfg.Wallet.BridgeURL, time.Duration(cfg.Wallet.TimeoutSeconds)*time.Second, logger)
		networkID, err = bridge.NetworkID(ctx)
		if err != nil {
			fatalf("resolve network via wallet bridge: %v", err)
		}
	}
	contractAddr, ok := cfg.Networks[networkID]
	if !ok {
		fatalf("no contract deployment known for network %s", networkID)
	}

	client := ledger.NewGatewayClient(cfg.Gateway.URL, contractAddr, cfg.Gateway.WriteToken, time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second)
	entries, err := client.ReadAll(ctx)
	if err != nil {
		fatalf("read ledger: %v", err)
	}

	w := os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			fatalf("create output file: %v", err)
		}
		defer f.Close()
		w = f
	}
	if err := service.WriteCSV(w, entries, *reverse); err != nil {
		fatalf("write csv: %v", err)
	}
	if *out != "-" {
		fmt.Fprintf(os.Stderr, "exported %d entries to %s\n", len(entries), *out)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
