package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	searchrunner "github.com/overlaymesh/searchrunner"
	"github.com/overlaymesh/searchrunner/internal/mocknet"
)

func newRunCmd() *cobra.Command {
	var (
		hops    int
		seed    int64
		dropPct int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive one search against a simulated overlay and print each reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, hops, seed, dropPct, timeout)
		},
	}

	cmd.Flags().IntVar(&hops, "hops", 4, "length of the simulated peer chain")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "PRNG seed")
	cmd.Flags().IntVar(&dropPct, "drop-pct", 0, "percent chance the simulated network silently drops a send")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the search to finish")

	return cmd
}

func randomKey(rng *rand.Rand) [searchrunner.KeySize]byte {
	var k [searchrunner.KeySize]byte
	rng.Read(k[:])
	k[0] = 0xfc
	return k
}

func addressFor(key [searchrunner.KeySize]byte, path uint64, version int) searchrunner.Address {
	return searchrunner.Address{
		IP6:     searchrunner.Prefix(key),
		Key:     key,
		Path:    path,
		Version: version,
	}
}

func runSearch(cmd *cobra.Command, hops int, seedVal int64, dropPct int, timeout time.Duration) error {
	out := cmd.OutOrStdout()
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	rng := rand.New(rand.NewSource(seedVal))
	net := mocknet.NewNetwork(seedVal, 10*time.Millisecond, dropPct)

	chain := make([]searchrunner.Address, hops)
	for i := range chain {
		chain[i] = addressFor(randomKey(rng), uint64(i+1), 2)
	}
	for i, addr := range chain {
		var neighbors []searchrunner.Address
		if i+1 < len(chain) {
			neighbors = []searchrunner.Address{chain[i+1]}
		}
		net.AddPeer(addr, neighbors)
	}
	net.Bootstrap(chain[0])

	runner := searchrunner.NewRunner(
		searchrunner.Prefix(randomKey(rng)),
		net.NodeStore(), net.Router(), net.RumorMill(), nil,
		logger, nil, searchrunner.Config{},
	)
	defer runner.Close()

	target := chain[len(chain)-1].IP6
	done := make(chan struct{})

	ok := runner.Start(target, func(from searchrunner.Address, latency int, reply *searchrunner.Reply) {
		if reply == nil {
			fmt.Fprintln(out, "search finished")
			close(done)
			return
		}
		fmt.Fprintf(out, "reply from %s (%dms, %d records); active searches: %d\n",
			from.IP6, latency, len(reply.Records), runner.Inspect(0).ActiveSearches)
	})
	if !ok {
		return fmt.Errorf("search was refused admission")
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("search did not finish within %s", timeout)
	}
}
