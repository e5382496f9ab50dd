// Command demo wires a Runner up to an in-memory simulated overlay and runs
// one search to completion, printing each reply as it arrives, across a
// short chain of peers discovered through iterative lookup.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	searchrunner "github.com/overlaymesh/searchrunner"
	"github.com/overlaymesh/searchrunner/internal/mocknet"
)

// randomKey generates a key whose derived address is guaranteed to pass
// searchrunner.ValidAddress. A real key-generation tool would brute-force
// keys until one happened to hash to an address with the overlay prefix;
// this demo just forces the prefix byte directly.
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

func main() {
	hops := flag.Int("hops", 4, "length of the simulated peer chain")
	seedFlag := flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rng := rand.New(rand.NewSource(*seedFlag))
	net := mocknet.NewNetwork(*seedFlag, 20*time.Millisecond, 0)

	chain := make([]searchrunner.Address, *hops)
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

	runID := uuid.New()
	target := chain[len(chain)-1].IP6
	done := make(chan struct{})

	ok := runner.Start(target, func(from searchrunner.Address, latency int, reply *searchrunner.Reply) {
		if reply == nil {
			logger.Info("search finished", zap.String("run_id", runID.String()))
			close(done)
			return
		}
		logger.Info("reply",
			zap.String("run_id", runID.String()),
			zap.String("from", from.IP6.String()),
			zap.Int("latency_ms", latency),
			zap.Int("records", len(reply.Records)),
		)
	})
	if !ok {
		logger.Fatal("search was refused admission")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Fatal("search did not finish in time")
	}
}
