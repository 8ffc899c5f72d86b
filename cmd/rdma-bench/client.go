package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/enfiskutensykkel/cuda-rdma-bench/bench"
	"github.com/enfiskutensykkel/cuda-rdma-bench/internal/logutil"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport/loopback"
)

var clientFlags struct {
	segment       uint32
	remoteSegment uint32
	channel       uint32
	size          string
	mode          string
	runs          uint
	vector        uint
	gpu           int
	emulateGPU    bool
	localServer   bool
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run a benchmark against a published remote segment",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logutil.NewLogger(rootFlags.verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		mode, err := bench.ParseMode(clientFlags.mode)
		if err != nil {
			return err
		}
		size, err := parseSize(clientFlags.size)
		if err != nil {
			return err
		}
		entries, err := bench.SplitEvenly(size, clientFlags.vector)
		if err != nil {
			return err
		}

		bus := loopback.NewBus(loopback.WithLogger(logger))
		session := bus.OpenSession()
		defer session.Close()

		// Without interconnect hardware the loopback provider only spans
		// one process, so optionally run the peer here.
		if clientFlags.localServer {
			srv := bench.NewServer(bus.OpenSession(), bench.ServerConfig{
				Adapter:   rootFlags.adapter,
				SegmentID: transport.SegmentID(clientFlags.remoteSegment),
				Channel:   transport.ChannelID(clientFlags.channel),
				Size:      size,
				Allocator: selectAllocator(clientFlags.gpu, clientFlags.emulateGPU),
			}, bench.WithServerLogger(logger))
			defer srv.Stop()
			if err := startLocalServer(srv); err != nil {
				return fmt.Errorf("local server failed: %w", err)
			}
		}

		buffer, err := selectAllocator(clientFlags.gpu, clientFlags.emulateGPU).Alloc(size)
		if err != nil {
			return err
		}
		defer buffer.Release()

		list, err := bench.BuildTransferList(session, rootFlags.adapter, buffer,
			transport.SegmentID(clientFlags.segment),
			transport.SegmentID(clientFlags.remoteSegment),
			transport.ChannelID(clientFlags.channel), entries)
		if err != nil {
			return err
		}
		defer list.Close()

		executor := bench.NewExecutor(session, rootFlags.adapter, bench.WithLogger(logger))
		result, err := executor.Run(bench.Config{Mode: mode, Runs: clientFlags.runs, List: list})
		if err != nil && result == nil {
			return err
		}

		printResult(mode, result)
		if result.SuccessCount == 0 || !result.BufferMatches {
			return errors.New("benchmark failed")
		}
		return nil
	},
}

// startLocalServer runs srv in the background and waits until peers can
// reach it. A server that tears down during setup surfaces its error
// instead of leaving the caller waiting on a state that never arrives.
func startLocalServer(srv *bench.Server) error {
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	for {
		switch srv.State() {
		case bench.StatePublished, bench.StateRunning:
			return nil
		case bench.StateTornDown:
			if err := <-done; err != nil {
				return err
			}
			return errors.New("local server exited before publishing")
		}
		time.Sleep(time.Millisecond)
	}
}

func printResult(mode bench.Mode, result *bench.Result) {
	dashes := "--------------------"
	fmt.Printf("|%20s|%20s|%20s|\n", "run", "runtime (µs)", "throughput (MB/s)")
	fmt.Printf("|%20s|%20s|%20s|\n", dashes, dashes, dashes)
	for i, sample := range result.Runs {
		fmt.Printf("|%20d|%20d|%20.3f|\n", i, sample.Elapsed.Microseconds(), sample.Throughput())
	}
	fmt.Printf("mode: %v, successful runs: %d/%d, buffer match: %v, total: %d bytes in %d µs (%.3f MB/s)\n",
		mode, result.SuccessCount, len(result.Runs), result.BufferMatches,
		result.TotalBytes, result.TotalRuntime.Microseconds(), result.AverageThroughput())
}

func init() {
	clientCmd.Flags().Uint32Var(&clientFlags.segment, "segment", 2, "local segment id")
	clientCmd.Flags().Uint32Var(&clientFlags.remoteSegment, "remote-segment", 1, "remote segment id to connect to")
	clientCmd.Flags().Uint32Var(&clientFlags.channel, "channel", 1, "interrupt channel id")
	clientCmd.Flags().StringVar(&clientFlags.size, "size", "4MiB", "transfer buffer size")
	clientCmd.Flags().StringVar(&clientFlags.mode, "mode", "dma-push", "benchmark mode")
	clientCmd.Flags().UintVar(&clientFlags.runs, "runs", 1, "number of repetitions")
	clientCmd.Flags().UintVar(&clientFlags.vector, "vector", 1, "number of scatter/gather entries")
	clientCmd.Flags().IntVar(&clientFlags.gpu, "gpu", -1, "GPU device id for the buffer, -1 for host RAM")
	clientCmd.Flags().BoolVar(&clientFlags.emulateGPU, "emulate-gpu", false, "use host-backed emulated GPU memory")
	clientCmd.Flags().BoolVar(&clientFlags.localServer, "local-server", false, "run the peer server in this process")
	rootCmd.AddCommand(clientCmd)
}
