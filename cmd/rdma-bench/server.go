package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/enfiskutensykkel/cuda-rdma-bench/bench"
	"github.com/enfiskutensykkel/cuda-rdma-bench/internal/logutil"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport"
	"github.com/enfiskutensykkel/cuda-rdma-bench/transport/loopback"
)

var serverFlags struct {
	segment    uint32
	channel    uint32
	size       string
	gpu        int
	emulateGPU bool
	configFile string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Expose a receive buffer and block until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logutil.NewLogger(rootFlags.verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		adapter := rootFlags.adapter
		segment := serverFlags.segment
		channel := serverFlags.channel
		sizeSpec := serverFlags.size
		gpu := serverFlags.gpu

		if serverFlags.configFile != "" {
			cfg, err := loadServerConfig(serverFlags.configFile)
			if err != nil {
				return err
			}
			if cfg.Adapter != nil {
				adapter = *cfg.Adapter
			}
			if cfg.Segment != nil {
				segment = *cfg.Segment
			}
			if cfg.Channel != nil {
				channel = *cfg.Channel
			}
			if cfg.Size != "" {
				sizeSpec = cfg.Size
			}
			if cfg.GPU != nil {
				gpu = *cfg.GPU
			}
		}

		size, err := parseSize(sizeSpec)
		if err != nil {
			return err
		}

		session := loopback.NewBus(loopback.WithLogger(logger)).OpenSession()
		defer session.Close()

		srv := bench.NewServer(session, bench.ServerConfig{
			Adapter:   adapter,
			SegmentID: transport.SegmentID(segment),
			Channel:   transport.ChannelID(channel),
			Size:      size,
			Allocator: selectAllocator(gpu, serverFlags.emulateGPU),
		}, bench.WithServerLogger(logger))

		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigch
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			srv.Stop()
		}()

		return srv.Run()
	},
}

func init() {
	serverCmd.Flags().Uint32Var(&serverFlags.segment, "segment", 1, "segment id to publish")
	serverCmd.Flags().Uint32Var(&serverFlags.channel, "channel", 1, "interrupt channel id")
	serverCmd.Flags().StringVar(&serverFlags.size, "size", "4MiB", "receive buffer size")
	serverCmd.Flags().IntVar(&serverFlags.gpu, "gpu", -1, "GPU device id for the buffer, -1 for host RAM")
	serverCmd.Flags().BoolVar(&serverFlags.emulateGPU, "emulate-gpu", false, "use host-backed emulated GPU memory")
	serverCmd.Flags().StringVar(&serverFlags.configFile, "config", "", "YAML config file overriding the flags")
	rootCmd.AddCommand(serverCmd)
}
