package cli

import (
	"context"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/prividentity/cryptonet-go/internal/grpcapi"
	"github.com/prividentity/cryptonet-go/internal/server"
)

func (a *app) serveCommand() *cobra.Command {
	var httpAddr, grpcAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and, when configured, the gRPC API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if httpAddr != "" {
				a.cfg.Server.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				a.cfg.Server.GRPCAddr = grpcAddr
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}

			httpLis, err := net.Listen("tcp", a.cfg.Server.HTTPAddr)
			if err != nil {
				return err
			}
			errCh := make(chan error, 2)
			running := 1
			go func() {
				errCh <- server.New(svc, a.cfg.Server, a.logger).Serve(ctx, httpLis)
			}()

			if a.cfg.Server.GRPCAddr != "" {
				grpcLis, err := net.Listen("tcp", a.cfg.Server.GRPCAddr)
				if err != nil {
					_ = httpLis.Close()
					return err
				}
				running++
				go func() {
					errCh <- grpcapi.Serve(ctx, grpcLis, svc, a.logger,
						grpc.MaxRecvMsgSize(int(a.cfg.Server.MaxUploadBytes)*2))
				}()
			}

			var first error
			for ; running > 0; running-- {
				if err := <-errCh; err != nil && first == nil {
					first = err
					a.logger.Error("server stopped", zap.Error(err))
					cancel()
				}
			}
			return first
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	return cmd
}
