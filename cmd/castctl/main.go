// Command castctl opens Cast channels to the devices listed in its config,
// optionally sends one message to each and logs what comes back until
// interrupted. With -serve it runs a fake receiver instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"
	"sutext.github.io/cast/auth"
	"sutext.github.io/cast/castmsg"
	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/internal/metrics"
	"sutext.github.io/cast/internal/receiver"
	"sutext.github.io/cast/network"
	"sutext.github.io/cast/service"
	"sutext.github.io/cast/socket"
	"sutext.github.io/cast/xlog"
)

func main() {
	configPath := flag.String("config", "castctl.yaml", "config file")
	serve := flag.String("serve", "", "run a fake receiver on this address instead")
	rootsOut := flag.String("roots", "fake_roots.pem", "where -serve writes its root certificate")
	flag.Parse()

	ctx, cancel := context.WithCancelCause(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel(fmt.Errorf("castctl signal received"))
	}()
	var err error
	if *serve != "" {
		err = runReceiver(ctx, *serve, *rootsOut)
	} else {
		err = run(ctx, *configPath)
	}
	if err != nil {
		xlog.Error("castctl failed", xlog.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := readConfig(path)
	if err != nil {
		return err
	}
	xlog.SetDefault(cfg.logger())
	log := xlog.With("GROUP", "CASTCTL")

	nc, err := network.NewContext(network.WithProxy(cfg.proxyURL()))
	if err != nil {
		return err
	}
	sockOpts := []socket.Option{socket.WithNetworkContext(nc)}
	if cfg.TrustRoots != "" {
		trust, err := auth.LoadTrustStore(cfg.TrustRoots)
		if err != nil {
			return err
		}
		sockOpts = append(sockOpts, socket.WithTrustStore(trust))
	}
	var reader *sdkmetric.ManualReader
	if cfg.Metrics {
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer provider.Shutdown(context.Background())
		sockOpts = append(sockOpts, socket.WithMetrics(metrics.New(provider)))
	}
	svcOpts := []service.Option{service.WithSocketOptions(sockOpts...)}
	if cfg.Retry != nil {
		b, err := cfg.Retry.backoff()
		if err != nil {
			return err
		}
		svcOpts = append(svcOpts, service.WithRetrier(service.NewRetrier(cfg.Retry.Limit, b)))
	}
	svc := service.New(svcOpts...)
	svc.AddObserver(&printer{logger: log})

	senderID := "sender-" + uuid.NewString()
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range cfg.Devices {
		g.Go(func() error {
			s, err := open(gctx, svc, d.openParams)
			if err != nil {
				log.Warn("device unavailable", xlog.Str("device", d.label()), xlog.Err(err))
				return nil
			}
			log.Info("device connected", xlog.Str("device", d.label()), xlog.Channel(s.ID()), xlog.Bool("audioOnly", s.AudioOnly()))
			if cfg.Message != nil {
				dest := cfg.Message.Destination
				if dest == "" {
					dest = castmsg.PlatformReceiverID
				}
				m := castmsg.NewStringMessage(cfg.Message.Namespace, senderID, dest, cfg.Message.Payload)
				s.SendMessage(m, func(err error) {
					if err != nil {
						log.Warn("send failed", xlog.Str("device", d.label()), xlog.Err(err))
					}
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info("shutting down", xlog.Err(context.Cause(ctx)))

	done := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(done)
	}()
	timeout := time.NewTimer(time.Second * 15)
	defer timeout.Stop()
	select {
	case <-timeout.C:
		log.Warn("castctl graceful shutdown timeout")
	case <-done:
		log.Debug("castctl graceful shutdown")
	}
	if reader != nil {
		logMetrics(log, reader)
	}
	return nil
}

// open waits for the service to finish connecting params.Endpoint.
func open(ctx context.Context, svc *service.Service, params channel.OpenParams) (socket.Socket, error) {
	done := make(chan struct{})
	s, err := svc.OpenSocket(params, func(socket.Socket) { close(done) })
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
	if s.ReadyState() != channel.ReadyStateOpen {
		return nil, s.ErrorState()
	}
	return s, nil
}

type printer struct {
	logger *xlog.Logger
}

func (p *printer) OnError(s socket.Socket, err channel.ChannelError) {
	p.logger.Warn("channel error", xlog.Channel(s.ID()), xlog.Endpoint(s.Endpoint()), xlog.Err(err))
}

func (p *printer) OnMessage(s socket.Socket, m *castmsg.CastMessage) {
	p.logger.Info("message", xlog.Channel(s.ID()), xlog.Namespace(m.Namespace), xlog.Str("payload", m.PayloadUTF8))
}

func logMetrics(log *xlog.Logger, reader *sdkmetric.ManualReader) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		log.Warn("collect metrics failed", xlog.Err(err))
		return
	}
	enc := attribute.DefaultEncoder()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					log.Info("metric", xlog.Str("name", m.Name), xlog.Str("attrs", dp.Attributes.Encoded(enc)), xlog.Int64("value", dp.Value))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					log.Info("metric", xlog.Str("name", m.Name), xlog.Str("attrs", dp.Attributes.Encoded(enc)), xlog.Uint64("count", dp.Count), xlog.Float64("sum", dp.Sum))
				}
			}
		}
	}
}

func runReceiver(ctx context.Context, addr, rootsOut string) error {
	log := xlog.With("GROUP", "CASTCTL")
	creds, err := receiver.NewCredentials(receiver.CredentialOptions{})
	if err != nil {
		return err
	}
	if err := os.WriteFile(rootsOut, creds.RootPEM(), 0o644); err != nil {
		return err
	}
	r, err := receiver.New(creds, receiver.WithOnMessage(func(ns, payload string) {
		log.Info("receiver got message", xlog.Namespace(ns), xlog.Str("payload", payload))
	}))
	if err != nil {
		return err
	}
	if err := r.Listen(addr); err != nil {
		return err
	}
	log.Info("fake receiver listening", xlog.Str("addr", r.Addr().String()), xlog.Str("roots", rootsOut))
	<-ctx.Done()
	return r.Close()
}
