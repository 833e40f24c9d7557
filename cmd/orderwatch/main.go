// Command orderwatch follows one customer's orders the way the mobile client
// does: realtime room first, periodic re-fetch as the fallback, and optionally
// the order event stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/picknpay/internal/client"
	"github.com/fjod/picknpay/internal/poller"
	"github.com/fjod/picknpay/pkg/logger"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "API base URL")
		identity  = flag.String("identity", "", "customer identity to watch (required)")
		interval  = flag.Duration("interval", poller.DefaultInterval, "fallback poll interval")
		timeout   = flag.Duration("timeout", 10*time.Second, "HTTP request timeout")
		brokers   = flag.String("kafka-brokers", "", "comma separated Kafka brokers; enables the event stream")
		topic     = flag.String("topic", "order-events", "order events topic")
		groupID   = flag.String("group", "", "Kafka consumer group (defaults to orderwatch-<identity>)")
		logLevel  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log := logger.New(os.Stderr, *logLevel, "text", "orderwatch")
	if *identity == "" {
		fmt.Fprintln(os.Stderr, "orderwatch: -identity is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := poller.NewTracker()
	emit := printer(os.Stdout)
	var wg sync.WaitGroup

	listener, err := poller.NewSocketListener(wsURL(*serverURL), *identity, tracker, log)
	if err != nil {
		log.Error("failed to create realtime listener", "error", err)
		os.Exit(1)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		listener.Run(ctx, emit)
	}()

	api := client.New(*serverURL, *identity, *timeout, log)
	orderPoller := poller.NewOrderPoller(api, *identity, *interval, tracker, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		orderPoller.Run(ctx, emit)
	}()

	if *brokers != "" {
		group := *groupID
		if group == "" {
			group = "orderwatch-" + *identity
		}
		reader := poller.NewEventReader(*identity, *topic, group, tracker, log, strings.Split(*brokers, ",")...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reader.Run(ctx, emit)
		}()
		defer reader.Close()
	}

	log.Info("watching orders", "identity", *identity, "server", *serverURL, "interval", *interval)
	<-ctx.Done()
	wg.Wait()
	log.Info("orderwatch stopped", "orders_known", tracker.Len())
}

// wsURL maps http(s)://host to ws(s)://host/ws.
func wsURL(server string) string {
	server = strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(server, "https://"):
		server = "wss://" + strings.TrimPrefix(server, "https://")
	case strings.HasPrefix(server, "http://"):
		server = "ws://" + strings.TrimPrefix(server, "http://")
	}
	return server + "/ws"
}

func printer(out *os.File) func(poller.Change) {
	var mu sync.Mutex
	return func(c poller.Change) {
		mu.Lock()
		defer mu.Unlock()
		if c.Kind == poller.ChangeRemoved {
			fmt.Fprintf(out, "%s  order %s removed\n", time.Now().Format(time.TimeOnly), c.OrderID)
			return
		}
		token := "-"
		if c.Order.PickupToken != nil {
			token = *c.Order.PickupToken
		}
		fmt.Fprintf(out, "%s  order %s  %-12s token=%s total=%s v%d\n",
			time.Now().Format(time.TimeOnly), c.Order.HumanOrderID, c.Order.Status, token,
			c.Order.TotalAmount.StringFixed(2), c.Order.Version)
	}
}
