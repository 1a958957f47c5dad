package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"krakenOrderTracker/config"
	"krakenOrderTracker/internal/adapters/krakenws"
	"krakenOrderTracker/internal/adapters/logger"
)

var (
	outFile  = flag.String("out", "", "output file for raw feed frames (default data/feed_<timestamp>.ndjson)")
	duration = flag.Duration("duration", 0, "stop recording after this long (0 = run until interrupted)")
)

func main() {
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Open the capture file
	filename := *outFile
	if filename == "" {
		filename = fmt.Sprintf("data/feed_%s.ndjson", time.Now().UTC().Format("20060102_150405"))
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create capture directory: %v", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		log.Fatalf("FATAL: Failed to create capture file: %v", err)
	}
	defer file.Close()
	writer := bufio.NewWriter(file)

	// 4. Initialize Kraken Feed Client
	feedClient, err := krakenws.New(krakenws.Config{
		URL:                  cfg.WSURL,
		Token:                cfg.WSToken,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Kraken feed client")
		log.Fatalf("FATAL: Failed to initialize Kraken feed client: %v", err)
	}

	// 5. Stream frames to disk until interrupted (or -duration elapses)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var mu sync.Mutex // reconnects swap reader goroutines; serialize against the final flush
	frames := 0
	handler := func(raw []byte) {
		mu.Lock()
		writer.Write(raw)
		writer.WriteByte('\n')
		frames++
		mu.Unlock()
	}
	errHandler := func(err error) {
		appLogger.Warn(context.Background(), "Feed error while recording", map[string]interface{}{"error": err.Error()})
	}

	doneCh, _, err := feedClient.StreamOrderUpdates(ctx, handler, errHandler)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to start feed stream")
		log.Fatalf("FATAL: Failed to start feed stream: %v", err)
	}

	fmt.Printf("Recording feed frames to %s (Ctrl-C to stop)...\n", filename)
	<-doneCh // closes once the stream has fully wound down

	mu.Lock()
	err = writer.Flush()
	captured := frames
	mu.Unlock()
	if err != nil {
		log.Fatalf("FATAL: Failed to flush capture file: %v", err)
	}

	fmt.Printf("Recorded %d frames to %s\n", captured, filename)
}
