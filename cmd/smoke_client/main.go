package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"socialclient/config"
	"socialclient/models"
	"socialclient/services"
	"socialclient/storage"
)

type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalDuration   int64
}

type Config struct {
	BaseURL        string
	Email          string
	Password       string
	Workers        int
	Duration       int
	RequestsPerSec int
}

var (
	stats Stats
)

func main() {
	cfg := parseFlags()

	log.Printf("Starting smoke client against %s with %d workers", cfg.BaseURL, cfg.Workers)

	conf := config.Default()
	conf.API.BaseURL = cfg.BaseURL
	conf.Feed.RollbackOnFailure = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := services.NewClient(ctx, conf, services.Options{
		KV: storage.NewMemoryStore(),
		Navigator: services.NavigatorFunc(func(reason string) {
			log.Printf("Session ended: %s", reason)
			stop()
		}),
		Notifier: services.NotifierFunc(func(n services.Notice) {}),
	})
	if err != nil {
		log.Fatalf("Failed to build client: %v", err)
	}
	defer client.Close()

	if _, err := client.Session.Login(ctx, models.LoginRequest{Email: cfg.Email, Password: cfg.Password}); err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Duration)*time.Second)
		defer cancel()
	}

	requestsPerWorker := cfg.RequestsPerSec / cfg.Workers
	if requestsPerWorker == 0 {
		requestsPerWorker = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go worker(ctx, i, client, requestsPerWorker, &wg)
	}

	go printStats(ctx, client)

	wg.Wait()
	printFinalStats(client)
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "Backend base URL")
	flag.StringVar(&cfg.Email, "email", "", "Login email")
	flag.StringVar(&cfg.Password, "password", "", "Login password")
	flag.IntVar(&cfg.Workers, "workers", 10, "Number of concurrent workers")
	flag.IntVar(&cfg.Duration, "duration", 60, "Test duration in seconds (0 for infinite)")
	flag.IntVar(&cfg.RequestsPerSec, "rps", 50, "Requests per second target")

	flag.Parse()
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return cfg
}

func worker(ctx context.Context, id int, client *services.Client, requestsPerSec int, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(requestsPerSec))
	defer ticker.Stop()

	likes := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping, toggled %d likes", id, likes)
			return
		case <-ticker.C:
			start := time.Now()
			err := step(ctx, client)
			if err == nil {
				likes++
			}

			duration := time.Since(start)
			atomic.AddInt64(&stats.TotalRequests, 1)
			atomic.AddInt64(&stats.TotalDuration, duration.Milliseconds())
			if err != nil {
				atomic.AddInt64(&stats.FailedRequests, 1)
			} else {
				atomic.AddInt64(&stats.SuccessRequests, 1)
			}
		}
	}
}

// step loads a random feed view and toggles the like of a random post in it.
func step(ctx context.Context, client *services.Client) error {
	kind := models.FeedKinds[rand.Intn(len(models.FeedKinds))]
	if rand.Intn(10) == 0 {
		client.Feeds.Invalidate(kind)
	}
	posts, err := client.Feeds.LoadFeed(ctx, kind, 0, 0)
	if err != nil || len(posts) == 0 {
		return err
	}
	return client.Feeds.ToggleLike(ctx, posts[rand.Intn(len(posts))].ID)
}

func printStats(ctx context.Context, client *services.Client) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		total := atomic.LoadInt64(&stats.TotalRequests)
		success := atomic.LoadInt64(&stats.SuccessRequests)
		failed := atomic.LoadInt64(&stats.FailedRequests)
		totalDuration := atomic.LoadInt64(&stats.TotalDuration)

		var avgLatency int64
		if total > 0 {
			avgLatency = totalDuration / total
		}

		var successRate float64
		if total > 0 {
			successRate = float64(success) / float64(total) * 100
		}

		log.Printf("[STATS] Total: %d | Success: %d | Failed: %d | Success Rate: %.2f%% | Avg Latency: %dms | Refresh: %s",
			total, success, failed, successRate, avgLatency, client.Transport.State())
	}
}

func printFinalStats(client *services.Client) {
	total := atomic.LoadInt64(&stats.TotalRequests)
	success := atomic.LoadInt64(&stats.SuccessRequests)
	failed := atomic.LoadInt64(&stats.FailedRequests)
	totalDuration := atomic.LoadInt64(&stats.TotalDuration)

	var avgLatency int64
	if total > 0 {
		avgLatency = totalDuration / total
	}

	var successRate float64
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}

	log.Println("\n========== FINAL STATISTICS ==========")
	log.Printf("Total Steps:        %d", total)
	log.Printf("Successful:         %d", success)
	log.Printf("Failed:             %d", failed)
	log.Printf("Success Rate:       %.2f%%", successRate)
	log.Printf("Average Latency:    %dms", avgLatency)
	log.Printf("Refresh State:      %s", client.Transport.State())
	log.Println("======================================")
}
