package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tejaswini232005/Decentralized-Auction-House/internal/auction"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/funds"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/httpapi"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/ledger"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/obs"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/policy"
	pgstore "github.com/tejaswini232005/Decentralized-Auction-House/internal/store/pg"
	"github.com/tejaswini232005/Decentralized-Auction-House/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	owner := envOr("AUCTION_OWNER", "platform")
	feeBps, err := strconv.ParseInt(envOr("AUCTION_FEE_BPS", "250"), 10, 64)
	if err != nil {
		log.Fatalf("AUCTION_FEE_BPS: %v", err)
	}
	pol, err := policy.New(owner, feeBps)
	if err != nil {
		log.Fatalf("platform policy: %v", err)
	}

	// Outbound payment leg. Payments are recorded and logged here; a real
	// deployment swaps in a bank or chain gateway behind funds.Transferor.
	recorder := funds.NewRecorder()
	transferor := funds.TransferorFunc(func(ctx context.Context, to string, amount int64, reference string) error {
		if err := recorder.Transfer(ctx, to, amount, reference); err != nil {
			return err
		}
		log.Printf(`{"level":"info","msg":"payment_sent","to":%q,"amount":%d,"reference":%q}`, to, amount, reference)
		return nil
	})
	payouts := funds.NewQueue(transferor)

	events := stream.New()
	sink := stream.Fanout{events}
	if url := os.Getenv("AUCTION_NATS_URL"); url != "" {
		np, err := stream.ConnectNATS(url)
		if err != nil {
			log.Fatalf("connect nats: %v", err)
		}
		defer np.Close()
		sink = append(sink, np)
	}

	cfg := auction.Config{
		Book:       ledger.NewBook(),
		Policy:     pol,
		Transferor: transferor,
		Payouts:    payouts,
		Sink:       sink,
	}

	var (
		svc auction.Service
		db  *sql.DB
	)
	if dsn := os.Getenv("AUCTION_PG_DSN"); dsn != "" {
		store, err := pgstore.Open(dsn, cfg)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		svc = store
		db = store.DB()
	} else {
		log.Println("AUCTION_PG_DSN not set, using in-memory engine")
		svc = auction.NewInMemory(cfg)
	}

	stopPayouts := payouts.Start(30 * time.Second)
	defer stopPayouts()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, pol, events)

	srv := &http.Server{
		Addr:              envOr("AUCTION_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// SSE subscribers hold the response open, so no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting auction-house-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
