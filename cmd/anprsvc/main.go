package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/pubsub"
	_ "github.com/lib/pq" // Postgres driver
	"github.com/redis/go-redis/v9"
	supabase "github.com/supabase-community/supabase-go"
	"google.golang.org/grpc"

	"github.com/anpr/compliance-core/internal/anpr/adminsurface"
	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/ingestion"
	"github.com/anpr/compliance-core/internal/anpr/platevalidator"
	"github.com/anpr/compliance-core/internal/anpr/reconciliation"
	"github.com/anpr/compliance-core/internal/anpr/review"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/anpr/scheduler"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/anpr/suspension"
	"github.com/anpr/compliance-core/internal/anprpoller"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/circuitbreaker"
	"github.com/anpr/compliance-core/internal/config"
	"github.com/anpr/compliance-core/internal/joblock"
	"github.com/anpr/compliance-core/internal/metrics"
	"github.com/anpr/compliance-core/internal/siteconfig"
	"github.com/anpr/compliance-core/internal/store/pgstore"
	"github.com/anpr/compliance-core/internal/taskqueue"
	"github.com/anpr/compliance-core/pb/anpradmin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, continuing with process environment")
	}

	cfg := config.Get()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	breakers := circuitbreaker.NewANPRCircuitBreakers()
	auditSink := buildAuditSink(ctx, cfg)

	db, err := pgstore.Open(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("anprsvc: connect to database: %v", err)
	}
	defer db.Close()

	sites := buildSiteReader(cfg, breakers)
	movements := pgstore.NewMovementStore(db)
	sessions := pgstore.NewSessionStore(db)
	permits := pgstore.NewPermitStore(db)
	payments := pgstore.NewPaymentStore(db)
	decisions := pgstore.NewDecisionStore(db)
	reviews := pgstore.NewPlateReviewStore(db)
	suspensions := pgstore.NewSuspensionStore(db)

	locker := buildLocker(cfg)

	suspensionRegistry := suspension.New(suspensions, decisions, auditSink)
	engine := rules.New(sites, permits, payments, decisions, suspensionRegistry, auditSink)
	reconstructor := session.New(sessions, engine, auditSink, m).
		WithStaleThreshold(time.Duration(cfg.Session.StaleThresholdHours) * time.Hour)
	reconciler := reconciliation.New(sessions, engine, auditSink, m)
	validator := platevalidator.New()
	if err := validator.Load(ctx, pgstore.NewPlateRuleStore(db)); err != nil {
		slog.Warn("anprsvc: load plate rules from postgres, using built-in UK fallback", "error", err)
	}
	reviewWorkflow := review.New(reviews, movements, validator, reconstructor, auditSink)

	queue := buildTaskQueue(ctx, cfg, reconciler)
	if queue != nil {
		defer queue.Stop()
	}

	pipeline := ingestion.New(sites, movements, payments, permits, reviews, validator, reconstructor, queue, reconciler, auditSink, m)

	sched := scheduler.New(decisions, sessions, engine, reconstructor, locker, auditSink, m)
	go sched.Run(ctx)

	if cfg.Poller.URL != "" {
		go runPollerLoop(ctx, cfg, pipeline)
	} else {
		slog.Warn("anprsvc: ANPR_POLLER_URL not set, camera ingestion loop disabled")
	}

	adminServer := adminsurface.New(reconciler, suspensionRegistry, reviewWorkflow)
	grpcServer := grpc.NewServer()
	anpradmin.RegisterAdminServiceServer(grpcServer, adminServer)

	lis, err := net.Listen("tcp", cfg.Admin.ListenAddr)
	if err != nil {
		log.Fatalf("anprsvc: listen on %s: %v", cfg.Admin.ListenAddr, err)
	}
	go func() {
		slog.Info("anprsvc: admin surface listening", "addr", cfg.Admin.ListenAddr)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("anprsvc: admin surface stopped", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("anprsvc: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
}

func buildSiteReader(cfg *config.Config, breakers *circuitbreaker.ANPRCircuitBreakers) *siteconfig.Reader {
	var client *supabase.Client
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceKey != "" {
		var err error
		client, err = supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey, &supabase.ClientOptions{})
		if err != nil {
			log.Fatalf("anprsvc: build supabase client: %v", err)
		}
	} else {
		slog.Warn("anprsvc: SUPABASE_URL/SUPABASE_SERVICE_KEY not set, site reads will rely entirely on local overrides")
	}

	overrides, err := config.NewOverridesManager(getEnv("ANPR_SITE_OVERRIDES_PATH", "site_overrides.yaml"))
	if err != nil {
		log.Fatalf("anprsvc: load site overrides: %v", err)
	}

	ttl := time.Duration(cfg.Supabase.CacheTTLMins) * time.Minute
	return siteconfig.NewReader(client, ttl, overrides, breakers.Supabase)
}

func buildLocker(cfg *config.Config) *joblock.Locker {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return joblock.New(client)
}

func buildAuditSink(ctx context.Context, cfg *config.Config) audit.Sink {
	if !cfg.PubSub.Enabled || cfg.PubSub.ProjectID == "" {
		slog.Warn("anprsvc: pubsub disabled, audit records are only logged in-process")
		return audit.NewMemorySink()
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		log.Fatalf("anprsvc: build pubsub client: %v", err)
	}
	topic := client.Topic(cfg.PubSub.TopicID)
	return audit.NewPubSubSink(topic, "anpr-core")
}

func buildTaskQueue(ctx context.Context, cfg *config.Config, reconciler *reconciliation.Service) *taskqueue.Queue {
	handler := reconciler.Handler()

	if cfg.CloudTasks.Enabled && cfg.CloudTasks.ProjectID != "" {
		client, err := cloudtasks.NewClient(ctx)
		if err != nil {
			log.Fatalf("anprsvc: build cloud tasks client: %v", err)
		}
		queuePath := "projects/" + cfg.CloudTasks.ProjectID + "/locations/" + cfg.CloudTasks.LocationID + "/queues/" + cfg.CloudTasks.QueueID
		dispatcher := taskqueue.NewCloudTasksDispatcher(client, queuePath, getEnv("ANPR_RECONCILE_TARGET_URL", ""))
		handler = func(ctx context.Context, t taskqueue.Task) {
			if err := dispatcher.Enqueue(ctx, t); err != nil {
				slog.Error("anprsvc: dispatch to cloud tasks failed", "error", err, "kind", t.Kind, "vrm", t.VRM)
			}
		}
	}

	return taskqueue.New(taskqueue.Config{
		Concurrency:   cfg.CloudTasks.WorkerCount,
		HighWaterMark: cfg.CloudTasks.HighWaterMark,
	}, handler)
}

func runPollerLoop(ctx context.Context, cfg *config.Config, pipeline *ingestion.Pipeline) {
	client := anprpoller.NewClient(cfg.Poller.URL)
	interval := time.Duration(cfg.Poller.PollIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	since := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			raws, err := client.Poll(ctx, since)
			if err != nil {
				slog.Warn("anprsvc: poller poll failed", "error", err)
				continue
			}
			since = time.Now()
			for _, raw := range raws {
				if _, err := pipeline.IngestMovement(ctx, toIngestionMovement(raw)); err != nil {
					slog.Warn("anprsvc: ingest movement failed", "error", err, "siteId", raw.SiteID)
				}
			}
		}
	}
}

func toIngestionMovement(raw anprpoller.RawMovement) ingestion.RawMovement {
	vrm := raw.VRM
	if vrm == "" {
		vrm = raw.PlateNumber
	}
	images := make([]domain.Image, 0, len(raw.Images))
	for _, img := range raw.Images {
		images = append(images, domain.Image{URL: img.URL, Type: domain.ImageType(img.Type)})
	}
	return ingestion.RawMovement{
		SiteID:     raw.SiteID,
		VRM:        vrm,
		Timestamp:  raw.Timestamp,
		CameraID:   raw.CameraID,
		RawSignal:  raw.Direction,
		Confidence: raw.Confidence,
		Images:     images,
		RawPayload: raw.RawData,
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
