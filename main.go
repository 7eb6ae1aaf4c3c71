package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "atlas/app/configs"
	"atlas/app/core/agent"
	"atlas/app/core/assistant"
	"atlas/app/core/chat"
	"atlas/app/core/handlers"
	"atlas/app/core/intent"
	"atlas/app/core/interaction/cli"
	"atlas/app/core/interaction/gateway"
	"atlas/app/core/interaction/http"
	"atlas/app/core/queue"
	"atlas/app/core/scheduler"
	"atlas/app/core/storage"
	"atlas/app/pkg/logger"
)

func main() {
	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Atlas starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	database, err := storage.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	reminderStore := storage.NewReminderStore(database)

	registry := assistant.NewRegistry()
	registry.Register(intent.TypeWeather, handlers.NewWeatherHandler(cfg.Assistant.HomeLocation))
	registry.Register(intent.TypeReminder, handlers.NewReminderHandler(reminderStore))
	registry.Register(intent.TypeSearch, handlers.NewSearchHandler())

	service := assistant.NewService(intent.NewRecognizer(), registry, cfg.Assistant.ConfidenceThreshold)

	responder := newResponder(cfg.Chat)
	brain := agent.NewAgent(cfg.Agent.Name, service, responder, cfgManager, reminderStore, cfg.Security)

	brain.SetConfigApplier(func(updated config.Config) {
		brain.SetName(updated.Agent.Name)
		brain.SetSecurityConfig(updated.Security)
		brain.SetResponder(newResponder(updated.Chat))
	})

	gw := gateway.NewGateway(brain)

	cliChannel := cli.NewCLIChannel(cfg.Agent.CLIUserID)
	gw.RegisterChannel(cliChannel)

	httpChannel := http.NewHTTPChannel(cfg.Server.Port)
	httpChannel.SetAssistantService(service)
	httpChannel.SetReminderStore(reminderStore)
	gw.RegisterChannel(httpChannel)

	var executionQueue *queue.Queue
	if cfg.Queue.Enabled {
		executionQueue = queue.New(cfg.Queue.Buffer)
		gw.SetExecutionQueue(executionQueue, gateway.QueueOptions{
			Enabled:        true,
			EnqueueTimeout: time.Duration(cfg.Queue.EnqueueTimeoutSec) * time.Second,
			AttemptTimeout: time.Duration(cfg.Queue.AttemptTimeoutSec) * time.Second,
			MaxRetries:     cfg.Queue.MaxRetries,
			RetryDelay:     time.Duration(cfg.Queue.RetryDelaySec) * time.Second,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if executionQueue != nil {
		if err := executionQueue.Start(ctx, 1); err != nil {
			logger.Error("Failed to start execution queue: %v", err)
			os.Exit(1)
		}
		defer func() {
			if err := executionQueue.Stop(3 * time.Second); err != nil {
				logger.Error("Queue shutdown timeout: %v", err)
			}
		}()
	}

	jobScheduler := scheduler.New()
	if err := jobScheduler.Register(reminderScanJob(cfg.Assistant, reminderStore, gw, cliChannel.ID())); err != nil {
		logger.Error("Failed to register reminder scan job: %v", err)
		os.Exit(1)
	}
	if err := jobScheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := jobScheduler.Stop(3 * time.Second); err != nil {
			logger.Error("Scheduler shutdown timeout: %v", err)
		}
	}()

	statusProvider := func(ctx context.Context) map[string]interface{} {
		runtime := map[string]interface{}{
			"gateway":   gw.HealthStatus(),
			"scheduler": jobScheduler.Health(),
		}
		if executionQueue != nil {
			runtime["queue"] = executionQueue.Stats()
		}
		return runtime
	}
	brain.SetStatusProvider(statusProvider)
	httpChannel.SetStatusProvider(statusProvider)

	go func() {
		if err := gw.Start(ctx); err != nil {
			logger.Error("Gateway crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("Atlas is ready to serve.")
	fmt.Println("- CLI Interface: Interactive")
	fmt.Printf("- HTTP Interface: http://localhost:%d/api/assistant/query (POST)\n", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. Atlas shutting down...", sig)
	cancel()
}

// newResponder picks the chat backend: OpenAI when an API key is present in
// the configured environment variable, a local echo otherwise.
func newResponder(cfg config.ChatConfig) chat.Responder {
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		logger.Info("Chat responder: OpenAI model %s", cfg.Model)
		return chat.NewOpenAIResponder(key, cfg.Model)
	}
	logger.Info("Chat responder: echo fallback (no API key in $%s)", cfg.APIKeyEnv)
	return &chat.EchoResponder{}
}

// reminderScanJob periodically delivers due reminders to the CLI channel and
// marks them notified so they are not announced twice.
func reminderScanJob(cfg config.AssistantConfig, store *storage.ReminderStore, gw *gateway.DefaultGateway, channelID string) scheduler.JobSpec {
	interval := time.Duration(cfg.ReminderScanIntervalSec) * time.Second
	timeout := time.Duration(cfg.ReminderScanTimeoutSec) * time.Second

	return scheduler.JobSpec{
		Name:     "reminder-scan",
		Interval: interval,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			due, err := store.ListDueReminders(ctx, time.Now().Unix(), 50)
			if err != nil {
				return err
			}
			for _, r := range due {
				content := fmt.Sprintf("Reminder: %s", r.Title)
				if r.DueText != "" {
					content = fmt.Sprintf("Reminder: %s (due %s)", r.Title, r.DueText)
				}
				if err := gw.DeliverDirect(ctx, channelID, r.UserID, content, map[string]interface{}{
					"reminder_id": r.ID,
				}); err != nil {
					logger.Error("Reminder delivery failed for %s: %v", r.ID, err)
					continue
				}
				if err := store.MarkReminderNotified(ctx, r.ID); err != nil {
					logger.Error("Failed to mark reminder %s notified: %v", r.ID, err)
				}
			}
			return nil
		},
	}
}
