package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/nats-io/nats.go"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/noah-isme/screening-api/internal/config"
	"github.com/noah-isme/screening-api/internal/database"
	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/queue"
	"github.com/noah-isme/screening-api/internal/repository"
	"github.com/noah-isme/screening-api/internal/service"
	"github.com/noah-isme/screening-api/pkg/brevo"
)

// followups runs a single sweep of the follow-up scheduler and prints what it did.
func main() {
	timeout := pflag.Duration("timeout", 5*time.Minute, "abort the sweep after this long")
	verbose := pflag.BoolP("verbose", "v", false, "log every notification")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, sweeping without a lease")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var sender service.EmailSender = service.NewLogEmailSender(logger)
	if cfg.BrevoAPIKey != "" {
		client, err := brevo.New(brevo.Config{APIKey: cfg.BrevoAPIKey, BaseURL: cfg.BrevoBaseURL}, logger)
		if err != nil {
			log.Fatalf("failed to create brevo client: %v", err)
		}
		sender = client
	}

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		log.Fatalf("failed to connect task queue: %v", err)
	}
	if dispatcher == nil {
		logger.Warn().Str("driver", cfg.QueueDriver).Msg("local queue has no workers here, stalled work is left to the API process")
	} else {
		defer dispatcher.Stop(context.Background())
	}

	followups := service.NewFollowupService(
		repository.NewApplicationRepository(db),
		repository.NewCombinationRepository(db),
		repository.NewTestSubmissionRepository(db),
		service.NewNotifier(sender, repository.NewNotificationLogRepository(db), logger),
		optionalDispatcher(dispatcher),
		redisClient,
		*timeout,
		service.PipelineSettings{
			AppPublicURL:   cfg.AppPublicURL,
			TokenTTL:       cfg.TokenTTL,
			CooldownPeriod: cfg.CooldownPeriod,
			RejectionHold:  cfg.RejectionHold,
			BatchSize:      cfg.FollowupsBatch,
		},
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	started := time.Now()
	result, err := followups.Sweep(ctx)
	if err != nil {
		color.Red("sweep failed: %v", err)
		os.Exit(1)
	}

	if result.Skipped {
		color.Yellow("another replica holds the follow-up lease; nothing to do")
		return
	}

	printResult(result, time.Since(started))
	if result.Errors > 0 {
		os.Exit(2)
	}
}

// newDispatcher connects to a shared broker. The local driver has no consumer in this process, so it
// yields nil.
func newDispatcher(cfg config.Config, logger zerolog.Logger) (queue.Queue, error) {
	switch cfg.QueueDriver {
	case queue.DriverNATS:
		conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName+"-followups"))
		if err != nil {
			return nil, err
		}
		return queue.NewNATSQueue(conn, cfg.QueueSubject, logger)
	case queue.DriverRabbitMQ:
		return queue.NewRabbitQueue(cfg.RabbitMQURL, cfg.QueueSubject, 0, logger)
	default:
		return nil, nil
	}
}

func optionalDispatcher(q queue.Queue) queue.Dispatcher {
	if q == nil {
		return nil
	}
	return q
}

func printResult(result dto.SweepResult, elapsed time.Duration) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Stage", "Rows"})
	table.SetAutoFormatHeaders(false)

	rows := []struct {
		stage string
		count int
	}{
		{"24h reminders", result.Reminders},
		{"expired tokens", result.Expired},
		{"final chance", result.FinalChance},
		{"archival checked", result.ArchivalChecked},
		{"archived", result.Archived},
		{"rejection emails", result.RejectionEmails},
		{"re-dispatched", result.Redispatched},
	}
	for _, row := range rows {
		table.Append([]string{row.stage, strconv.Itoa(row.count)})
	}
	table.Render()

	status := color.New(color.FgGreen).SprintFunc()
	if result.Errors > 0 {
		status = color.New(color.FgRed).SprintFunc()
	}
	fmt.Printf("%s in %s\n", status(fmt.Sprintf("%d errors", result.Errors)), elapsed.Round(time.Millisecond))
}
