package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/config"
	"github.com/AgamJK/sentinel-final/internal/core"
	"github.com/AgamJK/sentinel-final/internal/factory"
	"github.com/AgamJK/sentinel-final/internal/logging"
	"github.com/AgamJK/sentinel-final/internal/monitor"
)

var (
	// Global flags, valid before the command.
	verbose = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog = flag.Bool("json-log", false, "Output logs in JSON format")
)

const usage = `Usage: sentinel-cli [global flags] <command> [command flags]

Commands:
  classify   Classify an email from -file or stdin and print the result
  trends     Print hourly emotion counts for the last -window hours
  messages   List stored messages matching the filter flags
  alerts     List active alerts
  ack        Acknowledge an alert: sentinel-cli ack <alert-id>
  resolve    Resolve an alert: sentinel-cli resolve <alert-id>
  triage     Update a message: sentinel-cli triage <message-id> -status ... -priority ...
  account    Upsert a monitored account: sentinel-cli account -account ... -secret ...
  poll       Poll the scope's account immediately: sentinel-cli poll -user ...

Global flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)
	// Command flags follow the command word; stdlib flag stops parsing
	// at the first non-flag argument, so each command parses the
	// remainder with its own flag set.
	args := flag.Args()[1:]

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	switch command {
	case "classify":
		runClassify(ctx, cfg, logger, args)
	case "trends":
		runTrends(ctx, cfg, logger, args)
	case "messages":
		runMessages(ctx, cfg, logger, args)
	case "alerts":
		runAlerts(ctx, cfg, logger)
	case "ack":
		runAlertStatus(ctx, cfg, logger, core.AlertAcknowledged, args)
	case "resolve":
		runAlertStatus(ctx, cfg, logger, core.AlertResolved, args)
	case "triage":
		runTriage(ctx, cfg, logger, args)
	case "account":
		runAccount(ctx, cfg, logger, args)
	case "poll":
		runPoll(ctx, cfg, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		flag.Usage()
		os.Exit(2)
	}
}

type classifyOptions struct {
	file string
}

func parseClassifyArgs(args []string) (*classifyOptions, error) {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	opts := &classifyOptions{}
	fs.StringVar(&opts.file, "file", "", "Input email file (use stdin if not specified)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

type trendsOptions struct {
	user   string
	window int
}

func parseTrendsArgs(args []string) (*trendsOptions, error) {
	fs := flag.NewFlagSet("trends", flag.ContinueOnError)
	opts := &trendsOptions{}
	fs.StringVar(&opts.user, "user", "", "User scope (empty for global)")
	fs.IntVar(&opts.window, "window", 6, "Trend window in hours")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

type messagesOptions struct {
	user    string
	account string
	emotion string
	sender  string
	limit   int
}

func parseMessagesArgs(args []string) (*messagesOptions, error) {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	opts := &messagesOptions{}
	fs.StringVar(&opts.user, "user", "", "User scope (empty for global)")
	fs.StringVar(&opts.account, "account", "", "Filter by monitored mailbox address")
	fs.StringVar(&opts.emotion, "emotion", "", "Filter messages by emotion label")
	fs.StringVar(&opts.sender, "sender", "", "Filter messages by sender")
	fs.IntVar(&opts.limit, "limit", 50, "Maximum records to list")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

type accountOptions struct {
	user    string
	account string
	secret  string
	notify  string
	active  bool
}

func parseAccountArgs(args []string) (*accountOptions, error) {
	fs := flag.NewFlagSet("account", flag.ContinueOnError)
	opts := &accountOptions{}
	fs.StringVar(&opts.user, "user", "", "User scope (empty for global)")
	fs.StringVar(&opts.account, "account", "", "Monitored mailbox address")
	fs.StringVar(&opts.secret, "secret", "", "Mailbox API credential")
	fs.StringVar(&opts.notify, "notify", "", "Alert notification target (Telegram chat id)")
	fs.BoolVar(&opts.active, "active", true, "Whether the account is polled")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.account == "" {
		return nil, fmt.Errorf("-account is required")
	}
	return opts, nil
}

type triageOptions struct {
	messageID string
	status    string
	priority  string
}

func parseTriageArgs(args []string) (*triageOptions, error) {
	if len(args) < 1 || len(args[0]) == 0 || args[0][0] == '-' {
		return nil, fmt.Errorf("message id required")
	}
	fs := flag.NewFlagSet("triage", flag.ContinueOnError)
	opts := &triageOptions{messageID: args[0]}
	fs.StringVar(&opts.status, "status", "", "New message status (new, triaged, archived)")
	fs.StringVar(&opts.priority, "priority", "", "New message priority (normal, high)")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	return opts, nil
}

type pollOptions struct {
	user string
}

func parsePollArgs(args []string) (*pollOptions, error) {
	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	opts := &pollOptions{}
	fs.StringVar(&opts.user, "user", "", "User scope (empty for global)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// scopeOf maps a -user flag value onto the nullable user scope.
func scopeOf(user string) *string {
	if user == "" {
		return nil
	}
	return &user
}

func openStore(cfg *config.Config, logger *zap.Logger) core.Store {
	store, err := factory.NewStoreFactory(cfg, logger).CreateStore()
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	return store
}

func runClassify(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) {
	opts, err := parseClassifyArgs(args)
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}

	textProcessor := factory.NewTextProcessorFactory(logger).CreateTextProcessor()
	classifier, err := factory.NewClassifierFactory(cfg, logger, textProcessor).CreateClassifier()
	if err != nil {
		logger.Fatal("Failed to create classifier", zap.Error(err))
	}

	var emailReader io.Reader
	if opts.file != "" {
		file, err := os.Open(opts.file)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", opts.file))
		}
		defer file.Close()
		emailReader = file
	} else {
		emailReader = os.Stdin
	}

	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	subject := msg.Header.Get("Subject")
	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}

	text := string(bodyBytes)
	if subject != "" {
		text = subject + "\n\n" + text
	}

	startTime := time.Now()
	result, err := classifier.Classify(ctx, text)
	if err != nil {
		logger.Fatal("Failed to classify email", zap.Error(err))
	}
	duration := time.Since(startTime)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Emotion: %s\n", result.Emotion)
	fmt.Printf("Confidence: %.4f\n", result.Confidence)
	fmt.Printf("Explanation: %s\n", result.Explanation)
	fmt.Printf("Model used: %s\n", result.ModelUsed)
	fmt.Printf("Processing time: %v\n", duration)

	if closer, ok := classifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close classifier", zap.Error(err))
		}
	}
}

func runTrends(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) {
	opts, err := parseTrendsArgs(args)
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}

	store := openStore(cfg, logger)
	defer store.Close()

	aggregator := core.NewTrendAggregator(store, logger)
	buckets, err := aggregator.Trends(ctx, scopeOf(opts.user), opts.window)
	if err != nil {
		logger.Fatal("Failed to query trends", zap.Error(err))
	}

	for _, bucket := range buckets {
		fmt.Printf("%s  total=%d", bucket.BucketStart.Format("2006-01-02 15:04"), bucket.Total)
		for _, e := range core.Emotions {
			if n := bucket.Counts[e]; n > 0 {
				fmt.Printf("  %s=%d", e, n)
			}
		}
		fmt.Println()
	}
}

func runMessages(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) {
	opts, err := parseMessagesArgs(args)
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}

	store := openStore(cfg, logger)
	defer store.Close()

	filter := core.MessageFilter{
		UserID:        scopeOf(opts.user),
		SourceAccount: opts.account,
		Sender:        opts.sender,
		Limit:         opts.limit,
	}
	if opts.emotion != "" {
		e := core.ParseEmotion(opts.emotion)
		filter.Emotion = &e
	}

	messages, err := store.ListMessages(ctx, filter)
	if err != nil {
		logger.Fatal("Failed to list messages", zap.Error(err))
	}

	for _, m := range messages {
		fmt.Printf("%s  %s  %-11s  %.2f  %-8s  %s\n",
			m.NormalizedTimestamp.Format(time.RFC3339),
			m.MessageID, m.Emotion, m.Confidence, m.Status, m.Sender)
	}
	fmt.Printf("%d message(s)\n", len(messages))
}

func runAlerts(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	store := openStore(cfg, logger)
	defer store.Close()

	alerts, err := store.ListActiveAlerts(ctx)
	if err != nil {
		logger.Fatal("Failed to list alerts", zap.Error(err))
	}

	for _, a := range alerts {
		fmt.Printf("%s  %-8s  %-11s  message=%s  %s\n",
			a.AlertID, a.Severity, a.Emotion, a.MessageID,
			a.CreatedAt.Format(time.RFC3339))
	}
	fmt.Printf("%d active alert(s)\n", len(alerts))
}

func runAlertStatus(ctx context.Context, cfg *config.Config, logger *zap.Logger, status core.AlertStatus, args []string) {
	if len(args) < 1 {
		logger.Fatal("Alert id required")
	}
	alertID := args[0]

	store := openStore(cfg, logger)
	defer store.Close()

	if err := store.UpdateAlertStatus(ctx, alertID, status); err != nil {
		logger.Fatal("Failed to update alert", zap.Error(err), zap.String("alert_id", alertID))
	}
	fmt.Printf("Alert %s is now %s\n", alertID, status)
}

func runTriage(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) {
	opts, err := parseTriageArgs(args)
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}

	store := openStore(cfg, logger)
	defer store.Close()

	msg, err := store.GetMessage(ctx, opts.messageID)
	if err != nil {
		logger.Fatal("Failed to load message", zap.Error(err), zap.String("message_id", opts.messageID))
	}

	status := msg.Status
	if opts.status != "" {
		status = opts.status
	}
	priority := msg.Priority
	if opts.priority != "" {
		priority = opts.priority
	}

	if err := store.UpdateTriage(ctx, opts.messageID, status, priority); err != nil {
		logger.Fatal("Failed to update message", zap.Error(err), zap.String("message_id", opts.messageID))
	}
	fmt.Printf("Message %s: status=%s priority=%s\n", opts.messageID, status, priority)
}

func runAccount(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) {
	opts, err := parseAccountArgs(args)
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}

	store := openStore(cfg, logger)
	defer store.Close()

	now := time.Now().UTC()
	configID, err := store.PutConfig(ctx, &core.AccountConfig{
		UserID:           scopeOf(opts.user),
		Email:            opts.account,
		CredentialSecret: opts.secret,
		NotifyTarget:     opts.notify,
		Active:           opts.active,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		logger.Fatal("Failed to save account config", zap.Error(err))
	}
	fmt.Printf("Saved account config %s for %s\n", configID, opts.account)
}

func runPoll(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) {
	opts, err := parsePollArgs(args)
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}

	store := openStore(cfg, logger)
	defer store.Close()

	accountCfg, err := store.GetConfig(ctx, scopeOf(opts.user))
	if err != nil {
		logger.Fatal("No account configured for scope", zap.Error(err))
	}

	source, err := factory.NewMailSourceFactory(cfg, logger).CreateMailSource()
	if err != nil {
		logger.Fatal("Failed to create mail source", zap.Error(err))
	}

	textProcessor := factory.NewTextProcessorFactory(logger).CreateTextProcessor()
	classifier, err := factory.NewClassifierFactory(cfg, logger, textProcessor).CreateClassifier()
	if err != nil {
		logger.Fatal("Failed to create classifier", zap.Error(err))
	}
	classifierCfg := cfg.GetClassifier()
	gateway := core.NewClassifierGateway(classifier, logger, classifierCfg.Provider, classifierCfg.Timeout)

	alertCfg := cfg.GetAlerts()
	var alerts *core.AlertService
	if alertCfg.Enabled {
		alerts = core.NewAlertService(store, nil, logger,
			alertCfg.NegativeEmotions, alertCfg.ConfidenceThreshold, alertCfg.SeverityMap)
	}

	ingest := core.NewIngestionService(gateway, store, alerts, logger)

	monitorCfg := cfg.GetMonitor()
	worker := monitor.NewWorker(accountCfg, source, store, ingest, logger,
		monitorCfg.PollInterval, monitorCfg.MaxBackoff,
		monitorCfg.FetchTimeout, monitorCfg.OpTimeout)

	startTime := time.Now()
	if err := worker.PollOnce(ctx); err != nil {
		logger.Fatal("Poll failed", zap.Error(err))
	}
	fmt.Printf("Polled %s in %v\n", accountCfg.Email, time.Since(startTime))
}
