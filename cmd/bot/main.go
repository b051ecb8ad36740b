package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/config"
	"github.com/ad/go-telegram-puzzle/internal/db"
	"github.com/ad/go-telegram-puzzle/internal/handlers"
	"github.com/ad/go-telegram-puzzle/internal/httpapi"
	"github.com/ad/go-telegram-puzzle/internal/metrics"
	"github.com/ad/go-telegram-puzzle/internal/services"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	sqlDB, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := db.InitSchema(sqlDB); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	dbQueue := db.NewDBQueue(sqlDB)
	defer dbQueue.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	b, err := bot.New(cfg.BotToken, bot.WithHTTPClient(15*time.Second, httpClient), bot.WithSkipGetMe())
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	var botInfo *tgmodels.User
	for i := 0; i < 3; i++ {
		log.Printf("Attempting to connect to Telegram API (attempt %d/3)...", i+1)
		getMeCtx, getMeCancel := context.WithTimeout(ctx, 10*time.Second)
		botInfo, err = b.GetMe(getMeCtx)
		getMeCancel()
		if err == nil {
			log.Printf("Successfully connected to Telegram API as @%s", botInfo.Username)
			break
		}
		log.Printf("Failed to get bot info (attempt %d/3): %v", i+1, err)
		if i < 2 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatalf("Failed to get bot info after 3 attempts: %v", err)
	}

	app := newApp(cfg, sqlDB, dbQueue, b)

	b.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return true
	}, app.handler.HandleUpdate, logMiddleware)

	log.Printf("Bot started. Admin ID: %d, DB: %s", cfg.AdminID, cfg.DBPath)

	if err := app.run(ctx, b); err != nil {
		log.Fatalf("Stopped with error: %v", err)
	}
	log.Printf("Bot stopped")
}

// app is the fully wired bot and HTTP API.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	engine  *services.PuzzleEngine
	handler *handlers.BotHandler
	api     *httpapi.Server
}

func newApp(cfg *config.Config, sqlDB *sql.DB, dbQueue *db.DBQueue, b *bot.Bot) *app {
	m := metrics.New()

	userRepo := db.NewUserRepository(dbQueue)
	settingsRepo := db.NewSettingsRepository(dbQueue)
	chatStateRepo := db.NewChatStateRepository(dbQueue)
	matchRepo := db.NewMatchRepository(dbQueue)
	messageRepo := db.NewMessageRepository(dbQueue)
	puzzleRepo := db.NewPuzzleRepository(dbQueue, cfg.PuzzleMaxAttempts)
	puzzleRepo.SetConflictHook(m.WriteConflict)

	seed := cfg.RandSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	renderer := services.NewPuzzleRenderer()
	errorManager := services.NewErrorManager(b, cfg.AdminID)
	msgManager := services.NewMessageManager(b, chatStateRepo, errorManager)
	engine := services.NewPuzzleEngine(puzzleRepo, services.NewLockedRand(seed), m)
	matchService := services.NewMatchService(matchRepo, userRepo, m)
	chatService := services.NewChatService(messageRepo, matchService, engine, msgManager, cfg.ChatRatePerMinute, m)
	statsService := services.NewStatisticsService(userRepo, matchRepo, puzzleRepo)

	handler := handlers.NewBotHandler(
		cfg.AdminID,
		errorManager,
		msgManager,
		chatService,
		matchService,
		statsService,
		renderer,
		userRepo,
		settingsRepo,
		chatStateRepo,
	)

	return &app{
		cfg:     cfg,
		metrics: m,
		engine:  engine,
		handler: handler,
		api:     httpapi.NewServer(sqlDB, engine, renderer, m.Registry),
	}
}

// run polls Telegram and serves HTTP until ctx is cancelled.
func (a *app) run(ctx context.Context, b *bot.Bot) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.Start(gCtx)
		return nil
	})
	if a.cfg.HTTPEnabled() {
		g.Go(func() error {
			return a.runHTTP(gCtx)
		})
	}

	return g.Wait()
}

func (a *app) runHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] Listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func formatUser(u tgmodels.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if u.Username != "" {
		name += " @" + u.Username
	}
	return fmt.Sprintf("%s [%d]", name, u.ID)
}

func logMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
		if update.Message != nil && update.Message.From != nil {
			log.Printf("[MSG] from=%s text_len=%d photo=%t", formatUser(*update.Message.From), len([]rune(update.Message.Text)), len(update.Message.Photo) > 0)
		}
		if update.CallbackQuery != nil {
			log.Printf("[CALLBACK] from=%s data=%q", formatUser(update.CallbackQuery.From), update.CallbackQuery.Data)
		}
		next(ctx, b, update)
	}
}
