package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/npoportal/internal/account"
	"github.com/hitoshi/npoportal/internal/auth"
	"github.com/hitoshi/npoportal/internal/config"
	"github.com/hitoshi/npoportal/internal/database"
	"github.com/hitoshi/npoportal/internal/handler"
	"github.com/hitoshi/npoportal/internal/logger"
	"github.com/hitoshi/npoportal/internal/metrics"
	"github.com/hitoshi/npoportal/internal/middleware"
	"github.com/hitoshi/npoportal/internal/notify"
	"github.com/hitoshi/npoportal/internal/repository"
	"github.com/hitoshi/npoportal/internal/security"
	"github.com/hitoshi/npoportal/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	cleanupInterval      = 24 * time.Hour
	sessionSweepInterval = 10 * time.Minute
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	return database.Connect(context.Background(), cfg.DatabaseURL)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリとセッションストアの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)

	sessions, closeSessions, err := newSessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	if purger, ok := sessions.(cleanup.SessionPurger); ok {
		go cleanup.SweepSessions(ctx, purger, sessionSweepInterval, slog.Default())
	}

	// 3. メトリクスとメール送信の初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}

	// 4. ドメインサービスの初期化
	issuer := auth.NewTokenIssuer(cfg.SessionSecret)
	authService := auth.NewService(
		accountRepo, tokenRepo, sessions, notifier, issuer,
		auth.ServiceConfig{
			BaseURL:       cfg.BaseURL,
			SessionMaxAge: cfg.SessionMaxAge,
			TokenTTL:      cfg.PasswordTokenTTL,
		},
		serviceOptions(cfg, collector)...,
	)
	accountService := account.NewService(accountRepo, sessions)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	cookie := middleware.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
		MaxAge: cfg.SessionMaxAge,
	}
	debug := cfg.AppEnv != config.EnvProduction

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessions,
		BearerVerifier:    issuer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:         slog.Default(),
		StatusRecorder: collector,
		MetricsHandler: metrics.Handler(registry),
		Debug:          debug,

		AuthService: authService,
		AuthConfig:  handler.AuthHandlerConfig{Cookie: cookie, Debug: debug},
		PageConfig:  handler.PageConfig{Cookie: cookie},

		AccountService: accountService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("session_store", cfg.SessionStore),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	// 応答後に送信中のメールを待つ
	authService.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// serviceOptions は認証サービスの任意設定を組み立てる。
// 開発用の固定アカウントはdevauthタグ付きビルドかつ開発環境でのみ有効になる。
func serviceOptions(cfg *config.Config, collector metrics.MetricsCollector) []auth.Option {
	opts := []auth.Option{
		auth.WithMetrics(collector),
		auth.WithSanitizer(security.NewTextSanitizer()),
	}
	if cfg.IsDevelopment() {
		if provider := auth.DevIdentityProvider(); provider != nil {
			slog.Warn("development identity provider enabled")
			opts = append(opts, auth.WithIdentityProvider(provider))
		}
	}
	return opts
}

// newSessionStore はSESSION_STOREに応じたセッションストアを生成する。
// 戻り値のclose関数はプロセス終了時に呼び出す。
func newSessionStore(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.SessionStore, func(), error) {
	switch cfg.SessionStore {
	case "postgres":
		return repository.NewPostgresSessionRepo(db), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established", slog.String("addr", cfg.Redis.Addr))
		return repository.NewRedisSessionStore(client), func() { client.Close() }, nil
	default:
		return repository.NewMemorySessionStore(), func() {}, nil
	}
}

// newNotifier はSMTP_HOSTが設定されていれば再送付きのSMTP、未設定ならログ出力のNotifierを生成する。
func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.SMTP.Host == "" {
		slog.Warn("SMTP_HOST is not set; emails will be logged instead of sent")
		return notify.NewLogNotifier(slog.Default()), nil
	}
	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure smtp: %w", err)
	}
	return notify.NewRetryNotifier(n, slog.Default()), nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、トークンとセッションのクリーンアップジョブを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), cfg.TokenRetention)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("interval", cleanupInterval),
		slog.Duration("token_retention", cfg.TokenRetention),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
