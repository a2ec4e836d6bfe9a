package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/plugin/opentelemetry/tracing"

	gomail "gopkg.in/gomail.v2"

	"github.com/right-to-ask/rta/core"
	"github.com/right-to-ask/rta/x/board"
	"github.com/right-to-ask/rta/x/censorship"
	"github.com/right-to-ask/rta/x/dispatch"
	"github.com/right-to-ask/rta/x/emailproof"
	"github.com/right-to-ask/rta/x/identity"
	"github.com/right-to-ask/rta/x/question"
	"github.com/right-to-ask/rta/x/schema"
	"github.com/right-to-ask/rta/x/searchcache"
	"github.com/right-to-ask/rta/x/signing"
	"github.com/right-to-ask/rta/x/similarity"
)

type CustomHandler struct {
	slog.Handler
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("type", "app"))

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(slog.String("traceID", span.SpanContext().TraceID().String()))
		r.AddAttrs(slog.String("spanID", span.SpanContext().SpanID().String()))
	}

	return h.Handler.Handle(ctx, r)
}

var version = "unknown"

func main() {
	handler := &CustomHandler{Handler: slog.NewJSONHandler(os.Stdout, nil)}
	slogger := slog.New(handler)
	slog.SetDefault(slogger)

	slog.Info(fmt.Sprintf("right-to-ask %s starting...", version))

	config := Config{}
	configPath := os.Getenv("RTA_CONFIG")
	if configPath == "" {
		configPath = "/etc/rta/config.toml"
	}
	if err := config.Load(configPath); err != nil {
		slog.Error("failed to load config", "error", err)
	}

	e := echo.New()
	e.HidePort = true
	e.HideBanner = true

	if config.Server.EnableTrace {
		cleanup, err := setupTraceProvider(config.Server.TraceEndpoint, "rta-server", version)
		if err != nil {
			panic(err)
		}
		defer cleanup()

		skipper := otelecho.WithSkipper(func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		})
		e.Use(otelecho.Middleware("rta", skipper))
	}

	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace: "rta",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
	}))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Recover())

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(config.Server.Dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		panic("failed to connect database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic("failed to connect database")
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(25)

	if err := db.Use(tracing.NewPlugin(tracing.WithDBName("postgres"))); err != nil {
		panic("failed to setup gorm tracing plugin")
	}

	// The bulletin board is an independent, append-only store: it gets
	// its own database (and connection pool) so board writes are never
	// blocked behind, or serialized with, the question-store's traffic.
	boardDsn := config.Server.BulletinBoardDsn
	if boardDsn == "" {
		boardDsn = config.Server.Dsn
	}
	boardDB, err := gorm.Open(postgres.Open(boardDsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		panic("failed to connect bulletin board database")
	}
	boardSqlDB, err := boardDB.DB()
	if err != nil {
		panic("failed to connect bulletin board database")
	}
	defer boardSqlDB.Close()
	boardSqlDB.SetMaxOpenConns(25)
	if err := boardDB.Use(tracing.NewPlugin(tracing.WithDBName("postgres"))); err != nil {
		panic("failed to setup gorm tracing plugin")
	}

	slog.Info("running schema migrations")
	db.AutoMigrate(
		&core.SchemaVersion{}, &core.User{}, &core.Electorate{}, &core.UserElectorate{},
		&core.Badge{}, &core.Question{}, &core.PersonForQuestion{}, &core.Answer{},
		&core.Vote{}, &core.ReportedReason{}, &core.EmailRateLimitHistory{},
		&core.DoNotEmail{}, &core.PendingEmailProof{}, &core.QuestionHistoryEntry{},
	)
	boardDB.AutoMigrate(
		&core.BulletinBoardLeaf{}, &core.BulletinBoardBranch{}, &core.PublishedRoot{},
	)
	schemaService := schema.NewService(schema.NewRepository(db), nil)
	if err := schemaService.Advance(context.Background(), 1); err != nil {
		slog.Error("failed to run schema migrations", "error", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: config.Server.RedisAddr})
	if err := redisotel.InstrumentTracing(rdb, redisotel.WithAttributes(
		attribute.KeyValue{Key: "db.name", Value: attribute.StringValue("redis")},
	)); err != nil {
		panic("failed to setup redis tracing plugin")
	}

	serverPrivate, err := core.DecodePrivateKey(config.Server.ServerPrivate)
	if err != nil {
		panic("failed to load server signing key")
	}
	serverPublic := serverPrivate.Public().(ed25519.PublicKey)

	signer := signing.NewService(serverPublic, serverPrivate)
	boardService := board.NewService(board.NewRepository(boardDB), signer)

	vocab := similarity.NewEmptyVocabulary()
	cache := searchcache.New(config.Server.SearchCacheSize)

	identityService := identity.NewService(identity.NewRepository(db))
	censorshipService := censorship.NewService(censorship.NewRepository(db), boardService, cache)
	questionService := question.NewService(question.NewRepository(db), boardService, censorshipService, identityService, cache, config.Server.RequireValidatedEmail)

	var mailer emailproof.Mailer
	if config.Mail.SMTPHost == "" {
		mailer = emailproof.ConsoleMailer{}
	} else {
		mailer = gomail.NewDialer(config.Mail.SMTPHost, config.Mail.SMTPPort, config.Mail.Username, config.Mail.Password)
	}
	emailProofService := emailproof.NewService(emailproof.NewRepository(db), identityService, mailer,
		config.Mail.FromAddr, []byte(config.Server.EmailProofSecret), config.Mail.TestingEmailOverride)

	similarityService := similarity.NewService(similarity.NewRepository(db), cache, vocab, []byte(config.Server.PageTokenKey))

	dispatchService := dispatch.NewService(signer, identityService, questionService, emailProofService, censorshipService, similarityService, boardService)
	dispatchHandler := dispatch.NewHandler(dispatchService)

	apiV1 := e.Group("", dispatchService.IdentifyUser)
	apiV1.POST("/commit/:kind", dispatchHandler.Commit)

	questionHandler := question.NewHandler(questionService)
	e.GET("/question/:id", questionHandler.Get)
	e.GET("/question/:id/history", questionHandler.GetHistory)
	e.GET("/question/:id/followups", questionHandler.ListFollowups)
	e.GET("/questions", questionHandler.List)
	e.GET("/questions/by-creator", questionHandler.ListByCreator)

	boardHandler := board.NewHandler(boardService)
	e.GET("/board/root", func(c echo.Context) error {
		root, err := boardService.LatestRoot(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
		return c.JSON(http.StatusOK, root)
	})
	e.GET("/board/parentless-unpublished", boardHandler.ParentlessUnpublished)
	e.GET("/board/node/:hash", boardHandler.Lookup)
	e.GET("/board/server-public-key", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"content": core.EncodePublicKey(signer.ServerPublicKey())})
	})

	identityHandler := identity.NewHandler(identityService)
	e.GET("/users", identityHandler.GetUserList)
	e.GET("/users/search", identityHandler.SearchUser)
	e.GET("/user", identityHandler.GetUser)

	censorshipHandler := censorship.NewHandler(censorshipService)
	e.GET("/censorship/reported", censorshipHandler.GetReportedQuestions)
	e.GET("/censorship/reported/:id/reasons", censorshipHandler.GetReasonsReported)

	emailProofHandler := emailproof.NewHandler(emailProofService)
	e.GET("/email/do-not-email", emailProofHandler.GetDoNotEmailList)
	e.GET("/email/times-sent", emailProofHandler.GetTimesSent)

	e.GET("/questions/similar", func(c echo.Context) error {
		var cmd core.SimilarQuestionsCommand
		if err := c.Bind(&cmd); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
		}
		result, err := similarityService.Search(c.Request().Context(), cmd)
		if err != nil {
			status, message := core.MapError(err)
			return c.JSON(status, echo.Map{"error": message})
		}
		return c.JSON(http.StatusOK, echo.Map{"content": result})
	})

	e.GET("/health", func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := sqlDB.Ping(); err != nil {
			return c.String(http.StatusInternalServerError, "db error")
		}
		if err := boardSqlDB.Ping(); err != nil {
			return c.String(http.StatusInternalServerError, "board db error")
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return c.String(http.StatusInternalServerError, "redis error")
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echoprometheus.NewHandler())

	boardWriteMetric := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rta_board_publishes_total",
		Help: "number of published bulletin-board roots",
	})
	prometheus.MustRegister(boardWriteMetric)

	go runBoardLoop(boardService, cache, boardWriteMetric)

	e.Logger.Fatal(e.Start(":8000"))
}

// runBoardLoop periodically folds pending leaves into branches and,
// less often, commits a new published root. A write that lands
// between two ticks just waits for the next one -- the board's own
// hash-chaining makes late publication harmless.
func runBoardLoop(boardService core.BoardService, cache *searchcache.Cache, published prometheus.Counter) {
	foldTicker := time.NewTicker(10 * time.Second)
	publishTicker := time.NewTicker(2 * time.Minute)
	defer foldTicker.Stop()
	defer publishTicker.Stop()

	for {
		select {
		case <-foldTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := boardService.Fold(ctx); err != nil {
				slog.Error("failed to fold bulletin board", "error", err)
			}
			cancel()
		case <-publishTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := boardService.Publish(ctx); err != nil {
				slog.Error("failed to publish bulletin board root", "error", err)
			} else {
				published.Inc()
				cache.Invalidate()
			}
			cancel()
		}
	}
}

func setupTraceProvider(endpoint string, serviceName string, serviceVersion string) (func(), error) {
	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(serviceVersion),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(propagator)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shut down tracer provider", "error", err)
		}
	}
	return cleanup, nil
}
