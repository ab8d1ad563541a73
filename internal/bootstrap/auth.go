package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/consorcio10demayo/canalero-auth/config"
	"github.com/consorcio10demayo/canalero-auth/internal/adapters/authroles"
	"github.com/consorcio10demayo/canalero-auth/internal/adapters/devauth"
	"github.com/consorcio10demayo/canalero-auth/internal/adapters/postgrest"
	"github.com/consorcio10demayo/canalero-auth/internal/adapters/redisstate"
	"github.com/consorcio10demayo/canalero-auth/internal/adapters/statefile"
	"github.com/consorcio10demayo/canalero-auth/internal/adapters/supabase"
	"github.com/consorcio10demayo/canalero-auth/internal/data"
	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	"github.com/consorcio10demayo/canalero-auth/internal/observability/report"
	"github.com/consorcio10demayo/canalero-auth/internal/observability/report/pagerduty"
	"github.com/consorcio10demayo/canalero-auth/internal/observability/report/slack"
	"github.com/consorcio10demayo/canalero-auth/internal/observability/statsd"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
	"github.com/consorcio10demayo/canalero-auth/internal/service"
)

// AuthStackOptions carries the loaded configuration plus externally managed
// handles. DB and RedisClient are only consulted when the matching backend
// is selected in config.
type AuthStackOptions struct {
	Config      config.AppConfig
	Logger      *slog.Logger
	DB          *sql.DB               // required when AUTH_PROFILE_BACKEND=postgres
	RedisClient redis.UniversalClient // required when AUTH_SNAPSHOT_BACKEND=redis
	HTTPClient  *http.Client          // optional, shared by the provider and data API clients
}

// AuthStack bundles the wired auth components for an embedding application.
type AuthStack struct {
	Provider ports.IdentityProvider
	Manager  *service.SessionManager
	Policy   *service.AccessPolicy
	Flow     *service.VerificationFlow
	Tokens   *service.TokenCache

	Reporter *report.Reporter
	Metrics  *statsd.Client
}

// BuildAuthStack wires the session manager, access policy, verification
// flow, and token cache from configuration. Optional observability backends
// degrade with a warning; a missing required backend is an error.
func BuildAuthStack(opts AuthStackOptions) (*AuthStack, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	metrics := buildMetrics(cfg.Observability.Metrics, logger)
	reporter := buildReporter(cfg.Observability.Reporting, logger)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Supabase.RequestTimeout}
	}

	provider, err := buildProvider(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	profiles, err := buildProfileStore(cfg, opts.DB, httpClient, provider, logger)
	if err != nil {
		return nil, err
	}

	defaultRole := domainauth.ParseRole(cfg.Auth.DefaultRole)

	managerOpts := service.SessionManagerOptions{
		Provider:    provider,
		Profiles:    profiles,
		Snapshots:   buildSnapshotStore(cfg.Auth, opts.RedisClient, logger),
		Metrics:     metricsSink(metrics),
		Logger:      logger.With("component", "auth"),
		DefaultRole: defaultRole,
	}
	if reporter != nil {
		managerOpts.Reporter = reporter
	}

	manager, err := service.NewSessionManager(managerOpts)
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}

	mapper, err := authroles.NewMapper(authroles.MapperOptions{
		Expression: cfg.Auth.RoleExpression,
		Default:    defaultRole,
		Logger:     logger.With("component", "auth_roles"),
	})
	if err != nil {
		return nil, fmt.Errorf("build role mapper: %w", err)
	}

	policy, err := service.NewAccessPolicy(manager, mapper)
	if err != nil {
		return nil, fmt.Errorf("build access policy: %w", err)
	}

	flow, err := service.NewVerificationFlow(service.VerificationFlowOptions{
		Provider:     provider,
		Manager:      manager,
		Policy:       policy,
		FrontendURL:  cfg.Auth.FrontendURL,
		CallbackPath: cfg.Auth.CallbackPath,
		Metrics:      metricsSink(metrics),
		Logger:       logger.With("component", "verify"),
	})
	if err != nil {
		return nil, fmt.Errorf("build verification flow: %w", err)
	}

	tokens, err := service.NewTokenCache(service.TokenCacheOptions{
		Source:       manager,
		TTL:          cfg.Auth.TokenTTL,
		SafetyMargin: cfg.Auth.TokenSafetyMargin,
		Metrics:      metricsSink(metrics),
		Logger:       logger.With("component", "token_cache"),
	})
	if err != nil {
		flow.Close()
		return nil, fmt.Errorf("build token cache: %w", err)
	}

	manager.EnsureListener()

	return &AuthStack{
		Provider: provider,
		Manager:  manager,
		Policy:   policy,
		Flow:     flow,
		Tokens:   tokens,
		Reporter: reporter,
		Metrics:  metrics,
	}, nil
}

// Close detaches listeners and releases background resources. The stack is
// unusable afterwards.
func (s *AuthStack) Close() error {
	if s == nil {
		return nil
	}
	if s.Flow != nil {
		s.Flow.Close()
	}
	if s.Tokens != nil {
		s.Tokens.Close()
	}
	if s.Manager != nil {
		s.Manager.Close()
	}
	if s.Reporter != nil {
		s.Reporter.Flush()
	}
	if s.Metrics != nil {
		return s.Metrics.Close()
	}
	return nil
}

//nolint:ireturn // the provider backend is picked at runtime from config.
func buildProvider(cfg config.AppConfig, httpClient *http.Client, logger *slog.Logger) (ports.IdentityProvider, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			UserID: cfg.Auth.DevAuth.UserID,
			Email:  cfg.Auth.DevAuth.Email,
			Nombre: cfg.Auth.DevAuth.Nombre,
			Role:   domainauth.ParseRole(cfg.Auth.DevAuth.Rol),
		})
		if err != nil {
			return nil, fmt.Errorf("build dev auth provider: %w", err)
		}
		logger.Warn("auth running in mock mode; sessions are fabricated locally")
		return prov, nil

	case config.AuthModeSupabase:
		if !cfg.Supabase.Configured() {
			return nil, errors.New("supabase auth selected but SUPABASE_URL or API key is missing")
		}
		prov, err := supabase.NewProvider(supabase.Config{
			ProjectURL:  cfg.Supabase.URL,
			APIKey:      cfg.Supabase.EffectivePublishableKey(),
			JWTSecret:   cfg.Supabase.JWTSecret,
			UsePKCE:     cfg.Supabase.UsePKCE,
			RefreshSkew: cfg.Auth.RefreshSkew,
			HTTPClient:  httpClient,
			Logger:      logger.With("component", "supabase"),
		})
		if err != nil {
			return nil, fmt.Errorf("build supabase provider: %w", err)
		}
		return prov, nil

	default:
		return nil, fmt.Errorf("unknown auth mode: %q", cfg.Auth.Mode)
	}
}

//nolint:ireturn // the profile backend is picked at runtime from config.
func buildProfileStore(
	cfg config.AppConfig,
	db *sql.DB,
	httpClient *http.Client,
	provider ports.IdentityProvider,
	logger *slog.Logger,
) (ports.ProfileStore, error) {
	if cfg.Auth.Mode == config.AuthModeMock {
		if cfg.Auth.Profiles == config.ProfilePostgres && db != nil {
			return data.NewProfileRepo(db), nil
		}
		logger.Warn("mock mode stores profiles in memory")
		return devauth.NewProfileStore(), nil
	}

	switch cfg.Auth.Profiles {
	case config.ProfilePostgres:
		if db == nil {
			return nil, errors.New("profile backend postgres requires a database handle")
		}
		return data.NewProfileRepo(db), nil

	case config.ProfilePostgREST:
		if !cfg.Supabase.Configured() {
			return nil, errors.New("profile backend postgrest requires supabase settings")
		}
		store, err := postgrest.NewProfileStore(postgrest.Config{
			ProjectURL: cfg.Supabase.URL,
			APIKey:     cfg.Supabase.EffectivePublishableKey(),
			// Data API requests run as the signed-in user so row level
			// security applies.
			TokenSource: func(ctx context.Context) (string, error) {
				sess, err := provider.CurrentSession(ctx)
				if err != nil {
					return "", err
				}
				return sess.AccessToken, nil
			},
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("build postgrest profile store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown profile backend: %q", cfg.Auth.Profiles)
	}
}

//nolint:ireturn // nil means the manager falls back to its in-memory store.
func buildSnapshotStore(cfg config.AuthConfig, redisClient redis.UniversalClient, logger *slog.Logger) ports.SnapshotStore {
	switch cfg.Snapshot {
	case config.SnapshotRedis:
		if redisClient == nil {
			logger.Warn("snapshot backend redis requires a redis client; using memory")
			return nil
		}
		return redisstate.NewStore(redisClient)

	case config.SnapshotFile:
		return statefile.NewStore(cfg.SnapshotPath)

	default:
		return nil
	}
}

func buildReporter(cfg config.ReportingConfig, logger *slog.Logger) *report.Reporter {
	var sinks []report.SinkRegistration

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Warn("slack reporting disabled", "error", err)
		} else {
			sinks = append(sinks, report.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Warn("pagerduty reporting disabled", "error", err)
		} else {
			sinks = append(sinks, report.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	if len(sinks) == 0 {
		return nil
	}

	return report.NewReporter(report.Options{
		Logger: logger.With("component", "error_reporter"),
		Sinks:  sinks,
	})
}

func buildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger.With("component", "statsd"),
	})
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
		return nil
	}
	return client
}

// metricsSink avoids handing the services a typed-nil interface value.
//
//nolint:ireturn // adapters accept the Sink interface.
func metricsSink(client *statsd.Client) statsd.Sink {
	if client == nil {
		return nil
	}
	return client
}
