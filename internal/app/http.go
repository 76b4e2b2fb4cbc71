package app

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FedOAuth/FedOAuth/internal/auth"
	"github.com/FedOAuth/FedOAuth/internal/auth/modules/assertion"
	"github.com/FedOAuth/FedOAuth/internal/auth/modules/directory"
	"github.com/FedOAuth/FedOAuth/internal/auth/modules/local"
	"github.com/FedOAuth/FedOAuth/internal/auth/modules/proxy"
	"github.com/FedOAuth/FedOAuth/internal/config"
	"github.com/FedOAuth/FedOAuth/internal/orchestrator"
	"github.com/FedOAuth/FedOAuth/internal/remembered"
	"github.com/FedOAuth/FedOAuth/internal/render"
	"github.com/FedOAuth/FedOAuth/internal/token"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
	"github.com/FedOAuth/FedOAuth/internal/trust"
)

// wiring is everything setupHTTP assembles for the app to run.
type wiring struct {
	router       *gin.Engine
	decider      *trust.Decider
	remembered   remembered.Store
	transactions transaction.Store
	cleanup      func() error
}

func setupHTTP(ctx context.Context, cfg config.Config) (*wiring, error) {

	if cfg.SecretKey == "" || cfg.SecretKey == "setme" {
		return nil, errors.New("please configure a secret key")
	}
	if len(cfg.AuthModules) == 0 {
		return nil, errors.New("no auth modules configured")
	}

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	signer := token.NewSigner(cfg.SecretKey)

	transactionsTimeout := time.Duration(cfg.TransactionsTimeout) * time.Minute
	reauthTimeout := time.Duration(cfg.ReauthTimeout) * time.Minute

	var trStore transaction.Store
	var remStore remembered.Store
	switch cfg.StoreBackend {
	case "postgres":
		trStore = transaction.NewPGStore(infra.DB.DB)
		remStore = remembered.NewPGStore(infra.DB.DB)
	case "redis":
		trStore = transaction.NewRedisStore(infra.Redis.Client, transactionsTimeout)
		remStore = remembered.NewRedisStore(infra.Redis.Client)
	case "memory":
		trStore = transaction.NewMemStore()
		remStore = remembered.NewMemStore()
	}

	renderer, err := render.NewTemplateRenderer(cfg.TemplateDir + "/*.html")
	if err != nil {
		return nil, err
	}

	modules := make([]auth.Module, 0, len(cfg.AuthModules))
	for _, name := range cfg.AuthModules {
		base := auth.NewBase(name, emailAuthDomains(cfg, name), reauthTimeout, remStore)
		switch name {
		case local.Name:
			modules = append(modules, local.New(cfg.Local, base, renderer))
		case directory.Name:
			modules = append(modules, directory.New(cfg.Directory, infra.DB.DB, base, renderer))
		case proxy.Name:
			m, err := proxy.New(ctx, cfg.Proxy, base)
			if err != nil {
				return nil, err
			}
			modules = append(modules, m)
		case assertion.Name:
			modules = append(modules, assertion.New(cfg.Assertion, base, renderer))
		default:
			return nil, errors.New("unknown auth module: " + name)
		}
	}

	registry, err := auth.NewRegistry(modules, listedOrNil(cfg))
	if err != nil {
		return nil, err
	}

	decider := trust.NewDecider(remStore, cfg.TrustedRoots, cfg.NonTrustedRoots)

	orch := orchestrator.New(registry, renderer, cfg.URLRoot, cfg.EnableTestEndpoint)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(transaction.Middleware(transaction.Options{
		Signer:        signer,
		Store:         trStore,
		CookiesSecure: cfg.CookiesSecure,
		Timeout:       transactionsTimeout,
	}))

	orch.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return &wiring{
		router:       router,
		decider:      decider,
		remembered:   remStore,
		transactions: trStore,
		cleanup:      infra.Close,
	}, nil
}

func emailAuthDomains(cfg config.Config, name string) []string {
	switch name {
	case local.Name:
		return cfg.Local.EmailAuthDomains
	case directory.Name:
		return cfg.Directory.EmailAuthDomains
	case proxy.Name:
		return cfg.Proxy.EmailAuthDomains
	case assertion.Name:
		return cfg.Assertion.EmailAuthDomains
	}
	return nil
}

func listedOrNil(cfg config.Config) []string {
	if len(cfg.AuthModulesListed) == 0 {
		return nil
	}
	return cfg.AuthModulesListed
}
