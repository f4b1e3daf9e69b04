package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendcore/core"
	nativecommon "lendcore/native/common"
	"lendcore/native/comptroller"
	"lendcore/services/comptrollerd/feed"
	"lendcore/services/comptrollerd/middleware"
)

// Ledger is the ledger surface served over HTTP. *core.Ledger satisfies it.
type Ledger interface {
	MarketSummaries() ([]core.MarketSummary, error)
	AccountLiquidity(account common.Address) (comptroller.Code, comptroller.Liquidity, error)
	HypotheticalAccountLiquidity(account, modify common.Address, redeemTokens, borrowAmount *uint256.Int) (comptroller.Code, comptroller.Liquidity, error)
	PendingReward(rt comptroller.RewardType, holder common.Address) (*uint256.Int, error)
	RewardBalance(rt comptroller.RewardType, account common.Address) (*uint256.Int, error)
	RewardReserve(rt comptroller.RewardType) (*uint256.Int, error)

	Mint(ctx context.Context, market, minter common.Address, amount *uint256.Int) (*uint256.Int, error)
	Redeem(ctx context.Context, market, redeemer common.Address, tokens *uint256.Int) (*uint256.Int, error)
	Borrow(ctx context.Context, market, borrower common.Address, amount *uint256.Int) error
	RepayBorrow(ctx context.Context, market, payer, borrower common.Address, amount *uint256.Int) (*uint256.Int, error)
	LiquidateBorrow(ctx context.Context, market, liquidator, borrower common.Address, repay *uint256.Int, collateral common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, market, src, dst common.Address, tokens *uint256.Int) error
	EnterMarkets(ctx context.Context, account common.Address, markets []common.Address) ([]comptroller.Code, error)
	ExitMarket(ctx context.Context, account, market common.Address) (comptroller.Code, error)
	ClaimReward(ctx context.Context, rt comptroller.RewardType, holder common.Address, markets []common.Address) (*uint256.Int, error)

	CreateMarket(ctx context.Context, caller, market common.Address, symbol string, exchangeRate *uint256.Int) error
	PostPrice(ctx context.Context, caller, market common.Address, price *uint256.Int) error
	FundRewards(ctx context.Context, caller common.Address, rt comptroller.RewardType, amount *uint256.Int) error
	Admin(ctx context.Context, name string, fn func(engine *comptroller.Engine) (comptroller.Code, error)) error
	MarketAdmin(ctx context.Context, name string, market common.Address, fn func(m core.MarketAdminOps) error) error
}

// EventStore serves archived events. *archive.Archive satisfies it.
type EventStore interface {
	List(ctx context.Context, after uint64, limit int) ([]feed.Record, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger  Ledger
	Auth    *middleware.Authenticator
	Limiter *middleware.RateLimiter
	Events  *feed.Ring
	// Archive, when set, serves the event history beyond the ring.
	Archive EventStore
	// Pauses is the operator kill switch shared with the ledger. Nil
	// disables the module pause route.
	Pauses *nativecommon.PauseSet
	Logger *slog.Logger
}

// Server serves the comptroller API.
type Server struct {
	ledger  Ledger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	events  *feed.Ring
	archive EventStore
	pauses  *nativecommon.PauseSet
	logger  *slog.Logger

	router http.Handler
}

// New validates cfg and builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("server: ledger required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("server: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, logger)
	}
	ring := cfg.Events
	if ring == nil {
		ring = feed.NewRing(0)
	}
	srv := &Server{
		ledger:  cfg.Ledger,
		auth:    cfg.Auth,
		limiter: limiter,
		events:  ring,
		archive: cfg.Archive,
		pauses:  cfg.Pauses,
		logger:  logger,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(read chi.Router) {
			read.Use(s.auth.Middleware(middleware.ScopeRead), s.limiter.Middleware("read"))
			read.Get("/markets", s.listMarkets)
			read.Get("/accounts/{account}/liquidity", s.accountLiquidity)
			read.Get("/accounts/{account}/liquidity/hypothetical", s.hypotheticalLiquidity)
			read.Get("/accounts/{account}/rewards/{type}", s.accountRewards)
			read.Get("/rewards/{type}/reserve", s.rewardReserve)
			read.Get("/events", s.listEvents)
			read.Get("/events/stream", s.streamEvents)
		})
		api.Group(func(write chi.Router) {
			write.Use(s.auth.Middleware(middleware.ScopeWrite), s.limiter.Middleware("write"))
			write.Post("/markets/{market}/mint", s.mint)
			write.Post("/markets/{market}/redeem", s.redeem)
			write.Post("/markets/{market}/borrow", s.borrow)
			write.Post("/markets/{market}/repay", s.repay)
			write.Post("/markets/{market}/liquidate", s.liquidate)
			write.Post("/markets/{market}/transfer", s.transfer)
			write.Post("/accounts/enter", s.enterMarkets)
			write.Post("/accounts/exit", s.exitMarket)
			write.Post("/rewards/{type}/claim", s.claimReward)
		})
		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.auth.Middleware(middleware.ScopeAdmin), s.limiter.Middleware("admin"))
			admin.Post("/markets", s.createMarket)
			admin.Post("/prices", s.postPrice)
			admin.Post("/close-factor", s.setCloseFactor)
			admin.Post("/liquidation-incentive", s.setLiquidationIncentive)
			admin.Post("/max-assets", s.setMaxAssets)
			admin.Post("/borrow-caps", s.setBorrowCaps)
			admin.Post("/roles/{role}", s.setRole)
			admin.Post("/admin/pending", s.setPendingAdmin)
			admin.Post("/admin/accept", s.acceptAdmin)
			admin.Post("/pause", s.setActionPaused)
			admin.Post("/markets/{market}/collateral-factor", s.setCollateralFactor)
			admin.Post("/markets/{market}/reward-speeds/{type}", s.setRewardSpeeds)
			admin.Post("/markets/{market}/fund", s.fundAccount)
			admin.Post("/markets/{market}/cash", s.seedCash)
			admin.Post("/markets/{market}/borrow-index", s.setBorrowIndex)
			admin.Post("/markets/{market}/exchange-rate", s.setExchangeRate)
			admin.Post("/rewards/{type}/fund", s.fundRewards)
			admin.Post("/rewards/{type}/grant", s.grantReward)
			admin.Put("/modules/{module}/pause", s.setModulePaused)
		})
	})

	return otelhttp.NewHandler(r, "comptrollerd")
}

// caller resolves the authenticated subject to an account address.
func caller(r *http.Request) (common.Address, error) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		return common.Address{}, errors.New("token subject required")
	}
	addr, err := comptroller.ParseAddress(subject)
	if err != nil || addr == (common.Address{}) {
		return common.Address{}, errors.New("token subject must be an account address")
	}
	return addr, nil
}

func addressParam(r *http.Request, name string) (common.Address, error) {
	return parseAccount(name, chi.URLParam(r, name))
}

func parseAccount(field, value string) (common.Address, error) {
	addr, err := comptroller.ParseAddress(value)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, errors.New(field + " required")
	}
	return addr, nil
}

func rewardParam(r *http.Request) (comptroller.RewardType, error) {
	return comptroller.ParseRewardType(chi.URLParam(r, "type"))
}
