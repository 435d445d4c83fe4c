// Package shop implements the merch shop user journey: authenticate, read
// the balance, sometimes transfer coins, sometimes buy an item, then idle.
package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/shopapi"
	"github.com/wesleyorama2/merchload/internal/vu"
	"github.com/wesleyorama2/merchload/pkg/jsonschema"
)

// ErrAuthFailed aborts an iteration whose authentication step failed.
var ErrAuthFailed = errors.New("authentication failed")

// Series recorded by the scenario, in addition to the built-in ones.
const (
	AuthDuration     = "auth_duration"
	InfoDuration     = "info_duration"
	SendCoinDuration = "send_coin_duration"
	BuyItemDuration  = "buy_item_duration"
)

// Check names.
const (
	CheckAuthStatus     = "auth status is 200"
	CheckHasToken       = "has token"
	CheckInfoStatus     = "info status is 200"
	CheckHasCoins       = "has coins"
	CheckInfoSchema     = "info matches schema"
	CheckSendCoinStatus = "send coins status is 200"
	CheckBuyItemStatus  = "buy item status is 200"
)

// Trends lists every trend the scenario may record.
var Trends = []string{AuthDuration, InfoDuration, SendCoinDuration, BuyItemDuration}

// Config configures the journey.
type Config struct {
	// Users is the size of the credential fixture (default 100).
	Users int

	// UserPrefix names fixture users: prefix + index (default "testuser").
	UserPrefix string

	// Password is shared by every fixture user (default "password123").
	Password string

	// SendCoinProbability is the chance an iteration transfers coins.
	SendCoinProbability float64

	// BuyItemProbability is the chance an iteration buys an item.
	BuyItemProbability float64

	// MaxTransfer bounds a transfer amount, drawn from [1, MaxTransfer].
	MaxTransfer int64

	// MaxIdle bounds the closing pause, drawn from [0, MaxIdle).
	MaxIdle time.Duration

	// Items to buy from (default: the full catalog).
	Items []string

	// ValidateInfoSchema adds a schema check on the balance response.
	ValidateInfoSchema bool

	// Preflight makes Setup fail when the target does not answer at all.
	Preflight bool
}

// DefaultConfig returns the standard journey mix.
func DefaultConfig() Config {
	return Config{
		Users:               100,
		UserPrefix:          "testuser",
		Password:            "password123",
		SendCoinProbability: 0.3,
		BuyItemProbability:  0.2,
		MaxTransfer:         100,
		MaxIdle:             100 * time.Millisecond,
		Items:               shopapi.ItemNames(),
	}
}

// Credentials identify one fixture user.
type Credentials struct {
	Username string
	Password string
}

// Fixture is the shared, read-only data set built during setup.
type Fixture struct {
	Users []Credentials
}

// UserState is the per-VU state attached at VU creation.
type UserState struct {
	Credentials
}

// Scenario runs the journey against a shop client.
type Scenario struct {
	config     Config
	client     *shopapi.Client
	logger     *zap.Logger
	infoSchema *jsonschema.Schema
	fixture    *Fixture
}

// New creates a scenario. Zero-valued config fields fall back to
// DefaultConfig, except the probabilities, which are taken as given.
func New(config Config, client *shopapi.Client, logger *zap.Logger) (*Scenario, error) {
	d := DefaultConfig()
	if config.Users <= 0 {
		config.Users = d.Users
	}
	if config.UserPrefix == "" {
		config.UserPrefix = d.UserPrefix
	}
	if config.Password == "" {
		config.Password = d.Password
	}
	if config.MaxTransfer <= 0 {
		config.MaxTransfer = d.MaxTransfer
	}
	if len(config.Items) == 0 {
		config.Items = d.Items
	}
	if config.MaxIdle < 0 {
		return nil, fmt.Errorf("maxIdle must be non-negative, got %v", config.MaxIdle)
	}
	for name, p := range map[string]float64{
		"sendCoinProbability": config.SendCoinProbability,
		"buyItemProbability":  config.BuyItemProbability,
	} {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("%s must be within [0, 1], got %v", name, p)
		}
	}
	if client == nil {
		return nil, errors.New("shop client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scenario{config: config, client: client, logger: logger}
	if config.ValidateInfoSchema {
		schema, err := jsonschema.Compile(shopapi.InfoSchema)
		if err != nil {
			return nil, fmt.Errorf("compile info schema: %w", err)
		}
		s.infoSchema = schema
	}
	return s, nil
}

// Name returns the scenario name.
func (s *Scenario) Name() string { return "shop" }

// Config returns the effective configuration.
func (s *Scenario) Config() Config { return s.config }

// Setup builds the credential fixture.
func (s *Scenario) Setup(ctx context.Context) error {
	if s.config.Preflight {
		if err := s.client.Ping(ctx); err != nil {
			return fmt.Errorf("target %s unreachable: %w", s.client.BaseURL(), err)
		}
	}
	users := make([]Credentials, s.config.Users)
	for i := range users {
		users[i] = Credentials{
			Username: fmt.Sprintf("%s%d", s.config.UserPrefix, i),
			Password: s.config.Password,
		}
	}
	s.fixture = &Fixture{Users: users}
	s.logger.Info("shop fixture ready",
		zap.Int("users", len(users)),
		zap.String("target", s.client.BaseURL()))
	return ctx.Err()
}

// DeclareSeries registers the step trends so that they are reported even
// when a step never ran.
func (s *Scenario) DeclareSeries(r *metrics.Registry) {
	r.Declare(metrics.KindTrend, Trends...)
}

// Fixture returns the fixture built by Setup, or nil before Setup.
func (s *Scenario) Fixture() *Fixture { return s.fixture }

// InitVU binds a VU to the fixture user at ID modulo the fixture size.
func (s *Scenario) InitVU(v *vu.VirtualUser) error {
	if s.fixture == nil || len(s.fixture.Users) == 0 {
		return errors.New("shop fixture not initialised")
	}
	v.Data = &UserState{Credentials: s.fixture.Users[v.ID%len(s.fixture.Users)]}
	return nil
}

// Teardown has nothing to release; it logs the end of the journey.
func (s *Scenario) Teardown(ctx context.Context) error {
	s.logger.Debug("shop scenario teardown")
	return ctx.Err()
}

// Iteration runs one journey for v and records its samples into res.
//
// A failed authentication records its samples and returns ErrAuthFailed
// without touching any other endpoint. Failures of later steps are
// recorded but do not stop the journey.
func (s *Scenario) Iteration(ctx context.Context, v *vu.VirtualUser, res *metrics.IterationResult) error {
	state, ok := v.Data.(*UserState)
	if !ok {
		return fmt.Errorf("VU %d has no shop state", v.ID)
	}
	rng := v.Rand()

	token, err := s.authenticate(ctx, state, res)
	if err != nil {
		return err
	}

	s.readInfo(ctx, token, res)

	if rng.Float64() < s.config.SendCoinProbability {
		to := s.fixture.Users[rng.Intn(len(s.fixture.Users))].Username
		amount := rng.Int63n(s.config.MaxTransfer) + 1
		s.sendCoin(ctx, token, to, amount, res)
	}

	if rng.Float64() < s.config.BuyItemProbability {
		item := s.config.Items[rng.Intn(len(s.config.Items))]
		s.buyItem(ctx, token, item, res)
	}

	if s.config.MaxIdle > 0 {
		pause := time.Duration(rng.Float64() * float64(s.config.MaxIdle))
		timer := time.NewTimer(pause)
		// Every step has run; cancellation only shortens the pause.
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	return nil
}

func (s *Scenario) authenticate(ctx context.Context, state *UserState, res *metrics.IterationResult) (string, error) {
	resp, err := s.client.Auth(ctx, state.Username, state.Password)
	recordHTTP(res, AuthDuration, resp, err)

	var token string
	if resp.OK() {
		if tok, found := resp.Lookup("$.token"); found && tok.Type == gjson.String {
			token = tok.String()
		}
	}
	statusOK := res.Check(CheckAuthStatus, resp.OK())
	hasToken := res.Check(CheckHasToken, token != "")
	res.AddRate(metrics.Errors, !(statusOK && hasToken))

	if statusOK && hasToken {
		return token, nil
	}

	s.logger.Debug("auth failed",
		zap.String("username", state.Username),
		zap.Int("status", resp.StatusCode),
		zap.String("reason", reason(resp, err)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return "", fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
}

func (s *Scenario) readInfo(ctx context.Context, token string, res *metrics.IterationResult) {
	resp, err := s.client.Info(ctx, token)
	recordHTTP(res, InfoDuration, resp, err)

	ok := res.Check(CheckInfoStatus, resp.OK())
	ok = res.Check(CheckHasCoins, resp.OK() && resp.Has("$.coins")) && ok
	if s.infoSchema != nil {
		valid := false
		if resp.OK() {
			var errs jsonschema.ValidationErrors
			valid, errs = s.infoSchema.ValidateBytes(resp.Body)
			if !valid {
				s.logger.Debug("info schema mismatch", zap.Error(errs))
			}
		}
		ok = res.Check(CheckInfoSchema, valid) && ok
	}
	res.AddRate(metrics.Errors, !ok)
}

func (s *Scenario) sendCoin(ctx context.Context, token, to string, amount int64, res *metrics.IterationResult) {
	resp, err := s.client.SendCoin(ctx, token, to, amount)
	recordHTTP(res, SendCoinDuration, resp, err)

	ok := res.Check(CheckSendCoinStatus, resp.OK())
	res.AddRate(metrics.Errors, !ok)
	if !ok {
		s.logger.Debug("send coins failed",
			zap.String("toUser", to),
			zap.Int64("amount", amount),
			zap.Int("status", resp.StatusCode),
			zap.String("reason", reason(resp, err)))
	}
}

func (s *Scenario) buyItem(ctx context.Context, token, item string, res *metrics.IterationResult) {
	resp, err := s.client.Buy(ctx, token, item)
	recordHTTP(res, BuyItemDuration, resp, err)

	ok := res.Check(CheckBuyItemStatus, resp.OK())
	res.AddRate(metrics.Errors, !ok)
	if !ok {
		s.logger.Debug("buy item failed",
			zap.String("item", item),
			zap.Int("status", resp.StatusCode),
			zap.String("reason", reason(resp, err)))
	}
}

// recordHTTP records the step trend and the shared HTTP series.
func recordHTTP(res *metrics.IterationResult, step string, resp *shopapi.Response, err error) {
	res.AddDuration(step, resp.Duration)
	res.AddDuration(metrics.HTTPReqDuration, resp.Duration)
	if err == nil {
		res.AddDuration(metrics.HTTPReqWaiting, resp.Waiting)
	}
	res.AddRate(metrics.HTTPReqFailed, err != nil || resp.Failed())
	res.AddCounter(metrics.HTTPReqs, 1)
}

func reason(resp *shopapi.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	return resp.ErrorMessage()
}
