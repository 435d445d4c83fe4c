package shop

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/mockshop"
	"github.com/wesleyorama2/merchload/internal/shopapi"
	"github.com/wesleyorama2/merchload/internal/vu"
)

// constSource makes every draw return the same value, which pins the
// journey's branch decisions.
type constSource int64

func (s constSource) Int63() int64 { return int64(s) }
func (constSource) Seed(int64)     {}

// takeAll makes Float64 return 0: every optional step runs.
var takeAll = constSource(0)

// skipAll makes Float64 return 0.5: no optional step runs.
var skipAll = constSource(1 << 62)

func newScenario(t *testing.T, baseURL string, mutate func(*Config)) *Scenario {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxIdle = 0
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg, shopapi.NewClient(shopapi.WithBaseURL(baseURL)), nil)
	require.NoError(t, err)
	require.NoError(t, s.Setup(context.Background()))
	return s
}

func newVU(t *testing.T, s *Scenario, id int, src rand.Source) *vu.VirtualUser {
	t.Helper()
	v := vu.New(id, rand.New(src))
	require.NoError(t, s.InitVU(v))
	return v
}

func TestIteration_AllStepsTaken(t *testing.T) {
	shop := mockshop.New(mockshop.Options{Lenient: true})
	ts := httptest.NewServer(shop)
	defer ts.Close()

	s := newScenario(t, ts.URL, nil)
	v := newVU(t, s, 1, takeAll)
	res := metrics.NewIterationResult()

	require.NoError(t, s.Iteration(context.Background(), v, res))

	for _, ep := range []string{mockshop.EndpointAuth, mockshop.EndpointInfo, mockshop.EndpointSendCoin, mockshop.EndpointBuy} {
		assert.Equal(t, int64(1), shop.Calls(ep), ep)
	}
	for _, name := range Trends {
		assert.Len(t, res.TrendValues(name), 1, name)
	}
	assert.Len(t, res.TrendValues(metrics.HTTPReqDuration), 4)
	assert.Equal(t, []bool{false, false, false, false}, res.RateValues(metrics.Errors))

	for _, check := range []string{CheckAuthStatus, CheckHasToken, CheckInfoStatus, CheckHasCoins, CheckSendCoinStatus, CheckBuyItemStatus} {
		passed, ran := res.CheckResult(check)
		assert.True(t, ran, check)
		assert.True(t, passed, check)
	}
	_, ran := res.CheckResult(CheckInfoSchema)
	assert.False(t, ran, "schema check is opt-in")

	// Transfer went to the first fixture user for the minimum amount.
	coins, ok := shop.Balance("testuser0")
	require.True(t, ok)
	assert.Equal(t, int64(1001), coins)
}

func TestIteration_OptionalStepsSkipped(t *testing.T) {
	shop := mockshop.New(mockshop.Options{})
	ts := httptest.NewServer(shop)
	defer ts.Close()

	s := newScenario(t, ts.URL, nil)
	v := newVU(t, s, 0, skipAll)
	res := metrics.NewIterationResult()

	require.NoError(t, s.Iteration(context.Background(), v, res))

	assert.Equal(t, int64(1), shop.Calls(mockshop.EndpointAuth))
	assert.Equal(t, int64(1), shop.Calls(mockshop.EndpointInfo))
	assert.Equal(t, int64(0), shop.Calls(mockshop.EndpointSendCoin))
	assert.Equal(t, int64(0), shop.Calls(mockshop.EndpointBuy))
	assert.Empty(t, res.TrendValues(SendCoinDuration))
	assert.Empty(t, res.TrendValues(BuyItemDuration))
}

func TestIteration_AuthRejectedShortCircuits(t *testing.T) {
	shop := mockshop.New(mockshop.Options{
		Accounts: map[string]string{"testuser0": "someone-elses-password"},
	})
	ts := httptest.NewServer(shop)
	defer ts.Close()

	s := newScenario(t, ts.URL, nil)
	v := newVU(t, s, 0, takeAll)
	res := metrics.NewIterationResult()

	err := s.Iteration(context.Background(), v, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthFailed))

	assert.Equal(t, int64(1), shop.Calls(mockshop.EndpointAuth))
	assert.Equal(t, int64(0), shop.Calls(mockshop.EndpointInfo))
	assert.Equal(t, int64(0), shop.Calls(mockshop.EndpointSendCoin))
	assert.Equal(t, int64(0), shop.Calls(mockshop.EndpointBuy))

	assert.Equal(t, []bool{true}, res.RateValues(metrics.Errors))
	assert.Len(t, res.TrendValues(AuthDuration), 1)
	passed, _ := res.CheckResult(CheckAuthStatus)
	assert.False(t, passed)
}

func TestIteration_EmptyTokenRejected(t *testing.T) {
	var others atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != shopapi.PathAuth {
			others.Add(1)
			return
		}
		_ = json.NewEncoder(w).Encode(shopapi.AuthResponse{Token: ""})
	}))
	defer ts.Close()

	s := newScenario(t, ts.URL, nil)
	res := metrics.NewIterationResult()

	err := s.Iteration(context.Background(), newVU(t, s, 0, takeAll), res)
	assert.True(t, errors.Is(err, ErrAuthFailed))
	assert.Equal(t, int64(0), others.Load())

	statusOK, _ := res.CheckResult(CheckAuthStatus)
	hasToken, _ := res.CheckResult(CheckHasToken)
	assert.True(t, statusOK)
	assert.False(t, hasToken)
}

func TestIteration_NetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	s := newScenario(t, url, nil)
	res := metrics.NewIterationResult()

	err := s.Iteration(context.Background(), newVU(t, s, 0, takeAll), res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthFailed))

	var netErr *shopapi.NetworkError
	assert.True(t, errors.As(err, &netErr))
	assert.Equal(t, []bool{true}, res.RateValues(metrics.HTTPReqFailed))
}

func TestIteration_StepFailureDoesNotAbort(t *testing.T) {
	// Strict shop: the transfer to a never-seen user fails, the purchase
	// still runs.
	shop := mockshop.New(mockshop.Options{})
	ts := httptest.NewServer(shop)
	defer ts.Close()

	s := newScenario(t, ts.URL, nil)
	res := metrics.NewIterationResult()

	require.NoError(t, s.Iteration(context.Background(), newVU(t, s, 1, takeAll), res))

	assert.Equal(t, int64(1), shop.Calls(mockshop.EndpointSendCoin))
	assert.Equal(t, int64(1), shop.Calls(mockshop.EndpointBuy))
	assert.Equal(t, []bool{false, false, true, false}, res.RateValues(metrics.Errors))
	passed, _ := res.CheckResult(CheckSendCoinStatus)
	assert.False(t, passed)
}

func TestIteration_SchemaCheck(t *testing.T) {
	shop := mockshop.New(mockshop.Options{})
	ts := httptest.NewServer(shop)
	defer ts.Close()

	s := newScenario(t, ts.URL, func(c *Config) { c.ValidateInfoSchema = true })
	res := metrics.NewIterationResult()

	require.NoError(t, s.Iteration(context.Background(), newVU(t, s, 0, skipAll), res))
	passed, ran := res.CheckResult(CheckInfoSchema)
	assert.True(t, ran)
	assert.True(t, passed)
}

func TestIteration_IdlePause(t *testing.T) {
	shop := mockshop.New(mockshop.Options{})
	ts := httptest.NewServer(shop)
	defer ts.Close()

	s := newScenario(t, ts.URL, func(c *Config) { c.MaxIdle = 100 * time.Millisecond })
	res := metrics.NewIterationResult()

	start := time.Now()
	require.NoError(t, s.Iteration(context.Background(), newVU(t, s, 0, skipAll), res))
	// skipAll draws 0.5, so the pause is 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestInitVU_AssignsFixtureByID(t *testing.T) {
	s := newScenario(t, "http://127.0.0.1:0", func(c *Config) { c.Users = 3 })

	for id, want := range map[int]string{0: "testuser0", 2: "testuser2", 3: "testuser0", 7: "testuser1"} {
		v := vu.New(id, nil)
		require.NoError(t, s.InitVU(v))
		state := v.Data.(*UserState)
		assert.Equal(t, want, state.Username)
		assert.Equal(t, "password123", state.Password)
	}
}

func TestInitVU_BeforeSetup(t *testing.T) {
	s, err := New(DefaultConfig(), shopapi.NewClient(), nil)
	require.NoError(t, err)
	assert.Error(t, s.InitVU(vu.New(0, nil)))
}

func TestNew_Validation(t *testing.T) {
	client := shopapi.NewClient()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"send probability above one", func(c *Config) { c.SendCoinProbability = 1.5 }},
		{"negative buy probability", func(c *Config) { c.BuyItemProbability = -0.1 }},
		{"negative idle", func(c *Config) { c.MaxIdle = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, client, nil)
			assert.Error(t, err)
		})
	}

	_, err := New(DefaultConfig(), nil, nil)
	assert.Error(t, err, "client is required")
}

func TestSetup_Preflight(t *testing.T) {
	ts := httptest.NewServer(mockshop.New(mockshop.Options{}))
	live := ts.URL
	newScenario(t, live, func(c *Config) { c.Preflight = true })
	ts.Close()

	cfg := DefaultConfig()
	cfg.Preflight = true
	s, err := New(cfg, shopapi.NewClient(shopapi.WithBaseURL(live)), nil)
	require.NoError(t, err)
	err = s.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
