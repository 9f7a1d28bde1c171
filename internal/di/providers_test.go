package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeCore/internal/domain/models"
	"TradeCore/internal/service/ratelimit"
	pkgcache "TradeCore/pkg/cache"
	"TradeCore/pkg/config"
	"TradeCore/pkg/logger"
)

func ptr(v float64) *float64 { return &v }

func testConfig() *config.Config {
	c := &config.Config{
		Agents: []config.AgentConfig{
			{Name: "technical", URL: "http://t"},
			{Name: "fundamental", URL: "http://f", Weight: ptr(0.8)},
		},
	}
	c.Policy.Parameters = map[string]config.ParameterSpec{
		"RISK_PER_TRADE":     {Max: ptr(0.04)},
		"decision_threshold": {Default: ptr(0.3)},
	}
	return c
}

func TestProvidePolicyBounds(t *testing.T) {
	b, err := ProvidePolicyBounds(testConfig())
	require.NoError(t, err)

	p, ok := b.Lookup(models.ParamRiskPerTrade)
	require.True(t, ok)
	assert.Equal(t, 0.04, p.Max)
	assert.Equal(t, 0.01, p.Default)

	p, _ = b.Lookup(models.ParamDecisionThreshold)
	assert.Equal(t, 0.3, p.Default)

	assert.Equal(t, 0.8, b.Defaults()[models.AgentWeightParam("fundamental")])
	assert.Equal(t, 0.5, b.Defaults()[models.AgentWeightParam("technical")])
}

func TestProvidePolicyBoundsRejects(t *testing.T) {
	c := testConfig()
	c.Policy.Parameters["NOT_A_PARAM"] = config.ParameterSpec{Default: ptr(1)}
	_, err := ProvidePolicyBounds(c)
	assert.Error(t, err)

	c = testConfig()
	c.Policy.Parameters["RISK_PER_TRADE"] = config.ParameterSpec{Default: ptr(0.5)}
	_, err = ProvidePolicyBounds(c)
	assert.Error(t, err, "default outside the built-in range")
}

func TestOptionalInfrastructureIsNil(t *testing.T) {
	c := testConfig()

	cache, err := ProvideSharedCache(c)
	require.NoError(t, err)
	assert.Nil(t, cache)

	ch, err := ProvideClickHouseClient(c)
	require.NoError(t, err)
	assert.Nil(t, ch)

	prod, err := ProvideKafkaProducer(c)
	require.NoError(t, err)
	assert.Nil(t, prod)

	assert.Nil(t, ProvideWriteLock(nil, c, logger.Nop()))
	assert.Nil(t, ProvideLearningClient(c))
	assert.Nil(t, ProvideScanner(c))
	assert.Nil(t, ProvideQuoteCollector(c, nil, nil, logger.Nop()))

	rec, err := ProvideDecisionRecorder(c, nil, nil, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Len())
}

func TestProvideFeedbackSink(t *testing.T) {
	c := testConfig()
	assert.Nil(t, ProvideFeedbackSink(c, nil, nil), "learning disabled")
}

func TestProvideRateLimiter(t *testing.T) {
	c := testConfig()
	c.Server.RateLimit.Capacity = 2
	c.Server.RateLimit.RefillPerSec = 1

	_, local := ProvideRateLimiter(c, nil, logger.Nop()).(*ratelimit.Limiter)
	assert.True(t, local)

	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	_, shared := ProvideRateLimiter(c, mc, logger.Nop()).(*ratelimit.SharedLimiter)
	assert.True(t, shared)
}
