package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adtechlab/newswire/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 0},
		NewsAPI: config.NewsAPIConfig{BaseURL: "https://provider.example/api", RequestTimeout: time.Second},
		Pipeline: config.PipelineConfig{
			Categories:   []string{"news/Tech"},
			Lang:         "eng",
			MaxItems:     10,
			Lookback:     time.Hour,
			TriggerQueue: 4,
		},
		Schedule: config.ScheduleConfig{
			FetchCron:    "0 */6 * * *",
			ProcessCron:  "15 */6 * * *",
			SensorEvery:  time.Hour,
			SensorWindow: time.Hour,
		},
		Database: config.DatabaseConfig{Provider: "memory"},
		Archive:  config.ArchiveConfig{Provider: "memory"},
		PubSub:   config.PubSubConfig{Provider: "noop"},
		Alerting: config.AlertingConfig{Provider: "noop"},
	}
}

func TestBuildWithMemoryProviders(t *testing.T) {
	cfg := testConfig()
	app, err := Build(context.Background(), &cfg)
	require.NoError(t, err)
	require.NotNil(t, app.apiServer)
	require.NotNil(t, app.worker)
	require.NotNil(t, app.sched)
	require.NoError(t, app.Close(context.Background()))
}

func TestBuildRejectsUnknownProviders(t *testing.T) {
	for _, mutate := range []func(*config.Config){
		func(c *config.Config) { c.Database.Provider = "bogus" },
		func(c *config.Config) { c.Archive.Provider = "bogus" },
		func(c *config.Config) { c.PubSub.Provider = "bogus" },
		func(c *config.Config) { c.Alerting.Provider = "bogus" },
	} {
		cfg := testConfig()
		mutate(&cfg)
		_, err := Build(context.Background(), &cfg)
		require.Error(t, err)
	}
}
