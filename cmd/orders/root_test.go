package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookvault/pkg/config"
	"bookvault/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		ServiceName:          "orders",
		StorageDriver:        config.StorageMemory,
		CatalogStore:         config.CatalogNoop,
		EventsBroker:         config.BrokerNone,
		DeliveryEstimateDays: 5,
		HTTPTimeout:          5 * time.Second,
		GRPCTimeout:          5 * time.Second,
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate"}, names)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("http-port"))
	assert.NotNil(t, serve.Flags().Lookup("grpc-port"))
}

func TestBuild_MemoryStack(t *testing.T) {
	cfg := memoryConfig()
	log := logger.NewNop()

	a, err := build(context.Background(), cfg, log)
	require.NoError(t, err)
	defer a.close(log)

	assert.NotNil(t, a.useCase)
	assert.Nil(t, a.rabbit)

	router := newRouter(cfg, log, a)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	_, err = newGRPCServer(cfg, log, a.useCase)
	assert.NoError(t, err)
}

func TestBuild_RejectsUnknownDrivers(t *testing.T) {
	log := logger.NewNop()

	cfg := memoryConfig()
	cfg.StorageDriver = "sqlite"
	_, err := build(context.Background(), cfg, log)
	assert.ErrorContains(t, err, "unknown storage driver")

	cfg = memoryConfig()
	cfg.EventsBroker = "nats"
	_, err = build(context.Background(), cfg, log)
	assert.ErrorContains(t, err, "unknown events broker")

	cfg = memoryConfig()
	cfg.PricingPolicyFile = "testdata/missing.yaml"
	_, err = build(context.Background(), cfg, log)
	assert.Error(t, err)
}
