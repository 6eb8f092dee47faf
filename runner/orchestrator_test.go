package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelab/svc-acceptor/client"
	"github.com/servicelab/svc-acceptor/discovery"
	"github.com/servicelab/svc-acceptor/engine"
	"github.com/servicelab/svc-acceptor/types"
)

func mod(service string, ordinal int, name string, entry engine.ModuleFunc) discovery.Module {
	return discovery.Module{
		Meta:  types.ModuleDescriptor{Service: service, Ordinal: ordinal, Name: name},
		Entry: entry,
	}
}

func collectResults(o *Orchestrator) []*types.TestResult {
	var results []*types.TestResult
	o.Run(context.Background(), func(r *types.TestResult) {
		results = append(results, r)
	})
	return results
}

func orchestrate(t *testing.T, cfg OrchestratorConfig) []*types.TestResult {
	t.Helper()
	if cfg.Service.Name == "" {
		cfg.Service = types.ServiceDescriptor{Name: "orders", BaseURL: "http://localhost:1"}
	}
	if cfg.Context == nil {
		cfg.Context = engine.NewContext(cfg.Service, nil, nil)
	}
	return collectResults(NewOrchestrator(cfg))
}

func TestOrchestratorRunsInOrder(t *testing.T) {
	var order []string
	entry := func(name string) engine.ModuleFunc {
		return func(*engine.Context) error {
			order = append(order, name)
			return nil
		}
	}

	results := orchestrate(t, OrchestratorConfig{
		Modules: []discovery.Module{
			mod("orders", 1, "01_first", entry("01_first")),
			mod("orders", 2, "02_second", entry("02_second")),
			mod("orders", 3, "03_third", entry("03_third")),
		},
	})

	assert.Equal(t, []string{"01_first", "02_second", "03_third"}, order)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, types.TestStatusPass, r.Status)
	}
}

func TestOrchestratorClassification(t *testing.T) {
	results := orchestrate(t, OrchestratorConfig{
		Modules: []discovery.Module{
			mod("orders", 1, "01_pass", func(*engine.Context) error { return nil }),
			mod("orders", 2, "02_fail", func(*engine.Context) error {
				return types.NewAssertionError("status", 200, 500)
			}),
			mod("orders", 3, "03_skip", func(*engine.Context) error {
				return engine.Skip("not applicable")
			}),
			mod("orders", 4, "04_error", func(*engine.Context) error {
				return fmt.Errorf("database exploded")
			}),
		},
	})

	require.Len(t, results, 4)
	assert.Equal(t, types.TestStatusPass, results[0].Status)
	assert.Equal(t, types.TestStatusFail, results[1].Status)
	assert.Error(t, results[1].Error)
	assert.Equal(t, types.TestStatusSkip, results[2].Status)
	assert.Equal(t, "not applicable", results[2].Reason)
	assert.Equal(t, types.TestStatusError, results[3].Status)
}

func TestOrchestratorContinuesPastFailureByDefault(t *testing.T) {
	ran := false
	results := orchestrate(t, OrchestratorConfig{
		Modules: []discovery.Module{
			mod("orders", 1, "01_fail", func(*engine.Context) error {
				return types.NewAssertionError("status", 200, 500)
			}),
			mod("orders", 2, "02_after", func(*engine.Context) error {
				ran = true
				return nil
			}),
		},
	})

	assert.True(t, ran)
	require.Len(t, results, 2)
	assert.Equal(t, types.TestStatusPass, results[1].Status)
}

func TestOrchestratorFailFast(t *testing.T) {
	ran := false
	results := orchestrate(t, OrchestratorConfig{
		FailFast: true,
		Modules: []discovery.Module{
			mod("orders", 1, "01_fail", func(*engine.Context) error {
				return types.NewAssertionError("status", 200, 500)
			}),
			mod("orders", 2, "02_never", func(*engine.Context) error {
				ran = true
				return nil
			}),
			mod("orders", 3, "03_never", func(*engine.Context) error {
				ran = true
				return nil
			}),
		},
	})

	assert.False(t, ran)
	require.Len(t, results, 3)
	assert.Equal(t, types.TestStatusFail, results[0].Status)
	assert.Equal(t, types.TestStatusSkip, results[1].Status)
	assert.Equal(t, ReasonNotReached, results[1].Reason)
	assert.Equal(t, types.TestStatusSkip, results[2].Status)
	assert.Equal(t, ReasonNotReached, results[2].Reason)
}

func TestOrchestratorDryRun(t *testing.T) {
	ran := false
	results := orchestrate(t, OrchestratorConfig{
		DryRun: true,
		Modules: []discovery.Module{
			mod("orders", 1, "01_a", func(*engine.Context) error { ran = true; return nil }),
			mod("orders", 2, "02_b", func(*engine.Context) error { ran = true; return nil }),
		},
	})

	assert.False(t, ran)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, types.TestStatusSkip, r.Status)
		assert.Equal(t, ReasonDryRun, r.Reason)
	}
}

func TestOrchestratorRecoversPanic(t *testing.T) {
	results := orchestrate(t, OrchestratorConfig{
		Modules: []discovery.Module{
			mod("orders", 1, "01_panics", func(*engine.Context) error {
				panic("boom")
			}),
			mod("orders", 2, "02_after", func(*engine.Context) error { return nil }),
		},
	})

	require.Len(t, results, 2)
	assert.Equal(t, types.TestStatusError, results[0].Status)
	assert.Contains(t, results[0].Error.Error(), "panic")
	assert.Equal(t, types.TestStatusPass, results[1].Status)
}

func TestOrchestratorModuleTimeout(t *testing.T) {
	results := orchestrate(t, OrchestratorConfig{
		ModuleTimeout: 50 * time.Millisecond,
		Modules: []discovery.Module{
			mod("orders", 1, "01_hangs", func(c *engine.Context) error {
				<-c.Ctx().Done()
				time.Sleep(time.Hour)
				return nil
			}),
			mod("orders", 2, "02_after", func(*engine.Context) error { return nil }),
		},
	})

	require.Len(t, results, 2)
	assert.Equal(t, types.TestStatusError, results[0].Status)
	assert.Contains(t, results[0].Error.Error(), "wall-clock ceiling")
	assert.Equal(t, types.TestStatusPass, results[1].Status)
}

func TestOrchestratorRecordsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	svc := types.ServiceDescriptor{
		Name:    "orders",
		BaseURL: srv.URL,
		Timeout: time.Second,
		Retry:   types.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond},
	}
	c, err := client.New(client.Config{Service: svc})
	require.NoError(t, err)

	results := collectResults(NewOrchestrator(OrchestratorConfig{
		Service: svc,
		Context: engine.NewContext(svc, c, nil),
		Modules: []discovery.Module{
			mod("orders", 1, "01_retries", func(c *engine.Context) error {
				resp, err := c.GET("/orders")
				if err != nil {
					return err
				}
				return resp.ExpectStatus(http.StatusOK)
			}),
			mod("orders", 2, "02_quiet", func(*engine.Context) error { return nil }),
		},
	}))

	require.Len(t, results, 2)
	assert.Equal(t, types.TestStatusPass, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, 0, results[1].Attempts)
}

func TestOrchestratorTimedOutModuleCannotCorruptContext(t *testing.T) {
	release := make(chan struct{})
	var overrunner sync.WaitGroup
	overrunner.Add(1)

	results := orchestrate(t, OrchestratorConfig{
		ModuleTimeout: 20 * time.Millisecond,
		Modules: []discovery.Module{
			// Ignores its deadline and keeps writing context values while the
			// next module runs.
			mod("orders", 1, "01_overruns", func(c *engine.Context) error {
				defer overrunner.Done()
				for {
					select {
					case <-release:
						return nil
					default:
						c.Set("cursor", time.Now().UnixNano())
					}
				}
			}),
			mod("orders", 2, "02_after", func(c *engine.Context) error {
				for i := 0; i < 100; i++ {
					c.Set("cursor", i)
				}
				return nil
			}),
		},
	})

	close(release)
	overrunner.Wait()

	require.Len(t, results, 2)
	assert.Equal(t, types.TestStatusError, results[0].Status)
	assert.Contains(t, results[0].Error.Error(), "wall-clock ceiling")
	assert.Equal(t, types.TestStatusPass, results[1].Status)
}

func TestOrchestratorCancellation(t *testing.T) {
	var cancelled atomic.Bool
	results := orchestrate(t, OrchestratorConfig{
		Cancelled: &cancelled,
		Modules: []discovery.Module{
			mod("orders", 1, "01_cancels", func(*engine.Context) error {
				cancelled.Store(true)
				return nil
			}),
			mod("orders", 2, "02_skipped", func(*engine.Context) error { return nil }),
			mod("orders", 3, "03_skipped", func(*engine.Context) error { return nil }),
		},
	})

	require.Len(t, results, 3)
	// The module that set the flag still completes.
	assert.Equal(t, types.TestStatusPass, results[0].Status)
	assert.Equal(t, types.TestStatusSkip, results[1].Status)
	assert.Equal(t, ReasonCancelled, results[1].Reason)
	assert.Equal(t, types.TestStatusSkip, results[2].Status)
	assert.Equal(t, ReasonCancelled, results[2].Reason)
}

func healthOrchestratorConfig(t *testing.T, baseURL string, required bool, ran *bool) OrchestratorConfig {
	t.Helper()
	svc := types.ServiceDescriptor{
		Name:           "orders",
		BaseURL:        baseURL,
		Timeout:        time.Second,
		HealthEndpoint: "/healthz",
		Required:       required,
		Retry:          types.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond},
	}
	c, err := client.New(client.Config{Service: svc})
	require.NoError(t, err)
	return OrchestratorConfig{
		Service: svc,
		Context: engine.NewContext(svc, c, nil),
		Modules: []discovery.Module{
			mod("orders", 1, "01_a", func(*engine.Context) error { *ran = true; return nil }),
			mod("orders", 2, "02_b", func(*engine.Context) error { *ran = true; return nil }),
		},
	}
}

func TestOrchestratorHealthCheckPasses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK")) //nolint:errcheck
	}))
	defer srv.Close()

	ran := false
	results := collectResults(NewOrchestrator(healthOrchestratorConfig(t, srv.URL, true, &ran)))
	assert.True(t, ran)
	require.Len(t, results, 2)
	assert.Equal(t, types.TestStatusPass, results[0].Status)
}

func TestOrchestratorHealthCheckRequiredService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ran := false
	results := collectResults(NewOrchestrator(healthOrchestratorConfig(t, srv.URL, true, &ran)))
	assert.False(t, ran)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, types.TestStatusError, r.Status)
		assert.Contains(t, r.Error.Error(), "service unavailable")
	}
}

func TestOrchestratorHealthCheckOptionalService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ran := false
	results := collectResults(NewOrchestrator(healthOrchestratorConfig(t, srv.URL, false, &ran)))
	assert.False(t, ran)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, types.TestStatusSkip, r.Status)
		assert.Equal(t, ReasonUnavailable, r.Reason)
	}
}
