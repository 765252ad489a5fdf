package telemetry_test

import (
	"context"
	"fmt"

	"github.com/pushdeploy/pushdeploy/pkg/telemetry"
)

// Example_defaultSetup demonstrates the CLI's telemetry setup.
func Example_defaultSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ApplyEnv(func(key string) string {
		if key == "LOG_LEVEL" {
			return "debug"
		}
		return ""
	})

	tel, err := telemetry.New(context.Background(), cfg, nil)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	fmt.Println(cfg.Logging.Level, cfg.Tracing.Exporter, tel.Metrics.Enabled())
	// Output: debug none true
}
