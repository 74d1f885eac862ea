package leadflow

import (
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/RealZimboGuy/leadflow/internal/config"
)

// setupMetrics installs the configured meter provider as the global one and
// returns it, or nil when metrics export is disabled.
func setupMetrics() (*sdkmetric.MeterProvider, error) {
	switch config.GetSystemSettingString(config.METRICS_EXPORTER) {
	case config.METRICS_EXPORTER_STDOUT:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		interval := config.GetSystemSettingDuration(config.METRICS_INTERVAL)
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		))
		otel.SetMeterProvider(provider)
		slog.Info("Exporting metrics", "exporter", config.METRICS_EXPORTER_STDOUT, "interval", interval.String())
		return provider, nil
	default:
		return nil, nil
	}
}
