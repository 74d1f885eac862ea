package analytics

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Collector records step and message outcomes for offline analysis. It is
// separate from operational logging.
type Collector interface {
	RecordStep(tenantID string, runID, stepID, nodeID int64, status, detail string)
	RecordMessage(tenantID string, runID, messageID int64, channel, status, detail string)
	Close() error
}

type NoopCollector struct{}

func (NoopCollector) RecordStep(string, int64, int64, int64, string, string)     {}
func (NoopCollector) RecordMessage(string, int64, int64, string, string, string) {}
func (NoopCollector) Close() error                                             { return nil }

// LogFileCollector appends one JSON line per outcome to a file.
type LogFileCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileCollector(fileName string) (*LogFileCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &LogFileCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileCollector) RecordStep(tenantID string, runID, stepID, nodeID int64, status, detail string) {
	lc.logger.Info("step",
		zap.String("tenant", tenantID),
		zap.Int64("runId", runID),
		zap.Int64("stepId", stepID),
		zap.Int64("nodeId", nodeID),
		zap.String("status", status),
		zap.String("detail", detail))
}

func (lc *LogFileCollector) RecordMessage(tenantID string, runID, messageID int64, channel, status, detail string) {
	lc.logger.Info("message",
		zap.String("tenant", tenantID),
		zap.Int64("runId", runID),
		zap.Int64("messageId", messageID),
		zap.String("channel", channel),
		zap.String("status", status),
		zap.String("detail", detail))
}

func (lc *LogFileCollector) Close() error {
	return lc.logger.Sync()
}

// New returns a file collector when fileName is set, otherwise a no-op.
func New(fileName string) (Collector, error) {
	if fileName == "" {
		return NoopCollector{}, nil
	}
	return NewLogFileCollector(fileName)
}
