package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vshark/internal/capture"
	"vshark/internal/config"
	"vshark/internal/engine"
	"vshark/internal/export"
	"vshark/internal/parser"
	"vshark/internal/stream"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

// newEngine builds the capture source, framer and engine described by cfg.
// The returned label names the source for display.
func newEngine(cfg *config.Config, logger logrus.FieldLogger) (*engine.Engine, string, error) {
	dec, err := parser.NewDecoder(cfg.Capture.Format, cfg.Framer.VerifyChecksum)
	if err != nil {
		return nil, "", err
	}
	framer := stream.NewFramer(dec,
		stream.WithCeiling(cfg.Framer.BufferCeiling),
		stream.WithLogger(logger.WithField("component", "framer")),
	)

	var (
		src   capture.Source
		label string
	)
	if cfg.Capture.File != "" {
		src = capture.NewFile(cfg.Capture.File)
		label = cfg.Capture.File
	} else {
		src = capture.NewProcess(cfg.Capture, logger.WithField("component", "capture"))
		label = fmt.Sprintf("%s on %s", cfg.Capture.Command, cfg.Capture.Interface)
	}

	logger.WithFields(logrus.Fields{
		"source": label,
		"format": cfg.Capture.Format,
	}).Info("capture feed configured")
	return engine.New(src, framer, engineOptions(cfg), logger.WithField("component", "engine")), label, nil
}

func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		QueueSize:       cfg.Engine.QueueSize,
		ReadSize:        cfg.Framer.ReadSize,
		RefreshInterval: cfg.UI.RefreshInterval,
		PollTimeout:     cfg.UI.PollTimeout,
		State: engine.StateOptions{
			HistoryCapacity:  cfg.History.Capacity,
			ActivityInterval: cfg.Activity.Interval,
			ActivityWindow:   cfg.Activity.Window,
		},
	}
}

// attachExport registers the NATS tap when enabled. A connection failure
// only disables the tap. The returned func closes it.
func attachExport(eng *engine.Engine, cfg *config.Config, logger logrus.FieldLogger) func() {
	if !cfg.Export.NATS.Enabled {
		return func() {}
	}
	pub, err := export.NewPublisher(cfg.Export.NATS, logger.WithField("component", "export"))
	if err != nil {
		logger.WithError(err).Warn("record export disabled")
		return func() {}
	}
	eng.AddSink(pub)
	return pub.Close
}
