// Package cli wires configuration, logging and the pipeline into cobra commands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maastricht-university/truth-detector/classifier"
	"github.com/maastricht-university/truth-detector/config"
	"github.com/maastricht-university/truth-detector/history"
	"github.com/maastricht-university/truth-detector/orchestrator"
)

type app struct {
	cfgPath string
	cfg     *config.Root
	log     *logrus.Logger
}

// flag name -> config key, bound when the executing command defines the flag
var flagKeys = map[string]string{
	"log-level": "app.log_level",
	"backend":   "classifier.backend",
	"duration":  "audio.duration_sec",
	"output":    "audio.output_path",
	"addr":      "server.addr",
	"outputs":   "paths.outputs",
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "truth-detector",
		Short: "Face and voice emotion demo with an illustrative truth score",
		Long: "truth-detector captures a webcam frame or a short voice clip, asks an emotion\n" +
			"classifier for a label and maps it to a fixed \"truth likelihood\".\n" +
			"The score is for demonstration only.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default config/$CONFIG_ENV/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("backend", "", "face classifier backend (http, onnx)")
	root.PersistentFlags().String("outputs", "", "directory for per-session result bundles")

	root.AddCommand(
		newFaceCmd(a),
		newVoiceCmd(a),
		newAnalyzeImageCmd(a),
		newAnalyzeWAVCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) load(cmd *cobra.Command) error {
	v := viper.New()
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	c, err := config.LoadWith(v, a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = c
	a.log = newLogger(c, cmd.ErrOrStderr())
	a.log.WithFields(logrus.Fields{"app": c.App.Name, "version": c.App.Version}).Debug("config loaded")
	return nil
}

func newLogger(c *config.Root, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	if c.App.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(c.App.LogLvl)
	if err != nil {
		l.WithField("level", c.App.LogLvl).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// pipeline builds the classifier, optional history store and pipeline.
// The returned cleanup releases them.
func (a *app) pipeline(opts ...orchestrator.Option) (*orchestrator.Pipeline, *history.Store, func(), error) {
	face, err := classifier.New(a.cfg, a.log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("classifier: %w", err)
	}
	var store *history.Store
	if a.cfg.History.Enabled {
		store, err = history.Open(a.cfg.History.Path)
		if err != nil {
			face.Close()
			return nil, nil, nil, fmt.Errorf("history: %w", err)
		}
		opts = append(opts, orchestrator.WithHistory(store))
	}
	opts = append([]orchestrator.Option{orchestrator.WithLogger(a.log)}, opts...)
	p := orchestrator.NewPipeline(a.cfg, face, opts...)

	cleanup := func() {
		if err := face.Close(); err != nil {
			a.log.WithError(err).Warn("close classifier")
		}
		if store != nil {
			if err := store.Close(); err != nil {
				a.log.WithError(err).Warn("close history")
			}
		}
	}
	return p, store, cleanup, nil
}
