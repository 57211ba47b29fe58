package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/truth-detector/device"
	"github.com/maastricht-university/truth-detector/orchestrator"
)

func newFaceCmd(a *app) *cobra.Command {
	var image, preview string
	cmd := &cobra.Command{
		Use:   "face",
		Short: "Preview the camera and analyse a captured frame",
		Long: "Opens the camera and previews it. Press Enter to capture and analyse the\n" +
			"current frame, or type q and Enter to quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []orchestrator.Option
			if image != "" {
				opts = append(opts, orchestrator.WithVideo(func(context.Context) (device.VideoSource, error) {
					return device.OpenImageFile(image)
				}))
			}
			p, _, cleanup, err := a.pipeline(opts...)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Press ENTER to capture image and analyze, or q then ENTER to exit.")
			triggers := make(chan orchestrator.Trigger, 1)
			go readKeys(cmd.InOrStdin(), triggers)

			var lastWrite time.Time
			hooks := orchestrator.Hooks{
				Frame: func(b []byte) {
					if preview == "" || time.Since(lastWrite) < time.Second {
						return
					}
					lastWrite = time.Now()
					if err := os.WriteFile(preview, b, 0o644); err != nil {
						a.log.WithError(err).Warn("write preview")
					}
				},
				State: func(s orchestrator.State) {
					if s == orchestrator.Analyzing {
						fmt.Fprintln(out, "Analyzing...")
					}
				},
			}
			res := p.RunFace(ctx, triggers, hooks)
			fmt.Fprintln(out, res.Message())
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "use a still image instead of the camera")
	cmd.Flags().StringVar(&preview, "preview", "", "write the live preview to this JPEG about once a second")
	return cmd
}

// readKeys turns stdin lines into triggers: an empty line captures,
// q/quit/esc cancels. EOF cancels.
func readKeys(r io.Reader, triggers chan<- orchestrator.Trigger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "", "c", "capture":
			triggers <- orchestrator.Capture
			return
		case "q", "quit", "esc", "exit":
			triggers <- orchestrator.Cancel
			return
		}
	}
	close(triggers)
}

func newVoiceCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Record a short clip and analyse pitch and energy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []orchestrator.Option
			if input != "" {
				opts = append(opts, orchestrator.WithRecorder(device.WAVFileRecorder{Path: input}))
			}
			p, _, cleanup, err := a.pipeline(opts...)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			hooks := orchestrator.Hooks{State: func(s orchestrator.State) {
				switch s {
				case orchestrator.Recording:
					fmt.Fprintf(out, "Recording for %d seconds...\n", a.cfg.Audio.DurationSec)
				case orchestrator.Analyzing:
					fmt.Fprintln(out, "Analyzing...")
				}
			}}
			res := p.RunVoice(cmd.Context(), hooks)
			fmt.Fprintln(out, res.Message())
			return nil
		},
	}
	cmd.Flags().Int("duration", 5, "recording length in seconds")
	cmd.Flags().String("output", "voice_recording.wav", "where the recording is written")
	cmd.Flags().StringVar(&input, "input", "", "replay this wav file instead of recording")
	return cmd
}

func newAnalyzeImageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-image <file>",
		Short: "Analyse the facial emotion in an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			p, _, cleanup, err := a.pipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintln(cmd.OutOrStdout(), p.AnalyzeFrame(cmd.Context(), img).Message())
			return nil
		},
	}
}

func newAnalyzeWAVCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-wav <file>",
		Short: "Analyse pitch and energy of a wav file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, cleanup, err := a.pipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			res := p.AnalyzeWAV(cmd.Context(), args[0])
			out := cmd.OutOrStdout()
			if res.Features != nil {
				fmt.Fprintf(out, "Mean pitch: %.2f Hz, mean energy: %.4f\n", res.Features.MeanPitchHz, res.Features.MeanEnergy)
			}
			fmt.Fprintln(out, res.Message())
			return nil
		},
	}
}
