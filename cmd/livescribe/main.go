package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/leonardotrapani/livescribe/internal/bus"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/daemon"
	"github.com/leonardotrapani/livescribe/internal/deps"
	"github.com/leonardotrapani/livescribe/internal/manager"
	"github.com/leonardotrapani/livescribe/internal/tui"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var noColor bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "livescribe",
	Short: "Live speech recognition sessions from your microphone",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(
		serveCmd(),
		commandCmd("start", "Start a recognition session", bus.CmdStart),
		commandCmd("stop", "Stop the current session and wait for the final result", bus.CmdStop),
		commandCmd("toggle", "Start or stop recognition", bus.CmdToggle),
		commandCmd("restart", "Cancel the current session and start a new one", bus.CmdRestart),
		commandCmd("status", "Get current session status", bus.CmdStatus),
		commandCmd("version", "Get protocol version", bus.CmdVersion),
		commandCmd("quit", "Stop the daemon", bus.CmdQuit),
		watchCmd(),
		configureCmd(),
		doctorCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New()
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}
}

// commandCmd sends a single control byte and prints the daemon's reply.
func commandCmd(use, short string, cmdByte byte) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(cmdByte)
			if err != nil {
				return fmt.Errorf("failed to %s: %w", use, err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show live session status and transcript",
		Long: `Show the daemon's session state as it changes.

The interactive view toggles recognition with space. With --plain every state
change is printed as one JSON line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if plain {
				return bus.Watch(ctx, func(line string) { fmt.Println(line) })
			}
			return runWatch(ctx)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print raw JSON state lines")
	return cmd
}

func runWatch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	states := make(chan manager.State, 16)
	watchErr := make(chan error, 1)
	go func() {
		defer close(states)
		watchErr <- bus.Watch(ctx, func(line string) {
			var st manager.State
			if err := json.Unmarshal([]byte(line), &st); err != nil {
				return
			}
			select {
			case states <- st:
			case <-ctx.Done():
			}
		})
	}()

	toggle := func() error {
		_, err := bus.SendCommand(bus.CmdToggle)
		return err
	}

	if err := tui.Watch(ctx, states, toggle); err != nil {
		return err
	}
	cancel()
	if err := <-watchErr; err != nil {
		return fmt.Errorf("failed to watch daemon: %w", err)
	}
	return nil
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration editor for livescribe.
This will guide you through setting up:
- The recognition backend, endpoint and locale
- Provider API keys
- Audio capture and buffering
- Notifications and metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Configure(cfg)
	if err != nil {
		return fmt.Errorf("configuration editor error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	configPath, _ := config.GetConfigPath()
	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Printf("Config file location: %s\n", configPath)
	fmt.Println("A running daemon applies locale and buffer changes to the next session; restart it for backend changes.")
	return nil
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that external programs are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := deps.CheckAll()
			for _, s := range statuses {
				mark := tui.StyleSuccess.Render("ok")
				detail := s.Path
				if s.Version != "" {
					detail += " (" + s.Version + ")"
				}
				if !s.Installed {
					mark = tui.StyleWarning.Render("missing")
					if s.Required {
						mark = tui.StyleError.Render("missing")
					}
					detail = "needed for " + s.Purpose
				}
				fmt.Printf("%-12s %s  %s\n", s.Name, mark, detail)
			}
			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("required programs not installed: %v", missing)
			}
			return nil
		},
	}
}
