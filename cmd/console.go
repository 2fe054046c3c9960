package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"visca-camera/internal/ptz"
)

// shortcuts maps console words onto camera operations
var shortcuts = map[string]string{
	"on":        "PowerOn",
	"off":       "PowerOff",
	"power":     "PowerToggle",
	"home":      "PositionHome",
	"left":      "PanLeft",
	"right":     "PanRight",
	"up":        "TiltUp",
	"down":      "TiltDown",
	"upleft":    "UpLeft",
	"upright":   "UpRight",
	"downleft":  "DownLeft",
	"downright": "DownRight",
	"stop":      "PtzStop",
	"in":        "ZoomIn",
	"out":       "ZoomOut",
	"zstop":     "ZoomStop",
	"near":      "FocusNear",
	"far":       "FocusFar",
	"fstop":     "FocusStop",
	"af":        "TriggerAutoFocus",
	"mute":      "CameraMuteToggle",
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive the camera from an interactive prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cam, err := loadCamera()
		if err != nil {
			return err
		}
		if err := cam.Connect(context.Background()); err != nil {
			return err
		}
		defer func() {
			if err := cam.Disconnect(); err != nil {
				log.Warn().Err(err).Msg("camera disconnect")
			}
		}()

		fmt.Printf("%s (camera %d) connected\n", cam.Name(), cam.ID())
		fmt.Println("Type 'help' for commands")
		return runConsole(cam, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// runConsole reads commands from in until quit or EOF
func runConsole(ctrl ptz.Controller, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "help":
			printConsoleHelp(out)

		case "quit", "exit":
			return nil

		case "ops":
			for _, op := range ctrl.Operations() {
				fmt.Fprintln(out, op)
			}

		case "status":
			snapshot := ctrl.Feedbacks().Snapshot()
			names := make([]string, 0, len(snapshot))
			for name := range snapshot {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "%-20s %v\n", name, snapshot[name])
			}

		case "presets":
			for _, p := range ctrl.Presets() {
				fmt.Fprintf(out, "%3d  %-24s defined=%t\n", p.ID, p.Description, p.IsDefined)
			}

		case "recall", "store":
			if len(parts) < 2 {
				fmt.Fprintf(out, "Usage: %s <preset> [description]\n", parts[0])
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintf(out, "Invalid preset number: %s\n", parts[1])
				continue
			}
			done := "recalled"
			if parts[0] == "recall" {
				err = ctrl.PresetSelect(n)
			} else {
				err = ctrl.PresetStore(n, strings.Join(parts[2:], " "))
				done = "stored"
			}
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Preset %d %s\n", n, done)

		default:
			op := parts[0]
			if name, ok := shortcuts[op]; ok {
				op = name
			}
			if err := ctrl.Invoke(op); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "%s sent\n", op)
		}
	}
}

func printConsoleHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  status                  - show feedback values")
	fmt.Fprintln(out, "  ops                     - list operation names")
	fmt.Fprintln(out, "  presets                 - list presets")
	fmt.Fprintln(out, "  recall <n>              - recall preset n")
	fmt.Fprintln(out, "  store <n> [description] - store preset n")
	fmt.Fprintln(out, "  <operation>             - run any operation, e.g. PowerOn")

	words := make([]string, 0, len(shortcuts))
	for w := range shortcuts {
		words = append(words, w)
	}
	sort.Strings(words)
	for _, w := range words {
		fmt.Fprintf(out, "  %-23s - %s\n", w, shortcuts[w])
	}
	fmt.Fprintln(out, "  quit                    - exit")
}
