// main.go - CLI client for the stasis idle daemon control socket
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
)

func main() {
	if os.Getenv("WAYLAND_DISPLAY") == "" {
		fmt.Fprintln(os.Stderr, "stasisctl: WAYLAND_DISPLAY is not set; stasis requires a running Wayland session")
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "stasisctl",
		Short: "Control a running stasis idle daemon",
	}

	rootCmd.AddCommand(
		simpleCommand("reload", "Reload the daemon's configuration file"),
		simpleCommand("pause", "Pause the idle ladder"),
		simpleCommand("resume", "Resume the idle ladder"),
		simpleCommand("trigger-idle", "trigger_idle", "Force every pending action to fire immediately"),
		simpleCommand("trigger-pre-suspend", "trigger_presuspend", "Run the pre-suspend command now"),
		simpleCommand("stop", "Stop the daemon"),
		toggleInhibitCmd(),
		infoCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// simpleCommand builds a cobra.Command that sends a single fixed
// token to the daemon and prints its reply. wireCmd defaults to use
// when only (use, short) is given.
func simpleCommand(args ...string) *cobra.Command {
	var use, wireCmd, short string
	switch len(args) {
	case 2:
		use, wireCmd, short = args[0], args[0], args[1]
	case 3:
		use, wireCmd, short = args[0], args[1], args[2]
	default:
		panic("simpleCommand: wrong argument count")
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reply, err := sendCommand(wireCmd)
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

func toggleInhibitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle-inhibit",
		Short: "Toggle the manual inhibit (pause) flag",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wire := "toggle_inhibit"
			if jsonOutput {
				wire += " --json"
			}
			reply, err := sendCommand(wire)
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the reply as JSON")
	return cmd
}

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the daemon's current idle state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wire := "info"
			if jsonOutput {
				wire += " --json"
			}
			reply, err := sendCommandMultiline(wire)
			if err != nil {
				return err
			}
			fmt.Print(reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the reply as JSON")
	return cmd
}

func controlSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return dir + "/stasis.sock"
}

func sendCommand(cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", controlSocketPath(), 2*time.Second)
	if err != nil {
		return "", fmt.Errorf("connecting to stasis daemon: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", err
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, _ := bufio.NewReader(conn).ReadString('\n')
	return trimNewline(reply), nil
}

// sendCommandMultiline reads every line the daemon sends until EOF,
// for the plain-text info reply which spans several lines.
func sendCommandMultiline(cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", controlSocketPath(), 2*time.Second)
	if err != nil {
		return "", fmt.Errorf("connecting to stasis daemon: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", err
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var out []byte
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		out = append(out, scanner.Bytes()...)
		out = append(out, '\n')
	}
	return string(out), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
