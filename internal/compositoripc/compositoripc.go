// Package compositoripc enumerates the App IDs of currently open
// windows by shelling out to the running Wayland compositor's own
// introspection command.
package compositoripc

import (
	"encoding/json"
	"fmt"
	"os/exec"
)

// WindowSource lists the App IDs of open windows for one compositor.
type WindowSource interface {
	Name() string
	ListAppIDs() ([]string, error)
}

// Detect probes for a running niri, Hyprland, or Sway instance: look
// up the binary, then confirm it answers a cheap query.
func Detect() (WindowSource, error) {
	if _, err := exec.LookPath("niri"); err == nil {
		if exec.Command("niri", "msg", "version").Run() == nil {
			return niriSource{}, nil
		}
	}
	if _, err := exec.LookPath("hyprctl"); err == nil {
		if exec.Command("hyprctl", "version").Run() == nil {
			return hyprlandSource{}, nil
		}
	}
	if _, err := exec.LookPath("swaymsg"); err == nil {
		if exec.Command("swaymsg", "-t", "get_version").Run() == nil {
			return swaySource{}, nil
		}
	}
	return nil, fmt.Errorf("no supported compositor IPC detected (tried niri, hyprland, sway)")
}

type niriSource struct{}

func (niriSource) Name() string { return "niri" }

type niriWindow struct {
	AppID *string `json:"app_id"`
}

func (niriSource) ListAppIDs() ([]string, error) {
	out, err := exec.Command("niri", "msg", "--json", "windows").Output()
	if err != nil {
		return nil, fmt.Errorf("running 'niri msg --json windows': %w", err)
	}
	var windows []niriWindow
	if err := json.Unmarshal(out, &windows); err != nil {
		return nil, fmt.Errorf("parsing niri windows JSON: %w", err)
	}
	ids := make([]string, 0, len(windows))
	for _, w := range windows {
		if w.AppID != nil && *w.AppID != "" {
			ids = append(ids, *w.AppID)
		}
	}
	return ids, nil
}

type hyprlandSource struct{}

func (hyprlandSource) Name() string { return "hyprland" }

type hyprlandClient struct {
	Class string `json:"class"`
}

func (hyprlandSource) ListAppIDs() ([]string, error) {
	out, err := exec.Command("hyprctl", "clients", "-j").Output()
	if err != nil {
		return nil, fmt.Errorf("running 'hyprctl clients -j': %w", err)
	}
	var clients []hyprlandClient
	if err := json.Unmarshal(out, &clients); err != nil {
		return nil, fmt.Errorf("parsing hyprctl clients JSON: %w", err)
	}
	ids := make([]string, 0, len(clients))
	for _, c := range clients {
		if c.Class != "" {
			ids = append(ids, c.Class)
		}
	}
	return ids, nil
}

type swaySource struct{}

func (swaySource) Name() string { return "sway" }

type swayNode struct {
	AppID      *string    `json:"app_id"`
	WindowProp *swayProps `json:"window_properties"`
	Nodes      []swayNode `json:"nodes"`
	Floating   []swayNode `json:"floating_nodes"`
}

type swayProps struct {
	Class string `json:"class"`
}

func (swaySource) ListAppIDs() ([]string, error) {
	out, err := exec.Command("swaymsg", "-t", "get_tree").Output()
	if err != nil {
		return nil, fmt.Errorf("running 'swaymsg -t get_tree': %w", err)
	}
	var root swayNode
	if err := json.Unmarshal(out, &root); err != nil {
		return nil, fmt.Errorf("parsing sway tree JSON: %w", err)
	}
	var ids []string
	collectSwayAppIDs(&root, &ids)
	return ids, nil
}

func collectSwayAppIDs(n *swayNode, out *[]string) {
	switch {
	case n.AppID != nil && *n.AppID != "":
		*out = append(*out, *n.AppID)
	case n.WindowProp != nil && n.WindowProp.Class != "":
		*out = append(*out, n.WindowProp.Class)
	}
	for i := range n.Nodes {
		collectSwayAppIDs(&n.Nodes[i], out)
	}
	for i := range n.Floating {
		collectSwayAppIDs(&n.Floating[i], out)
	}
}
