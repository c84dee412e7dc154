package cli

// This file contains the ports command, used to check that the jig's
// multiplexer and UART adapters are attached before a run.

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.bug.st/serial/enumerator"
)

func (a *App) ports(ctx *cli.Context) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	ports = filterPorts(ports, ctx.Bool("usb"))
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	for _, p := range ports {
		fmt.Println(formatPort(p))
	}
	return nil
}

func filterPorts(ports []*enumerator.PortDetails, usbOnly bool) []*enumerator.PortDetails {
	if !usbOnly {
		return ports
	}
	var out []*enumerator.PortDetails
	for _, p := range ports {
		if p.IsUSB {
			out = append(out, p)
		}
	}
	return out
}

func formatPort(p *enumerator.PortDetails) string {
	if !p.IsUSB {
		return p.Name
	}
	line := fmt.Sprintf("%s  %s:%s", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		line += fmt.Sprintf("  serial=%s", p.SerialNumber)
	}
	if p.Product != "" {
		line += "  " + dimStyle.Render(p.Product)
	}
	return line
}
