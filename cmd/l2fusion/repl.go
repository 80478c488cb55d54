package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oraqon/dp-aero-L2/manager"
)

// runREPL reads operator commands from stdin until quit or EOF. Output
// goes to stdout directly; it is an interactive surface, not a log.
func runREPL(mgr *manager.Manager, quit chan<- struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("l2fusion ready; commands: stats, nodes, reset, trigger <event>, quit")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			close(quit)
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "stats":
			printStats(mgr.Stats())

		case "nodes":
			printNodes(mgr)

		case "reset":
			mgr.TriggerEvent("reset", nil)
			fmt.Println("algorithm reset")

		case "trigger":
			if len(fields) < 2 {
				fmt.Println("usage: trigger <event> [data]")
				continue
			}
			var data any
			if len(fields) > 2 {
				data = fields[2]
			}
			mgr.TriggerEvent(fields[1], data)
			fmt.Printf("delivered trigger %q\n", fields[1])

		case "quit", "exit":
			close(quit)
			return

		case "help":
			fmt.Println("commands: stats, nodes, reset, trigger <event> [data], quit")

		default:
			fmt.Printf("unknown command %q; try help\n", fields[0])
		}
	}
}

func printStats(s manager.Stats) {
	fmt.Println("=== System Statistics ===")
	fmt.Printf("Uptime:             %s\n", s.Uptime.Round(time.Second))
	fmt.Printf("Messages Processed: %d\n", s.MessagesProcessed)
	fmt.Printf("Messages Sent:      %d\n", s.MessagesSent)
	fmt.Printf("Messages Dropped:   %d\n", s.MessagesDropped)
	fmt.Printf("Active Nodes:       %d\n", s.ActiveNodes)
	fmt.Printf("Algorithm State:    %s\n", s.CurrentAlgorithmState)
	if s.Uptime > 0 && s.MessagesProcessed > 0 {
		rate := float64(s.MessagesProcessed) / s.Uptime.Seconds()
		fmt.Printf("Processing Rate:    %.2f msg/sec\n", rate)
	}
}

func printNodes(mgr *manager.Manager) {
	nodes := mgr.NodeRegistry().All()
	if len(nodes) == 0 {
		fmt.Println("no registered nodes")
		return
	}
	fmt.Println("Registered L1 nodes:")
	for _, n := range nodes {
		status, _ := mgr.NodeRegistry().StatusOf(n.NodeID)
		fmt.Printf("  - %s (%s) %s %s\n", n.NodeID, n.NodeType, status, n.Location)
	}
}
