// Package interactive provides the interactive command-line interface
// for the clawlink probe.
package interactive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/castle-chat/clawlink/pkg/discovery"
	"github.com/castle-chat/clawlink/pkg/gateway"
	"github.com/castle-chat/clawlink/pkg/identity"
)

// Probe drives a gateway client from an interactive prompt.
type Probe struct {
	client   *gateway.Client
	identity *identity.Manager
	rl       *readline.Instance

	// showEvents controls whether server-pushed events are printed.
	showEvents atomic.Bool
}

// New creates a new interactive probe around an existing client.
func New(client *gateway.Client, ident *identity.Manager) (*Probe, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "probe> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	p := &Probe{
		client:   client,
		identity: ident,
		rl:       rl,
	}
	p.showEvents.Store(true)
	return p, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (p *Probe) Stdout() io.Writer {
	return p.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (p *Probe) Stderr() io.Writer {
	return p.rl.Stderr()
}

// Run starts the interactive command loop. It returns when the user quits
// or ctx is cancelled.
func (p *Probe) Run(ctx context.Context, cancel context.CancelFunc) {
	defer p.rl.Close()

	signals, unsubscribe := p.client.Subscribe(32)
	defer unsubscribe()
	go p.watchSignals(ctx, signals)

	p.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := p.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(p.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			p.printHelp()

		case "connect", "c":
			p.cmdConnect()

		case "disconnect", "d":
			p.cmdDisconnect()

		case "state", "s":
			p.cmdState()

		case "call":
			p.cmdCall(ctx, input, args)

		case "events":
			p.cmdEvents(args)

		case "identity", "id":
			p.cmdIdentity()

		case "token":
			p.cmdToken(args)

		case "discover":
			p.cmdDiscover(ctx, args)

		case "quit", "exit", "q":
			fmt.Fprintln(p.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(p.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (p *Probe) printHelp() {
	fmt.Fprintln(p.rl.Stdout(), `
Clawlink Probe Commands:
  Connection:
    connect            - Start connecting to the gateway
    disconnect         - Close the connection and stop reconnecting
    state              - Show connection state and server info

  RPC:
    call <method> [json] - Send a request and print the response payload

  Events:
    events on|off      - Toggle printing of gateway-pushed events

  Identity:
    identity           - Show device identity details
    token              - Show device token pairing status
    token clear        - Forget the device token (forces re-pairing)

  Discovery:
    discover [seconds] - Browse for gateways via mDNS

  General:
    help               - Show this help
    quit               - Exit probe`)
}

// watchSignals prints engine signals as they arrive.
func (p *Probe) watchSignals(ctx context.Context, signals <-chan gateway.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			p.printSignal(sig)
		}
	}
}

func (p *Probe) printSignal(sig gateway.Signal) {
	out := p.rl.Stdout()
	switch sig.Kind {
	case gateway.SignalStateChange:
		if sig.Reason != "" {
			fmt.Fprintf(out, "[%s] state: %s (%s)\n", sig.Kind, sig.State, sig.Reason)
		} else {
			fmt.Fprintf(out, "[%s] state: %s\n", sig.Kind, sig.State)
		}

	case gateway.SignalConnected:
		if sig.Server != nil {
			fmt.Fprintf(out, "[%s] protocol %d, server %s %s\n",
				sig.Kind, sig.Server.Protocol, sig.Server.Server.Name, sig.Server.Server.Version)
		} else {
			fmt.Fprintf(out, "[%s]\n", sig.Kind)
		}

	case gateway.SignalPairingRequired:
		fmt.Fprintf(out, "[%s] approve this device on the gateway", sig.Kind)
		if sig.Pairing != nil && sig.Pairing.Message != "" {
			fmt.Fprintf(out, ": %s", sig.Pairing.Message)
		}
		fmt.Fprintln(out)

	case gateway.SignalPairingApproved:
		fmt.Fprintf(out, "[%s] device token saved\n", sig.Kind)

	case gateway.SignalAuthError:
		fmt.Fprintf(out, "[%s] %v\n", sig.Kind, sig.Err)

	case gateway.SignalGatewayEvent:
		if !p.showEvents.Load() || sig.Event == nil {
			return
		}
		if len(sig.Event.Payload) > 0 {
			fmt.Fprintf(out, "[event] %s seq=%d %s\n", sig.Event.Event, sig.Event.Seq, sig.Event.Payload)
		} else {
			fmt.Fprintf(out, "[event] %s seq=%d\n", sig.Event.Event, sig.Event.Seq)
		}
	}
}

func (p *Probe) cmdConnect() {
	p.client.Start()
	fmt.Fprintln(p.rl.Stdout(), "Connecting...")
}

func (p *Probe) cmdDisconnect() {
	p.client.Stop()
	fmt.Fprintln(p.rl.Stdout(), "Disconnected.")
}

func (p *Probe) cmdState() {
	out := p.rl.Stdout()
	fmt.Fprintf(out, "State: %s\n", p.client.State())
	if info := p.client.ServerInfo(); info != nil {
		fmt.Fprintf(out, "Protocol: %d\n", info.Protocol)
		fmt.Fprintf(out, "Server: %s %s\n", info.Server.Name, info.Server.Version)
		if len(info.Features) > 0 {
			names := make([]string, 0, len(info.Features))
			for name, enabled := range info.Features {
				if enabled {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			fmt.Fprintf(out, "Features: %s\n", strings.Join(names, ", "))
		}
	}
}

// cmdCall sends a single request. The params argument, when present, is the
// remainder of the input line after the method name so JSON with spaces
// works unquoted.
func (p *Probe) cmdCall(ctx context.Context, input string, args []string) {
	out := p.rl.Stdout()
	if len(args) == 0 {
		fmt.Fprintln(out, "Usage: call <method> [json-params]")
		return
	}
	method := args[0]

	var params any
	if len(args) > 1 {
		idx := strings.Index(input, method)
		raw := strings.TrimSpace(input[idx+len(method):])
		var decoded json.RawMessage
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			fmt.Fprintf(out, "Invalid params JSON: %v\n", err)
			return
		}
		params = decoded
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	payload, err := p.client.Request(callCtx, method, params)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(out, "OK (%s)\n", time.Since(start).Round(time.Millisecond))
	if len(payload) == 0 {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		fmt.Fprintf(out, "%s\n", payload)
		return
	}
	fmt.Fprintln(out, pretty.String())
}

func (p *Probe) cmdEvents(args []string) {
	out := p.rl.Stdout()
	if len(args) != 1 {
		fmt.Fprintf(out, "Events: %s (usage: events on|off)\n", onOff(p.showEvents.Load()))
		return
	}
	switch strings.ToLower(args[0]) {
	case "on":
		p.showEvents.Store(true)
		fmt.Fprintln(out, "Events: on")
	case "off":
		p.showEvents.Store(false)
		fmt.Fprintln(out, "Events: off")
	default:
		fmt.Fprintln(out, "Usage: events on|off")
	}
}

func (p *Probe) cmdIdentity() {
	out := p.rl.Stdout()
	id, err := p.identity.GetOrCreate()
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Device ID:  %s\n", id.DeviceID)
	fmt.Fprintf(out, "Public key: %s\n", id.PublicKey)
	fmt.Fprintf(out, "Created:    %s\n", id.CreatedAt.Format(time.RFC3339))
	if id.PairedAt != nil {
		fmt.Fprintf(out, "Paired:     %s\n", id.PairedAt.Format(time.RFC3339))
	}
	if id.GatewayURL != "" {
		fmt.Fprintf(out, "Gateway:    %s\n", id.GatewayURL)
	}
	fmt.Fprintf(out, "File:       %s\n", p.identity.Path())
}

func (p *Probe) cmdToken(args []string) {
	out := p.rl.Stdout()
	if len(args) == 1 && strings.ToLower(args[0]) == "clear" {
		if err := p.identity.ClearDeviceToken(); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "Device token cleared; the next connection re-pairs.")
		return
	}

	if _, err := p.identity.DeviceToken(); err != nil {
		fmt.Fprintln(out, "Not paired (no device token).")
		return
	}
	fmt.Fprintln(out, "Paired (device token present).")
}

func (p *Probe) cmdDiscover(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	timeout := discovery.BrowseTimeout
	if len(args) == 1 {
		var secs int
		if _, err := fmt.Sscanf(args[0], "%d", &secs); err != nil || secs <= 0 {
			fmt.Fprintln(out, "Usage: discover [seconds]")
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	browser := discovery.NewBrowser(discovery.BrowserConfig{})
	defer browser.Stop()

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	services, err := browser.Browse(browseCtx)
	if err != nil {
		fmt.Fprintf(out, "Discovery failed: %v\n", err)
		return
	}

	fmt.Fprintf(out, "Browsing for %s...\n", timeout)
	found := 0
	for svc := range services {
		found++
		fmt.Fprintf(out, "  %s  %s  (protocol %d-%d)\n",
			svc.InstanceName, svc.URL(), svc.MinProtocol, svc.MaxProtocol)
	}
	if found == 0 {
		fmt.Fprintln(out, "No gateways found.")
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
