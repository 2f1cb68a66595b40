// peercall places or answers a two-party audio/video call. Two instances
// sharing a rendezvous topic find each other over libp2p GossipSub (or a
// websocket relay), negotiate a direct WebRTC link, and stream camera and
// microphone to each other. The remote side's media is recorded to disk.
//
// Usage:
//
//	peercall -role listen [-config peercall.json]
//	peercall -role call   [-config peercall.json]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/call"
	"github.com/peercall/peercall/internal/config"
	"github.com/peercall/peercall/internal/history"
	"github.com/peercall/peercall/internal/media"
	signaling "github.com/peercall/peercall/internal/signal"
)

func main() {
	var (
		configPath = flag.String("config", "peercall.json", "path to config file")
		role       = flag.String("role", "listen", `"listen" (answer) or "call" (originate)`)
		topic      = flag.String("topic", "", "override the rendezvous topic")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
			log.Printf("no config at %s, using defaults", *configPath)
		} else {
			log.Fatalf("config: %v", err)
		}
	}
	if *topic != "" {
		cfg.Signaling.Topic = *topic
	}
	if *role != "listen" && *role != "call" {
		log.Fatalf(`-role must be "listen" or "call", got %q`, *role)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel, closeChannel, err := buildChannel(ctx, cfg.Signaling)
	if err != nil {
		log.Fatalf("signaling: %v", err)
	}
	defer closeChannel()

	store, err := history.Open(cfg.Paths.HistoryDir)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	defer store.Close()

	if err := os.MkdirAll(cfg.Paths.RecordDir, 0755); err != nil {
		log.Fatalf("recordings: %v", err)
	}

	recID, err := store.Begin(cfg.Signaling.Topic, roleName(*role))
	if err != nil {
		log.Fatalf("history: %v", err)
	}

	terminated := make(chan struct{})
	ctrl := call.New(call.Config{
		ICEServers:     iceServers(cfg.ICE),
		Channel:        channel,
		Topic:          cfg.Signaling.Topic,
		RemoteSink:     media.NewDiskSink(cfg.Paths.RecordDir),
		VideoWidth:     cfg.Media.VideoWidth,
		VideoHeight:    cfg.Media.VideoHeight,
		VideoFrameRate: cfg.Media.VideoFrameRate,
		EnableAudio:    cfg.Media.EnableAudio,
		OnReady: func() {
			log.Printf("ready: local media up, waiting for the other side")
		},
		OnConnected: func() {
			log.Printf("connected: remote media flowing")
			_ = store.SetOutcome(recID, "connected")
		},
		OnTerminated: func() {
			_ = store.End(recID, "terminated")
			close(terminated)
		},
		OnError: func(err error) {
			log.Printf("call error: %v", err)
			_ = store.SetOutcome(recID, "error")
		},
	})

	if *role == "call" {
		ctrl.Call()
	} else {
		ctrl.Listen()
	}
	log.Printf("%s on topic %q, ctrl-c to hang up", roleName(*role), cfg.Signaling.Topic)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Printf("hanging up")
		ctrl.Hangup()
		<-terminated
	case <-terminated:
		log.Printf("call ended by remote side")
	}
}

// buildChannel constructs the configured signaling transport.
func buildChannel(ctx context.Context, sc config.Signaling) (sig signaling.Channel, closeFn func(), err error) {
	if sc.Transport == "ws" {
		ws, err := signaling.DialWS(sc.RelayURL)
		if err != nil {
			return nil, nil, err
		}
		return ws, func() { _ = ws.Close() }, nil
	}

	node, err := signaling.NewNode(ctx, sc.ListenPort, sc.MdnsTag)
	if err != nil {
		return nil, nil, err
	}
	if sc.Bootstrap != "" {
		if err := node.Connect(ctx, sc.Bootstrap); err != nil {
			log.Printf("bootstrap dial failed (continuing with mDNS): %v", err)
		}
	}
	log.Printf("node %s listening", node.ID())
	for _, a := range node.Addrs() {
		log.Printf("  %s/p2p/%s", a, node.ID())
	}
	return node, func() { _ = node.Close() }, nil
}

func iceServers(entries []config.ICE) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(entries))
	for _, e := range entries {
		s := webrtc.ICEServer{URLs: e.URLs, Username: e.Username}
		if e.Credential != "" {
			s.Credential = e.Credential
		}
		out = append(out, s)
	}
	return out
}

func roleName(role string) string {
	if role == "call" {
		return "caller"
	}
	return "callee"
}
