//go:build real_waku

package waku

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/waku-org/go-waku/waku/persistence"
	"github.com/waku-org/go-waku/waku/persistence/sqlite"
	wakuNode "github.com/waku-org/go-waku/waku/v2/node"
	"github.com/waku-org/go-waku/waku/v2/protocol"
	wpb "github.com/waku-org/go-waku/waku/v2/protocol/pb"
	"github.com/waku-org/go-waku/waku/v2/protocol/relay"
	"github.com/waku-org/go-waku/waku/v2/utils"
)

const (
	exchangePubsubTopic  = "/waku/2/default-waku/proto"
	exchangeContentTopic = "/claimspace/1/claims-exchange/json"
)

// wireEnvelope is the payload written to the relay; the logical topic rides
// inside it so all exchange traffic shares one content topic.
type wireEnvelope struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

type goWakuTransport struct {
	mu             sync.RWMutex
	node           *wakuNode.WakuNode
	cfg            Config
	bootstrapNodes []string
	topics         map[string]chan Envelope
	relayCancel    context.CancelFunc
	maintainCancel context.CancelFunc
	maintainWG     sync.WaitGroup
}

func newGoWakuBackend() goWakuBackend {
	return &goWakuTransport{topics: make(map[string]chan Envelope)}
}

func (g *goWakuTransport) Start(ctx context.Context, cfg Config) error {
	opts := make([]wakuNode.WakuNodeOption, 0)
	hostAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return err
	}
	opts = append(opts, wakuNode.WithHostAddress(hostAddr))
	if cfg.EnableRelay {
		opts = append(opts, wakuNode.WithWakuRelay())
	}
	if cfg.EnableStore {
		provider, err := newInMemoryMessageProvider()
		if err != nil {
			return err
		}
		opts = append(opts, wakuNode.WithMessageProvider(provider))
		opts = append(opts, wakuNode.WithWakuStore())
	}
	if cfg.EnableFilter {
		opts = append(opts, wakuNode.WithWakuFilterLightNode(), wakuNode.WithWakuFilterFullNode())
	}
	if cfg.EnableLightPush {
		opts = append(opts, wakuNode.WithLightPush())
	}

	node, err := wakuNode.New(opts...)
	if err != nil {
		return err
	}
	if err := node.Start(ctx); err != nil {
		return err
	}

	for _, addr := range cfg.BootstrapNodes {
		_ = node.DialPeer(ctx, addr)
	}

	g.mu.Lock()
	g.node = node
	g.cfg = cfg
	g.bootstrapNodes = append([]string(nil), cfg.BootstrapNodes...)
	g.mu.Unlock()

	if err := g.startRelayLoop(); err != nil {
		return err
	}
	g.startPeerMaintenance()
	return nil
}

func (g *goWakuTransport) Stop() {
	g.stopPeerMaintenance()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.relayCancel != nil {
		g.relayCancel()
		g.relayCancel = nil
	}
	for topic, ch := range g.topics {
		close(ch)
		delete(g.topics, topic)
	}
	if g.node != nil {
		g.node.Stop()
		g.node = nil
	}
}

func (g *goWakuTransport) PeerCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.node == nil {
		return 0
	}
	return g.node.PeerCount()
}

func (g *goWakuTransport) ListenAddresses() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.node == nil {
		return nil
	}
	addrs := g.node.ListenAddresses()
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.String())
	}
	return out
}

func (g *goWakuTransport) Publish(ctx context.Context, env Envelope) error {
	g.mu.RLock()
	node := g.node
	g.mu.RUnlock()
	if node == nil {
		return errors.New("go-waku node is nil")
	}

	payload, err := json.Marshal(wireEnvelope(env))
	if err != nil {
		return err
	}
	ts := time.Now().UnixNano()
	wm := &wpb.WakuMessage{
		Payload:      payload,
		ContentTopic: exchangeContentTopic,
		Timestamp:    &ts,
	}
	_, err = node.Relay().Publish(ctx, wm, relay.WithPubSubTopic(exchangePubsubTopic))
	return err
}

func (g *goWakuTransport) Subscribe(topic string) (<-chan Envelope, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.topics[topic]; ok {
		return ch, nil
	}
	ch := make(chan Envelope, subscriberBuffer)
	g.topics[topic] = ch
	return ch, nil
}

func (g *goWakuTransport) Unsubscribe(topic string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.topics[topic]; ok {
		close(ch)
		delete(g.topics, topic)
	}
}

// startRelayLoop subscribes the shared content topic once and fans inbound
// envelopes out to per-topic channels.
func (g *goWakuTransport) startRelayLoop() error {
	g.mu.Lock()
	node := g.node
	g.mu.Unlock()
	if node == nil {
		return errors.New("go-waku node is nil")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	filter := protocol.NewContentFilter(exchangePubsubTopic, exchangeContentTopic)
	subs, err := node.Relay().Subscribe(loopCtx, filter)
	if err != nil {
		cancel()
		return err
	}
	g.mu.Lock()
	g.relayCancel = cancel
	g.mu.Unlock()

	for _, sub := range subs {
		go func(subscription *relay.Subscription) {
			for env := range subscription.Ch {
				if env == nil || env.Message() == nil {
					continue
				}
				var wire wireEnvelope
				if err := json.Unmarshal(env.Message().Payload, &wire); err != nil {
					continue
				}
				g.deliver(Envelope(wire))
			}
		}(sub)
	}
	return nil
}

func (g *goWakuTransport) deliver(env Envelope) {
	g.mu.RLock()
	ch, ok := g.topics[env.Topic]
	g.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- env:
	default:
		slog.Warn("dropping envelope, subscriber not draining", "topic", env.Topic)
	}
}

func (g *goWakuTransport) startPeerMaintenance() {
	g.mu.Lock()
	if g.maintainCancel != nil {
		g.maintainCancel()
		g.maintainCancel = nil
	}
	if len(g.bootstrapNodes) == 0 || g.node == nil {
		g.mu.Unlock()
		return
	}
	maintainCtx, cancel := context.WithCancel(context.Background())
	g.maintainCancel = cancel
	g.maintainWG.Add(1)
	cfg := g.cfg
	g.mu.Unlock()

	go func() {
		defer g.maintainWG.Done()
		ticker := time.NewTicker(cfg.ReconnectInterval)
		defer ticker.Stop()

		backoff := cfg.ReconnectInterval
		nextAttemptAt := time.Now()
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for {
			select {
			case <-maintainCtx.Done():
				return
			case <-ticker.C:
				if time.Now().Before(nextAttemptAt) {
					continue
				}
				if !g.needMorePeers() {
					backoff = cfg.ReconnectInterval
					nextAttemptAt = time.Now()
					continue
				}

				ok := g.redialBootstrapPeers(maintainCtx, rnd)
				if ok || !g.needMorePeers() {
					backoff = cfg.ReconnectInterval
					nextAttemptAt = time.Now()
					continue
				}

				backoff *= 2
				if backoff > cfg.ReconnectBackoffMax {
					backoff = cfg.ReconnectBackoffMax
				}
				jitter := time.Duration(rnd.Int63n(int64(backoff / 2)))
				nextAttemptAt = time.Now().Add(backoff + jitter)
			}
		}
	}()
}

func (g *goWakuTransport) stopPeerMaintenance() {
	g.mu.Lock()
	cancel := g.maintainCancel
	g.maintainCancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
		g.maintainWG.Wait()
	}
}

func (g *goWakuTransport) needMorePeers() bool {
	g.mu.RLock()
	node := g.node
	bootstrapCount := len(g.bootstrapNodes)
	target := g.cfg.MinPeers
	g.mu.RUnlock()
	if node == nil {
		return false
	}
	if target <= 0 {
		target = 1
	}
	if bootstrapCount > 0 && target > bootstrapCount {
		target = bootstrapCount
	}
	return node.PeerCount() < target
}

func (g *goWakuTransport) redialBootstrapPeers(ctx context.Context, rnd *rand.Rand) bool {
	g.mu.RLock()
	node := g.node
	bootstrapNodes := append([]string(nil), g.bootstrapNodes...)
	g.mu.RUnlock()
	if node == nil || len(bootstrapNodes) == 0 {
		return false
	}

	rnd.Shuffle(len(bootstrapNodes), func(i, j int) {
		bootstrapNodes[i], bootstrapNodes[j] = bootstrapNodes[j], bootstrapNodes[i]
	})

	success := false
	for i, addr := range bootstrapNodes {
		attempt := i + 1
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, err := ma.NewMultiaddr(addr); err != nil {
			slog.Warn("skipping malformed bootstrap address", "peer_addr", addr)
			continue
		}
		if err := node.DialPeer(ctx, addr); err == nil {
			success = true
			slog.Info("peer redial succeeded", "peer_addr", addr, "attempt", attempt)
		} else {
			slog.Warn("peer redial failed", "peer_addr", addr, "attempt", attempt, "reason", err.Error())
		}
	}
	return success
}

func newInMemoryMessageProvider() (*persistence.DBStore, error) {
	db, err := sqlite.NewDB(":memory:", utils.Logger())
	if err != nil {
		return nil, err
	}
	return persistence.NewDBStore(
		prometheus.DefaultRegisterer,
		utils.Logger(),
		persistence.WithDB(db),
		persistence.WithMigrations(sqlite.Migrations),
	)
}
