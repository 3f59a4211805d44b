package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

// Gossip topics and envelope tag bytes, spec.md §6: each published message
// is a canonical binary envelope, a tag byte followed by the encoded
// payload.
const (
	TopicTransactions = "vaultchain/tx/1"
	TopicBlocks       = "vaultchain/block/1"

	tagNewTransaction byte = 0x01
	tagNewBlock       byte = 0x02
)

// GossipConfig configures a GossipTransport.
type GossipConfig struct {
	ListenAddr     string
	DiscoveryTag   string
	BootstrapPeers []string
}

// GossipTransport is the two-topic libp2p-pubsub adapter the chain engine
// talks to: mdns local-peer discovery and explicit bootstrap-peer dialing,
// directly grounded on the teacher's core/network.go (NewNode, DialSeed,
// HandlePeerFound, Broadcast, Subscribe). Received messages are decoded and
// routed to ChainEngine.AdmitRemoteTransaction/AddBlock; validation failures are
// logged and the message dropped rather than propagated further (spec.md
// §7's propagation policy).
type GossipTransport struct {
	host   hostCloser
	pubsub *pubsub.PubSub
	engine *ChainEngine
	logger *logrus.Logger

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic

	peerLock sync.RWMutex
	peers    map[string]string

	ctx    context.Context
	cancel context.CancelFunc
}

// hostCloser is the subset of libp2p's host.Host this package uses,
// narrowed so the rest of the file reads against a small local interface.
type hostCloser interface {
	ID() peer.ID
	Connect(ctx context.Context, pi peer.AddrInfo) error
	Close() error
}

// NewGossipTransport creates a libp2p host, joins GossipSub, dials any
// configured bootstrap peers, starts mDNS discovery, and subscribes to both
// the tx and block topics, routing incoming messages into engine.
func NewGossipTransport(cfg GossipConfig, engine *ChainEngine, logger *logrus.Logger) (*GossipTransport, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gossip: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("gossip: create pubsub: %w", err)
	}

	gt := &GossipTransport{
		host:   h,
		pubsub: ps,
		engine: engine,
		logger: logger,
		topics: make(map[string]*pubsub.Topic),
		peers:  make(map[string]string),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := gt.dialSeeds(h, cfg.BootstrapPeers); err != nil {
		logger.WithError(err).Warn("gossip: bootstrap dial warning")
	}

	mdns.NewMdnsService(h, cfg.DiscoveryTag, gt)

	if err := gt.subscribeTransactions(); err != nil {
		gt.Close()
		return nil, err
	}
	if err := gt.subscribeBlocks(); err != nil {
		gt.Close()
		return nil, err
	}

	return gt, nil
}

var _ mdns.Notifee = (*GossipTransport)(nil)

// HandlePeerFound implements mdns.Notifee: connect to a peer discovered on
// the local network, skipping self and already-known peers.
func (gt *GossipTransport) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == gt.host.ID() {
		return
	}
	gt.peerLock.RLock()
	_, known := gt.peers[info.ID.String()]
	gt.peerLock.RUnlock()
	if known {
		return
	}
	if err := gt.host.Connect(gt.ctx, info); err != nil {
		gt.logger.WithError(err).Warn("gossip: connect to discovered peer failed")
		return
	}
	gt.peerLock.Lock()
	gt.peers[info.ID.String()] = info.String()
	gt.peerLock.Unlock()
	gt.logger.WithField("peer", info.ID.String()).Info("connected via mDNS")
}

// dialSeeds connects to every configured bootstrap peer address.
func (gt *GossipTransport) dialSeeds(h hostCloser, seeds []string) error {
	var errs []string
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid addr %s: %v", addr, err))
			continue
		}
		if err := h.Connect(gt.ctx, *pi); err != nil {
			errs = append(errs, fmt.Sprintf("connect %s: %v", addr, err))
			continue
		}
		gt.peerLock.Lock()
		gt.peers[pi.ID.String()] = addr
		gt.peerLock.Unlock()
	}
	if len(errs) > 0 {
		return fmt.Errorf("dial errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (gt *GossipTransport) joinTopic(name string) (*pubsub.Topic, error) {
	gt.topicLock.Lock()
	defer gt.topicLock.Unlock()
	if t, ok := gt.topics[name]; ok {
		return t, nil
	}
	t, err := gt.pubsub.Join(name)
	if err != nil {
		return nil, fmt.Errorf("gossip: join topic %s: %w", name, err)
	}
	gt.topics[name] = t
	return t, nil
}

// PublishTransaction encodes tx behind the NewTransaction tag and publishes
// it on the tx topic. It implements TxPublisher so a ChainEngine can hold a
// GossipTransport directly.
func (gt *GossipTransport) PublishTransaction(tx *Transaction) error {
	topic, err := gt.joinTopic(TopicTransactions)
	if err != nil {
		return err
	}
	envelope := append([]byte{tagNewTransaction}, tx.encode()...)
	return topic.Publish(gt.ctx, envelope)
}

// PublishBlock encodes blk behind the NewBlock tag and publishes it on the
// block topic.
func (gt *GossipTransport) PublishBlock(blk *Block) error {
	topic, err := gt.joinTopic(TopicBlocks)
	if err != nil {
		return err
	}
	envelope := append([]byte{tagNewBlock}, blk.encode()...)
	return topic.Publish(gt.ctx, envelope)
}

func (gt *GossipTransport) subscribeTransactions() error {
	topic, err := gt.joinTopic(TopicTransactions)
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("gossip: subscribe tx topic: %w", err)
	}
	go gt.readLoop(sub, gt.routeTransaction)
	return nil
}

func (gt *GossipTransport) subscribeBlocks() error {
	topic, err := gt.joinTopic(TopicBlocks)
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("gossip: subscribe block topic: %w", err)
	}
	go gt.readLoop(sub, gt.routeBlock)
	return nil
}

func (gt *GossipTransport) readLoop(sub *pubsub.Subscription, route func(envelope []byte)) {
	for {
		msg, err := sub.Next(gt.ctx)
		if err != nil {
			gt.logger.WithError(err).Debug("gossip: subscription closed")
			return
		}
		if msg.ReceivedFrom == gt.host.ID() {
			continue
		}
		route(msg.Data)
	}
}

// routeTransaction decodes a tx-topic envelope and forwards it to the
// engine. A decode or validation failure is logged and the message is
// dropped, per spec.md §7's propagation policy.
func (gt *GossipTransport) routeTransaction(envelope []byte) {
	if len(envelope) == 0 || envelope[0] != tagNewTransaction {
		gt.logger.Warn("gossip: bad tx envelope tag")
		return
	}
	tx, err := decodeTransaction(envelope[1:])
	if err != nil {
		gt.logger.WithError(err).Warn("gossip: decode transaction failed")
		return
	}
	if err := gt.engine.AdmitRemoteTransaction(tx); err != nil {
		gt.logger.WithError(err).Debug("gossip: transaction rejected")
	}
}

// routeBlock decodes a block-topic envelope and forwards it to the engine.
func (gt *GossipTransport) routeBlock(envelope []byte) {
	if len(envelope) == 0 || envelope[0] != tagNewBlock {
		gt.logger.Warn("gossip: bad block envelope tag")
		return
	}
	blk, err := decodeBlock(envelope[1:])
	if err != nil {
		gt.logger.WithError(err).Warn("gossip: decode block failed")
		return
	}
	if err := gt.engine.AddBlock(blk); err != nil {
		gt.logger.WithError(err).Debug("gossip: block rejected")
	}
}

// Peers returns the set of currently known peer addresses.
func (gt *GossipTransport) Peers() map[string]string {
	gt.peerLock.RLock()
	defer gt.peerLock.RUnlock()
	out := make(map[string]string, len(gt.peers))
	for k, v := range gt.peers {
		out[k] = v
	}
	return out
}

// Close tears down the node, closing the host and cancelling its context.
func (gt *GossipTransport) Close() error {
	gt.cancel()
	return gt.host.Close()
}
