package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/normalize"
	"solana-leader-lab/internal/observability"
	"solana-leader-lab/internal/solana"
	"solana-leader-lab/internal/storage"
)

// WSSourceConfig configures WSTradeSource.
type WSSourceConfig struct {
	// Programs are subscribed one filter each; some providers accept only
	// one address per logsSubscribe.
	Programs   []string
	Commitment string
	// Workers fetch transactions concurrently. Events may therefore arrive
	// slightly out of order; the detection buffer reorders them.
	Workers int
	// DedupeSize bounds the set of recently seen signatures. A transaction
	// touching two subscribed programs is delivered once per subscription.
	DedupeSize int
	// Stream names the checkpoint row.
	Stream             string
	CheckpointInterval time.Duration
}

// DefaultWSSourceConfig subscribes to PumpFun and Raydium AMM v4.
func DefaultWSSourceConfig() WSSourceConfig {
	return WSSourceConfig{
		Programs:           []string{solana.PumpFunProgramID, solana.RaydiumAMMProgramID},
		Commitment:         solana.CommitmentConfirmed,
		Workers:            4,
		DedupeSize:         4096,
		Stream:             "watch",
		CheckpointInterval: 10 * time.Second,
	}
}

// WSTradeSource turns logsSubscribe notifications into trade events: each
// notification's transaction is fetched over RPC and decoded from its token
// balance changes.
type WSTradeSource struct {
	stream      solana.LogStream
	rpc         solana.RPCClient
	decoder     *normalize.Decoder
	cfg         WSSourceConfig
	checkpoints storage.CheckpointStore
	log         logrus.FieldLogger
	now         func() time.Time

	seen *signatureSet

	mu       sync.Mutex
	lastSlot int64
	lastSig  string
	dirty    bool
}

var _ Source = (*WSTradeSource)(nil)

// WSSourceOption configures WSTradeSource.
type WSSourceOption func(*WSTradeSource)

// WithCheckpoints records progress in store.
func WithCheckpoints(store storage.CheckpointStore) WSSourceOption {
	return func(s *WSTradeSource) {
		s.checkpoints = store
	}
}

// WithSourceLogger sets the logger.
func WithSourceLogger(l logrus.FieldLogger) WSSourceOption {
	return func(s *WSTradeSource) {
		s.log = l
	}
}

// WithReceiveClock overrides the clock used when a transaction has no block time.
func WithReceiveClock(now func() time.Time) WSSourceOption {
	return func(s *WSTradeSource) {
		s.now = now
	}
}

// NewWSTradeSource creates a source. Zero config fields take defaults.
func NewWSTradeSource(stream solana.LogStream, rpc solana.RPCClient, decoder *normalize.Decoder, cfg WSSourceConfig, opts ...WSSourceOption) *WSTradeSource {
	def := DefaultWSSourceConfig()
	if len(cfg.Programs) == 0 {
		cfg.Programs = def.Programs
	}
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = def.DedupeSize
	}
	if cfg.Stream == "" {
		cfg.Stream = def.Stream
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = def.CheckpointInterval
	}

	s := &WSTradeSource{
		stream:  stream,
		rpc:     rpc,
		decoder: decoder,
		cfg:     cfg,
		log:     logrus.StandardLogger(),
		now:     time.Now,
		seen:    newSignatureSet(cfg.DedupeSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logrus.Fields{"component": "ws-source", "stream": cfg.Stream})
	return s
}

// Run runs one stream session. It returns nil when ctx is cancelled and the
// transport error otherwise.
func (s *WSTradeSource) Run(ctx context.Context, out chan<- domain.TradeEvent) error {
	s.logResume(ctx)

	filters := make([]solana.LogsFilter, len(s.cfg.Programs))
	for i, p := range s.cfg.Programs {
		filters[i] = solana.LogsFilter{Mentions: []string{p}, Commitment: s.cfg.Commitment}
	}

	notifs := make(chan solana.LogNotification, 1024)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(notifs)
		return s.stream.Stream(gctx, filters, notifs)
	})

	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			for n := range notifs {
				s.handle(gctx, n, out)
			}
			return nil
		})
	}

	if s.checkpoints != nil {
		g.Go(func() error {
			ticker := time.NewTicker(s.cfg.CheckpointInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					s.saveCheckpoint(context.Background())
					return nil
				case <-ticker.C:
					s.saveCheckpoint(gctx)
				}
			}
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		observability.RecordStreamError("stream")
	}
	return err
}

// handle fetches and decodes one notification. Every failure is logged,
// counted and skipped; none of them ends the session.
func (s *WSTradeSource) handle(ctx context.Context, n solana.LogNotification, out chan<- domain.TradeEvent) {
	observability.RecordTransaction(n.Slot)
	if n.Failed() {
		observability.RecordDecodeError(normalize.ReasonFailed)
		return
	}
	if !s.seen.Add(n.Signature) {
		return
	}

	tx, err := s.rpc.GetTransaction(ctx, n.Signature)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.RecordStreamError("get_transaction")
		s.log.WithError(err).WithField("signature", n.Signature).Warn("fetch transaction failed")
		return
	}
	if tx == nil {
		observability.RecordStreamError("tx_not_found")
		s.log.WithField("signature", n.Signature).Debug("transaction not available yet, skipping")
		return
	}
	if tx.Slot == 0 {
		tx.Slot = n.Slot
	}
	if tx.Signature == "" {
		tx.Signature = n.Signature
	}

	events, err := s.decoder.Decode(tx, s.now())
	if err != nil {
		reason := "unknown"
		var de *normalize.DecodeError
		if errors.As(err, &de) {
			reason = de.Reason
		}
		observability.RecordDecodeError(reason)
		s.log.WithError(err).WithField("signature", n.Signature).Debug("skipping transaction")
		return
	}

	for _, e := range events {
		observability.RecordTradeEvent(e.Side.String(), e.Market.String(), e.Timestamp.Unix())
		select {
		case out <- e:
		case <-ctx.Done():
			return
		}
	}
	s.progress(tx.Slot, tx.Signature)
}

func (s *WSTradeSource) progress(slot int64, sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot >= s.lastSlot {
		s.lastSlot, s.lastSig, s.dirty = slot, sig, true
	}
}

func (s *WSTradeSource) saveCheckpoint(ctx context.Context) {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	cp := &storage.Checkpoint{Stream: s.cfg.Stream, Slot: s.lastSlot, Signature: s.lastSig}
	s.dirty = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.log.WithError(err).Warn("save checkpoint failed")
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
}

// logResume reports how far the chain moved since the last checkpoint.
// Missed slots are not backfilled.
func (s *WSTradeSource) logResume(ctx context.Context) {
	if s.checkpoints == nil {
		return
	}
	cp, err := s.checkpoints.Load(ctx, s.cfg.Stream)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).Warn("load checkpoint failed")
		}
		return
	}
	fields := logrus.Fields{"checkpoint_slot": cp.Slot, "checkpoint_signature": cp.Signature}
	if current, err := s.rpc.GetSlot(ctx); err == nil && current >= cp.Slot {
		fields["missed_slots"] = current - cp.Slot
	}
	s.log.WithFields(fields).Info("resuming stream")
}

// signatureSet remembers the last n signatures.
type signatureSet struct {
	mu   sync.Mutex
	set  map[string]struct{}
	ring []string
	next int
}

func newSignatureSet(n int) *signatureSet {
	return &signatureSet{set: make(map[string]struct{}, n), ring: make([]string, n)}
}

// Add returns false if sig was already present.
func (s *signatureSet) Add(sig string) bool {
	if sig == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[sig]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.set, old)
	}
	s.ring[s.next] = sig
	s.set[sig] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
	return true
}
