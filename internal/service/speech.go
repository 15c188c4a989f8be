package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storybook/internal/domain"
	"storybook/internal/kvstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	AudioCachePrefix   = "audio-cache:"
	AudioCacheIndexKey = "audio-cache-index"
)

var audioCacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storybook_audio_cache_requests_total",
		Help: "Speech requests by cache result.",
	},
	[]string{"result"},
)

// audioEntry is one clip in the insertion-ordered cache index.
type audioEntry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// Narrator reads text aloud through the provider and caches the clips in the kv store.
type Narrator struct {
	ai           AIClient
	kv           kvstore.Store
	defaultVoice domain.Voice
	maxEntries   int
	ttl          time.Duration
	now          func() time.Time
	logger       *zap.Logger

	mu sync.Mutex // index read-modify-write
}

func NewNarrator(ai AIClient, kv kvstore.Store, defaultVoice domain.Voice, maxEntries int, ttl time.Duration, logger *zap.Logger) *Narrator {
	return &Narrator{
		ai:           ai,
		kv:           kv,
		defaultVoice: defaultVoice,
		maxEntries:   maxEntries,
		ttl:          ttl,
		now:          time.Now,
		logger:       logger.Named("Narrator"),
	}
}

// AudioCacheKey is the kv key of the clip for text read by voice.
func AudioCacheKey(text string, voice domain.Voice) string {
	sum := sha256.Sum256([]byte(text + ":" + voice.Value))
	return AudioCachePrefix + hex.EncodeToString(sum[:])
}

// Speak returns mp3 audio for text. An empty voice means the default one.
func (n *Narrator) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyText
	}
	v, err := domain.ParseVoice(voice, n.defaultVoice)
	if err != nil {
		return nil, err
	}
	key := AudioCacheKey(text, v)

	if audio, ok := n.lookup(ctx, key); ok {
		audioCacheRequests.WithLabelValues("hit").Inc()
		n.logger.Debug("Audio cache hit", zap.String("key", key))
		return audio, nil
	}
	audioCacheRequests.WithLabelValues("miss").Inc()

	audio, err := n.ai.GenerateSpeech(ctx, SpeechRequest{Text: text, Voice: v})
	if err != nil {
		return nil, err
	}

	if err := n.store(ctx, key, audio); err != nil {
		// клип все равно отдаем
		n.logger.Warn("Failed to cache audio clip", zap.String("key", key), zap.Error(err))
	}
	return audio, nil
}

func (n *Narrator) lookup(ctx context.Context, key string) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	index, err := n.loadIndex(ctx)
	if err != nil {
		n.logger.Warn("Failed to read audio cache index", zap.Error(err))
		return nil, false
	}
	for _, e := range index {
		if e.Key != key {
			continue
		}
		if n.expired(e) {
			return nil, false
		}
		audio, err := n.kv.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, kvstore.ErrNotFound) {
				n.logger.Warn("Failed to read cached clip", zap.String("key", key), zap.Error(err))
			}
			return nil, false
		}
		return audio, true
	}
	return nil, false
}

func (n *Narrator) store(ctx context.Context, key string, audio []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	index, err := n.loadIndex(ctx)
	if err != nil {
		return err
	}
	if err := n.kv.Set(ctx, key, audio); err != nil {
		return fmt.Errorf("failed to store clip: %w", err)
	}

	kept := index[:0]
	for _, e := range index {
		if e.Key != key {
			kept = append(kept, e)
		}
	}
	kept = append(kept, audioEntry{Key: key, CreatedAt: n.now()})

	// FIFO: самые старые клипы уходят первыми
	for len(kept) > n.maxEntries {
		oldest := kept[0]
		if err := n.kv.Delete(ctx, oldest.Key); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			n.logger.Warn("Failed to evict clip", zap.String("key", oldest.Key), zap.Error(err))
		}
		kept = kept[1:]
		n.logger.Debug("Evicted audio clip", zap.String("key", oldest.Key))
	}

	return kvstore.SetJSON(ctx, n.kv, AudioCacheIndexKey, kept)
}

// ClearCache removes every cached clip and the index.
func (n *Narrator) ClearCache(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	keys, err := n.kv.Keys(ctx, AudioCachePrefix)
	if err != nil {
		return fmt.Errorf("failed to list cached clips: %w", err)
	}
	var errs []error
	for _, k := range keys {
		if err := n.kv.Delete(ctx, k); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if err := n.kv.Delete(ctx, AudioCacheIndexKey); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to clear audio cache: %w", errors.Join(errs...))
	}
	n.logger.Info("Audio cache cleared", zap.Int("clips", len(keys)))
	return nil
}

func (n *Narrator) expired(e audioEntry) bool {
	return n.ttl > 0 && n.now().Sub(e.CreatedAt) >= n.ttl
}

func (n *Narrator) loadIndex(ctx context.Context) ([]audioEntry, error) {
	var index []audioEntry
	err := kvstore.GetJSON(ctx, n.kv, AudioCacheIndexKey, &index)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio cache index: %w", err)
	}
	return index, nil
}
