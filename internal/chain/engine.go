package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
	"time"

	"github.com/devrev/securegpx/internal/metrics"
	"github.com/devrev/securegpx/internal/model"
	"go.uber.org/zap"
)

// AlgorithmSHA256 is the only digest the chain is defined for
const AlgorithmSHA256 = "sha256"

// Config configures the hash chain
type Config struct {
	// SecretKey is prepended to every pre-image. It is a constant used for
	// tamper detection, not a cryptographic secret.
	SecretKey string
	Algorithm string
}

// Engine computes and verifies the hash chain over chronologically sorted
// points. It holds no chain state and is safe for concurrent use.
type Engine struct {
	secret    string
	algorithm string
	newHash   func() hash.Hash
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewEngine creates an engine. An unknown algorithm does not fail: the
// engine logs it and produces no hashes, so every chain is unverifiable.
func NewEngine(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Engine {
	e := &Engine{
		secret:    cfg.SecretKey,
		algorithm: cfg.Algorithm,
		metrics:   m,
		logger:    logger,
	}
	switch normalizeAlgorithm(cfg.Algorithm) {
	case "", AlgorithmSHA256:
		e.algorithm = AlgorithmSHA256
		e.newHash = sha256.New
	default:
		logger.Error("Digest algorithm unavailable, points will not be hashed",
			zap.String("algorithm", cfg.Algorithm))
	}
	return e
}

func normalizeAlgorithm(alg string) string {
	return strings.ReplaceAll(strings.ToLower(alg), "-", "")
}

// Available reports whether the configured digest can be computed
func (e *Engine) Available() bool {
	return e.newHash != nil
}

// PreImage returns the text hashed for p when chained after prev
func (e *Engine) PreImage(p *model.WayPoint, prev string) string {
	var b strings.Builder
	b.WriteString(e.secret)
	b.WriteString(prev)
	b.WriteString(p.Time.UTC().Format(model.TimeLayout))
	b.WriteString(Truncate(p.Accuracy, AccuracyDigits))
	b.WriteString(Truncate(p.Lat, CoordinateDigits))
	b.WriteString(Truncate(p.Lng, CoordinateDigits))
	return b.String()
}

// Generate computes the hash of p chained after prev. Points without a time
// and an unavailable digest yield no hash.
func (e *Engine) Generate(p *model.WayPoint, prev string) (string, bool) {
	if !p.HasTime() {
		return "", false
	}
	if e.newHash == nil {
		e.metrics.RecordDigestError()
		return "", false
	}

	h := e.newHash()
	h.Write([]byte(e.PreImage(p, prev)))
	e.metrics.RecordHash()
	return hex.EncodeToString(h.Sum(nil)), true
}

// Apply generates the hash of p and stores it on the point. The returned
// value is the hash the next point chains from.
func (e *Engine) Apply(p *model.WayPoint, prev string) string {
	if h, ok := e.Generate(p, prev); ok {
		p.Hash = h
		return h
	}
	return prev
}

// ValidateChain recomputes the chain over sorted points. With repair every
// computed hash is written back; otherwise points are not touched. A point
// without a time produces no hash and the next point chains from the last
// computed one. The chain is valid when the list is non-empty and the stored
// hash of the last point equals the recomputed one. The second result is the
// last computed hash.
func (e *Engine) ValidateChain(points []*model.WayPoint, repair bool) (bool, string) {
	start := time.Now()

	prev := ""
	var last string
	lastOK := false
	for _, p := range points {
		h, ok := e.Generate(p, prev)
		last, lastOK = h, ok
		if !ok {
			continue
		}
		if repair {
			p.Hash = h
		}
		prev = h
	}

	valid := false
	if len(points) > 0 {
		stored := points[len(points)-1].Hash
		valid = lastOK && stored != "" && stored == last
		if !valid {
			e.logger.Debug("Hash chain mismatch",
				zap.Int("points", len(points)),
				zap.String("stored", stored),
				zap.String("computed", last))
		}
	}

	e.metrics.RecordValidation(valid, time.Since(start).Seconds())
	return valid, prev
}
