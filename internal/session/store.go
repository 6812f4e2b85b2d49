package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"tasktracker/internal/config"
	"tasktracker/internal/model"
)

// Store persists the single authenticated session record.
//
// Load reports ok=false when nothing is stored or the stored value does not
// parse; only backend I/O failures surface as errors. Clear is idempotent.
type Store interface {
	Save(ctx context.Context, s model.Session) error
	Load(ctx context.Context) (model.Session, bool, error)
	Clear(ctx context.Context) error
	Close() error
}

// Open builds the backend selected by cfg.SessionBackend.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.SessionBackend {
	case "", "bolt":
		return OpenBolt(cfg.SessionPath, cfg.SessionKey, logger)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.SessionKey, logger)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func encode(s model.Session) ([]byte, error) {
	return json.Marshal(s)
}

// decode treats malformed or identity-less records as absent.
func decode(data []byte, logger *zap.Logger) (model.Session, bool) {
	if len(data) == 0 {
		return model.Session{}, false
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		logger.Warn("discarding malformed session record", zap.Error(err))
		return model.Session{}, false
	}
	if !s.Valid() {
		logger.Warn("discarding session record without student_id")
		return model.Session{}, false
	}
	return s, true
}
