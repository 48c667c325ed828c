package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/amoylab/redsess/internal/common/cnst"
)

// ValidationError collects every problem found in a configuration
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid configuration")
	for _, p := range e.Problems {
		sb.WriteString("\n--> ")
		sb.WriteString(p)
	}
	return sb.String()
}

// Validate checks a loaded configuration for values the store cannot work with
func Validate(cfg *Config) error {
	var problems []string

	switch cnst.StoreType(cfg.Session.Type) {
	case cnst.StoreTypeRedis, cnst.StoreTypeMemory:
	default:
		problems = append(problems, fmt.Sprintf("session.type: %v: %q", cnst.ErrUnsupportedStoreType, cfg.Session.Type))
	}
	if cfg.Session.TTL < 0 {
		problems = append(problems, "session.ttl: must not be negative")
	}
	if cfg.Session.TTL > 0 && cfg.Session.TTL%time.Second != 0 {
		problems = append(problems, "session.ttl: must be whole seconds")
	}

	if cnst.StoreType(cfg.Session.Type) == cnst.StoreTypeRedis {
		r := cfg.Session.Redis
		switch r.ClusterType {
		case cnst.RedisClusterTypeSingle, cnst.RedisClusterTypeCluster:
		case cnst.RedisClusterTypeSentinel:
			if r.MasterName == "" {
				problems = append(problems, "session.redis.master_name: required for sentinel")
			}
		default:
			problems = append(problems, fmt.Sprintf("session.redis.cluster_type: %v: %q", cnst.ErrUnsupportedClusterType, r.ClusterType))
		}
		if r.Socket != "" && r.ClusterType != cnst.RedisClusterTypeSingle {
			problems = append(problems, "session.redis.socket: only supported for single nodes")
		}
		if r.DB != 0 && r.ClusterType == cnst.RedisClusterTypeCluster {
			problems = append(problems, "session.redis.db: can not select a db in cluster mode")
		}
		if r.DB < 0 {
			problems = append(problems, "session.redis.db: must not be negative")
		}
	}

	if cfg.Tracing.SamplerRate < 0 || cfg.Tracing.SamplerRate > 1 {
		problems = append(problems, "tracing.sampler_rate: must be within [0, 1]")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
