package cnst

const (
	// RedisClusterTypeSingle connects to a single Redis node
	RedisClusterTypeSingle = "single"
	// RedisClusterTypeSentinel connects through Redis Sentinel
	RedisClusterTypeSentinel = "sentinel"
	// RedisClusterTypeCluster connects to a Redis Cluster
	RedisClusterTypeCluster = "cluster"
)
