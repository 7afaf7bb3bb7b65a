// Package redis provides the Redis connection used for the bridge's
// last-value cache.
//
// Usage:
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package redis
