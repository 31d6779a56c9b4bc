// Package redis stores snapshots in Redis through go-redis.
package redis
