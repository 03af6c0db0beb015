package redis

import (
	"context"
	"strings"
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
	"github.com/redis/go-redis/v9"
)

// Client is nil until Initialize connects. Callers fall back to in-process
// state when it is.
var Client redis.UniversalClient

// Config holds the Redis connection settings
type Config struct {
	Addresses        []string
	Password         string
	DB               int
	MaxRetries       int
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PoolSize         int
	MinIdleConns     int
	MasterName       string
	SentinelPassword string
}

// Initialize connects the universal client. A single address gives a plain
// client, several give a cluster client and REDIS.MASTER_NAME switches to
// sentinel mode:
//
//	REDIS:
//	  ADDRESSES: "redis1:6379,redis2:6379"
//	  PASSWORD: ""
//	  DB: 0
func Initialize() error {
	config := LoadConfig()
	if len(config.Addresses) == 0 {
		log.Info("Redis not configured, survey sessions are kept in memory")
		return nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:            config.Addresses,
		Password:         config.Password,
		DB:               config.DB,
		MaxRetries:       config.MaxRetries,
		DialTimeout:      config.DialTimeout,
		ReadTimeout:      config.ReadTimeout,
		WriteTimeout:     config.WriteTimeout,
		PoolSize:         config.PoolSize,
		MinIdleConns:     config.MinIdleConns,
		MasterName:       config.MasterName,
		SentinelPassword: config.SentinelPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warning("Redis connection failed: %v. Survey sessions are kept in memory", err)
		client.Close()
		return nil
	}

	Client = client
	switch {
	case config.MasterName != "":
		log.Info("Redis sentinel connected (master: %s)", config.MasterName)
	case len(config.Addresses) == 1:
		log.Info("Redis connected (%s)", config.Addresses[0])
	default:
		log.Info("Redis cluster connected (%d nodes)", len(config.Addresses))
	}
	return nil
}

// LoadConfig reads the REDIS.* settings
func LoadConfig() Config {
	config := Config{
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	config.Addresses = splitAddresses(settings.Get("REDIS.ADDRESSES").String())
	if len(config.Addresses) == 0 {
		config.Addresses = splitAddresses(settings.Get("REDIS.ADDRESS").String())
	}

	config.Password = settings.Get("REDIS.PASSWORD").String()
	config.DB = settings.Get("REDIS.DB").Int()
	if poolSize := settings.Get("REDIS.POOL_SIZE").Int(); poolSize > 0 {
		config.PoolSize = poolSize
	}
	if maxRetries := settings.Get("REDIS.MAX_RETRIES").Int(); maxRetries > 0 {
		config.MaxRetries = maxRetries
	}
	config.MasterName = settings.Get("REDIS.MASTER_NAME").String()
	config.SentinelPassword = settings.Get("REDIS.SENTINEL_PASSWORD").String()

	return config
}

func splitAddresses(raw string) []string {
	var addresses []string
	for _, addr := range strings.Split(raw, ",") {
		addr = strings.Trim(strings.TrimSpace(addr), "[]\"")
		if addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}

// IsAvailable reports whether Redis is connected
func IsAvailable() bool {
	return Client != nil
}

// Close closes the Redis connection
func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}
