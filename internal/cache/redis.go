package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

const (
	snapshotKey  = "snapshot:latest"
	alertsKey    = "alerts:recent"
	packetsKey   = "packets:log"
	bannedKey    = "banned_macs"
	settingsKey  = "settings"
	layoutKey    = "layout:widgets"
	ouiKey       = "oui"
	snapshotTTL  = time.Hour
	maxAlerts    = 1000
	unknownOwner = "Unknown"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// PacketLogSize bounds the packet log; 0 means 10000.
	PacketLogSize int64
}

type RedisClient struct {
	client     *redis.Client
	ctx        context.Context
	maxPackets int64
}

func NewRedisClient(opts Options) (*RedisClient, error) {
	if opts.PoolSize == 0 {
		opts.PoolSize = 100
	}
	if opts.PacketLogSize <= 0 {
		opts.PacketLogSize = 10000
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisClient{
		client:     client,
		ctx:        ctx,
		maxPackets: opts.PacketLogSize,
	}, nil
}

// SaveSnapshot keeps the most recent snapshot for an hour so a restarted
// process can serve a view before the sensor reports again.
func (r *RedisClient) SaveSnapshot(s models.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.client.Set(r.ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in Redis: %w", err)
	}
	return nil
}

func (r *RedisClient) LatestSnapshot() (models.Snapshot, bool, error) {
	var s models.Snapshot
	data, err := r.client.Get(r.ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, true, nil
}

type Alert struct {
	MAC    string              `json:"mac"`
	At     time.Time           `json:"at"`
	Device models.DeviceRecord `json:"device"`
}

func (r *RedisClient) StoreAlert(a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := r.client.LPush(r.ctx, alertsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to update recent alerts list: %w", err)
	}

	r.client.LTrim(r.ctx, alertsKey, 0, maxAlerts-1)

	return nil
}

// RecentAlerts returns up to count alerts, newest first.
func (r *RedisClient) RecentAlerts(count int64) ([]Alert, error) {
	raw, err := r.client.LRange(r.ctx, alertsKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent alerts: %w", err)
	}

	alerts := make([]Alert, 0, len(raw))
	for _, item := range raw {
		var a Alert
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}

	return alerts, nil
}

// Packet is one sensor observation together with the device scores it
// produced.
type Packet struct {
	ID               string    `json:"id"`
	At               time.Time `json:"at"`
	Type             string    `json:"type"`
	MAC              string    `json:"mac"`
	SSID             string    `json:"ssid,omitempty"`
	RSSI             int       `json:"rssi"`
	Channel          int       `json:"channel"`
	AnomalyScore     float64   `json:"anomaly_score"`
	PersistenceScore float64   `json:"persistence_score"`
	PatternScore     float64   `json:"pattern_score"`
	DeauthCount      int       `json:"deauth_count"`
}

// LogPacket appends p to the packet log, scored by its time, and keeps only
// the newest PacketLogSize entries.
func (r *RedisClient) LogPacket(p Packet) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	_, err = r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(r.ctx, packetsKey, &redis.Z{Score: float64(p.At.UnixMilli()), Member: data})
		pipe.ZRemRangeByRank(r.ctx, packetsKey, 0, -r.maxPackets-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to log packet: %w", err)
	}
	return nil
}

// RecentPackets returns up to count packets, newest first.
func (r *RedisClient) RecentPackets(count int64) ([]Packet, error) {
	raw, err := r.client.ZRevRange(r.ctx, packetsKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read packet log: %w", err)
	}

	packets := make([]Packet, 0, len(raw))
	for _, item := range raw {
		var p Packet
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			continue
		}
		packets = append(packets, p)
	}
	return packets, nil
}

// PrunePackets removes packets logged before cutoff.
func (r *RedisClient) PrunePackets(cutoff time.Time) (int64, error) {
	n, err := r.client.ZRemRangeByScore(r.ctx, packetsKey, "-inf", "("+strconv.FormatInt(cutoff.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune packet log: %w", err)
	}
	return n, nil
}

func (r *RedisClient) Ban(mac string, at time.Time) error {
	z := &redis.Z{Score: float64(at.Unix()), Member: mac}
	if err := r.client.ZAdd(r.ctx, bannedKey, z).Err(); err != nil {
		return fmt.Errorf("failed to ban %s: %w", mac, err)
	}
	return nil
}

func (r *RedisClient) IsBanned(mac string) (bool, error) {
	err := r.client.ZScore(r.ctx, bannedKey, mac).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ban list: %w", err)
	}
	return true, nil
}

func (r *RedisClient) BannedMACs() ([]string, error) {
	macs, err := r.client.ZRange(r.ctx, bannedKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list banned macs: %w", err)
	}
	return macs, nil
}

// PruneBans removes entries banned before cutoff.
func (r *RedisClient) PruneBans(cutoff time.Time) (int64, error) {
	n, err := r.client.ZRemRangeByScore(r.ctx, bannedKey, "-inf", "("+strconv.FormatInt(cutoff.Unix(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune ban list: %w", err)
	}
	return n, nil
}

func (r *RedisClient) Setting(key, def string) (string, error) {
	v, err := r.client.HGet(r.ctx, settingsKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisClient) SetSettings(values map[string]string) error {
	fields := make([]interface{}, 0, len(values)*2)
	for k, v := range values {
		fields = append(fields, k, v)
	}
	if len(fields) == 0 {
		return nil
	}
	if err := r.client.HSet(r.ctx, settingsKey, fields...).Err(); err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}
	return nil
}

// SaveLayout overwrites the stored widget order. Concurrent writers are not
// reconciled; the last write wins.
func (r *RedisClient) SaveLayout(order []string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal layout: %w", err)
	}
	if err := r.client.Set(r.ctx, layoutKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store layout: %w", err)
	}
	return nil
}

// Layout returns nil when no order has been saved yet.
func (r *RedisClient) Layout() ([]string, error) {
	data, err := r.client.Get(r.ctx, layoutKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load layout: %w", err)
	}
	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to decode layout: %w", err)
	}
	return order, nil
}

// Vendor looks the OUI prefix of mac up in the "oui" hash, keyed by six
// upper-case hex digits.
func (r *RedisClient) Vendor(mac string) string {
	prefix := OUIPrefix(mac)
	if prefix == "" {
		return unknownOwner
	}
	v, err := r.client.HGet(r.ctx, ouiKey, prefix).Result()
	if err != nil || v == "" {
		return unknownOwner
	}
	return v
}

func OUIPrefix(mac string) string {
	clean := strings.ToUpper(strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac))
	if len(clean) < 6 {
		return ""
	}
	return clean[:6]
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
