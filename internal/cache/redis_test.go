package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

func newTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisClient(Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestSnapshotRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)

	if _, ok, err := c.LatestSnapshot(); err != nil || ok {
		t.Fatalf("expected no snapshot yet, got ok=%v err=%v", ok, err)
	}

	in := models.Snapshot{
		Devices: map[string]models.DeviceRecord{
			"aa": {Vendor: "Apple", Timestamps: []int64{1}, RSSIList: []int{-40}, ChannelCounts: models.ChannelCounts{"6": 1}},
		},
		Diagnostics: models.Diagnostics{FreeHeap: models.Int64(1234)},
	}
	if err := c.SaveSnapshot(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, ok, err := c.LatestSnapshot()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if out.Devices["aa"].Vendor != "Apple" || out.Diagnostics.HeapOrZero() != 1234 {
		t.Fatalf("unexpected snapshot %+v", out)
	}
	if ttl := mr.TTL(snapshotKey); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
}

func TestAlertsAreTrimmedNewestFirst(t *testing.T) {
	c, _ := newTestClient(t)
	base := time.Unix(100, 0).UTC()
	for i := 0; i < 3; i++ {
		if err := c.StoreAlert(Alert{MAC: string(rune('a' + i)), At: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("store alert: %v", err)
		}
	}
	alerts, err := c.RecentAlerts(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(alerts) != 2 || alerts[0].MAC != "c" || alerts[1].MAC != "b" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
}

func TestPacketLog(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisClient(Options{Addr: mr.Addr(), PacketLogSize: 3})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	base := time.UnixMilli(1_700_000_000_000).UTC()
	for i := 0; i < 5; i++ {
		p := Packet{At: base.Add(time.Duration(i) * time.Hour), Type: "probe", MAC: "aa:bb:cc:dd:ee:ff", RSSI: -40 - i}
		if err := c.LogPacket(p); err != nil {
			t.Fatalf("log packet: %v", err)
		}
	}
	// Identical packets are kept apart by their id.
	if err := c.LogPacket(Packet{At: base.Add(4 * time.Hour), Type: "probe", MAC: "aa:bb:cc:dd:ee:ff", RSSI: -44}); err != nil {
		t.Fatalf("log packet: %v", err)
	}

	packets, err := c.RecentPackets(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("expected the log to be capped at 3, got %d", len(packets))
	}
	if packets[0].RSSI != -44 || packets[1].RSSI != -44 || packets[2].RSSI != -43 {
		t.Fatalf("expected newest first, got %+v", packets)
	}
	if packets[0].ID == "" || packets[0].ID == packets[1].ID {
		t.Fatalf("expected distinct ids, got %q %q", packets[0].ID, packets[1].ID)
	}

	n, err := c.PrunePackets(base.Add(4 * time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned packet, got %d", n)
	}
	if packets, _ = c.RecentPackets(10); len(packets) != 2 {
		t.Fatalf("expected 2 packets left, got %d", len(packets))
	}
}

func TestBanList(t *testing.T) {
	c, _ := newTestClient(t)
	now := time.Unix(1_000_000, 0)

	if err := c.Ban("old", now.Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if err := c.Ban("new", now); err != nil {
		t.Fatalf("ban: %v", err)
	}

	banned, err := c.IsBanned("new")
	if err != nil || !banned {
		t.Fatalf("expected new to be banned, got %v %v", banned, err)
	}
	banned, err = c.IsBanned("nobody")
	if err != nil || banned {
		t.Fatalf("expected nobody to be clear, got %v %v", banned, err)
	}

	n, err := c.PruneBans(now.Add(-7 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", n)
	}
	macs, err := c.BannedMACs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(macs) != 1 || macs[0] != "new" {
		t.Fatalf("unexpected ban list %v", macs)
	}
}

func TestSettings(t *testing.T) {
	c, _ := newTestClient(t)

	v, err := c.Setting("esp_ap_ssid", "FreeWiFi_Honeypot")
	if err != nil || v != "FreeWiFi_Honeypot" {
		t.Fatalf("expected default, got %q %v", v, err)
	}
	if err := c.SetSettings(map[string]string{"esp_ap_ssid": "Lab"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err = c.Setting("esp_ap_ssid", "FreeWiFi_Honeypot")
	if err != nil || v != "Lab" {
		t.Fatalf("expected stored value, got %q %v", v, err)
	}
}

func TestLayoutLastWriterWins(t *testing.T) {
	c, _ := newTestClient(t)

	order, err := c.Layout()
	if err != nil || order != nil {
		t.Fatalf("expected no layout, got %v %v", order, err)
	}
	if err := c.SaveLayout([]string{"signal", "ssid"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.SaveLayout([]string{"ssid", "signal"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	order, err = c.Layout()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(order) != 2 || order[0] != "ssid" {
		t.Fatalf("expected last write to win, got %v", order)
	}
}

func TestVendor(t *testing.T) {
	c, mr := newTestClient(t)
	mr.HSet(ouiKey, "AABBCC", "Apple")

	if got := c.Vendor("aa:bb:cc:11:22:33"); got != "Apple" {
		t.Fatalf("expected Apple, got %q", got)
	}
	if got := c.Vendor("de:ad:be:ef:00:00"); got != "Unknown" {
		t.Fatalf("expected Unknown, got %q", got)
	}
	if got := c.Vendor("ab"); got != "Unknown" {
		t.Fatalf("expected Unknown for short mac, got %q", got)
	}
}

func TestOUIPrefix(t *testing.T) {
	cases := map[string]string{
		"aa:bb:cc:dd:ee:ff": "AABBCC",
		"AA-BB-CC-DD-EE-FF": "AABBCC",
		"aabb.ccdd.eeff":    "AABBCC",
		"aa:b":              "",
	}
	for in, want := range cases {
		if got := OUIPrefix(in); got != want {
			t.Fatalf("OUIPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
