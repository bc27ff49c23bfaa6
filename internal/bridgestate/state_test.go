package bridgestate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestTrackerMemory(t *testing.T) {
	ms := NewMemoryStore()
	tr := NewTracker(ms, State{Port: 8765, Version: "test"})
	st, _ := ms.Load(context.Background())
	if st.Status != StatusNotReady || st.Port != 8765 {
		t.Fatalf("initial state = %+v", st)
	}

	tr.SetConnections(1)
	st, _ = ms.Load(context.Background())
	if st.Status != StatusConnected || st.Connections != 1 {
		t.Fatalf("after connect = %+v", st)
	}
	tr.SetConnections(0)
	if got := tr.State().Status; got != StatusWaiting {
		t.Fatalf("after disconnect = %q", got)
	}

	tr.StartDrain()
	if !tr.IsDraining() {
		t.Fatalf("IsDraining = false; want true")
	}
	tr.SetConnections(2)
	if got := tr.State().Status; got != StatusDraining {
		t.Fatalf("draining status overwritten: %q", got)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	rs, err := NewRedisStore(ctx, mr.Addr(), "8765", time.Minute)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	st, err := rs.Load(ctx)
	if err != nil || st.Status != StatusNotReady {
		t.Fatalf("initial load = %+v, %v", st, err)
	}

	tr := NewTracker(rs, State{Port: 8765})
	tr.SetConnections(1)
	st, err = rs.Load(ctx)
	if err != nil || st.Status != StatusConnected || st.Port != 8765 {
		t.Fatalf("load after update = %+v, %v", st, err)
	}
	if ttl := mr.TTL(KeyPrefix + "8765"); ttl <= 0 {
		t.Fatalf("expected ttl on key, got %v", ttl)
	}

	if err := rs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if mr.Exists(KeyPrefix + "8765") {
		t.Fatalf("key not removed on close")
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := NewRedisStore(ctx, "127.0.0.1:1", "x", 0); err == nil {
		t.Fatalf("expected error for unreachable redis")
	}
}

func TestParseRedisURL(t *testing.T) {
	cases := []struct {
		in     string
		addrs  int
		db     int
		master string
		tls    bool
		err    bool
	}{
		{in: "localhost:6379", addrs: 1},
		{in: "redis://u:p@h1:6379/2", addrs: 1, db: 2},
		{in: "rediss://h1:6379?db=3", addrs: 1, db: 3, tls: true},
		{in: "redis-sentinel://h1:26379,h2:26379/mymaster?db=1", addrs: 2, db: 1, master: "mymaster"},
		{in: "redis://h1/notanumber", err: true},
		{in: "http://h1", err: true},
	}
	for _, c := range cases {
		opts, err := parseRedisURL(c.in)
		if c.err {
			if err == nil {
				t.Fatalf("%s: expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", c.in, err)
		}
		if len(opts.Addrs) != c.addrs || opts.DB != c.db || opts.MasterName != c.master || (opts.TLSConfig != nil) != c.tls {
			t.Fatalf("%s: unexpected opts %+v", c.in, opts)
		}
	}
}
