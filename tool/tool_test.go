package tool

import (
	"bytes"
	"testing"
	"time"
)

func TestGzipRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte(`{"token":"abc"}`), 100)
	zipped, err := GzipBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(zipped) >= len(data) {
		t.Errorf("gzip did not shrink payload: %d >= %d", len(zipped), len(data))
	}
	out, err := GunzipBytes(zipped, 0)
	if err != nil || !bytes.Equal(out, data) {
		t.Fatalf("gunzip mismatch err=%v", err)
	}
	limited, _ := GunzipBytes(zipped, 10)
	if len(limited) != 10 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}

func TestTimestampFresh(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{-4 * time.Minute, true},
		{4 * time.Minute, true},
		{-6 * time.Minute, false},
		{6 * time.Minute, false},
	}
	for _, c := range cases {
		ts := now.Add(c.offset).UnixMilli()
		if got := TimestampFresh(ts, now, 5*time.Minute); got != c.want {
			t.Errorf("offset %v: got %v", c.offset, got)
		}
	}
	if MakeDate(now.UnixMilli()) != "2026-05-01 12:00:00(UTC)" {
		t.Errorf("MakeDate = %s", MakeDate(now.UnixMilli()))
	}
}
