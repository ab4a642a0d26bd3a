package selekt

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/selekt/selekt/conn"
)

func TestConvertArg_PassesThroughNonTime(t *testing.T) {
	cases := []driver.Value{nil, int64(42), float64(3.14), "text", []byte{1, 2, 3}, true}
	for _, v := range cases {
		got := convertArg(v)
		if b, ok := v.([]byte); ok {
			gb, ok := got.([]byte)
			if !ok || len(gb) != len(b) {
				t.Errorf("convertArg(%v) = %v", v, got)
			}
			continue
		}
		if got != v {
			t.Errorf("convertArg(%v) = %v, want unchanged", v, got)
		}
	}
}

func TestConvertArg_FormatsTime(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := convertArg(ts)
	want := ts.Format(time.RFC3339Nano)
	if got != want {
		t.Errorf("convertArg(time) = %v, want %v", got, want)
	}
}

func TestConvertArgs(t *testing.T) {
	out := convertArgs([]driver.Value{int64(1), "two"})
	want := []conn.Arg{{Value: int64(1)}, {Value: "two"}}
	if len(out) != len(want) || out[0] != want[0] || out[1] != want[1] {
		t.Errorf("convertArgs = %v, want %v", out, want)
	}
}

func TestConvertNamedArgs(t *testing.T) {
	out := convertNamedArgs([]driver.NamedValue{
		{Ordinal: 1, Value: int64(7)},
		{Ordinal: 2, Name: "id", Value: "eight"},
	})
	want := []conn.Arg{{Value: int64(7)}, {Name: "id", Value: "eight"}}
	if len(out) != len(want) || out[0] != want[0] || out[1] != want[1] {
		t.Errorf("convertNamedArgs = %v, want %v", out, want)
	}
}
