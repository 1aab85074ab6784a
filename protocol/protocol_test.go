package protocol

import (
	"math"
	"testing"
)

func TestToPlayerRoundTrip(t *testing.T) {
	cases := []ToPlayer{
		{},
		{PlayerID: 1, Command: CmdPosition, X: 12, Y: 7, Speed: 100, Nitro: 100, Misc: 0},
		{PlayerID: math.MinInt16, Command: CmdSetNitroTank, X: math.MinInt32, Y: math.MaxInt32, Speed: math.MaxUint32, Nitro: 255, Misc: math.MaxInt16},
		{PlayerID: 5, Command: CmdCountdown, X: 40, Y: 20, Speed: 60, Nitro: 0, Misc: -1},
	}
	for _, want := range cases {
		buf := AppendToPlayer(nil, want)
		if len(buf) != ToPlayerSize {
			t.Fatalf("encoded size = %d, want %d", len(buf), ToPlayerSize)
		}
		got, ok := DecodeToPlayer(buf)
		if !ok {
			t.Fatalf("decode failed for %+v", want)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestToServerRoundTrip(t *testing.T) {
	cases := []ToServer{
		{},
		{Command: CmdClientHello, X: 80, Y: 24, Misc: 1},
		{Command: CmdClientPosition, X: math.MinInt32, Y: math.MaxInt32, Misc: math.MinInt16},
		{Command: 99, X: -3, Y: 4, Misc: math.MaxInt16},
	}
	for _, want := range cases {
		buf := AppendToServer(nil, want)
		if len(buf) != ToServerSize {
			t.Fatalf("encoded size = %d, want %d", len(buf), ToServerSize)
		}
		got, ok := DecodeToServer(buf)
		if !ok || got != want {
			t.Fatalf("round trip mismatch: got %+v (ok=%v) want %+v", got, ok, want)
		}
	}
}

func TestDecodeNeedsMoreData(t *testing.T) {
	buf := AppendToServer(nil, ToServer{Command: CmdClientPosition, X: 1, Y: 2})
	for n := 0; n < ToServerSize; n++ {
		if _, ok := DecodeToServer(buf[:n]); ok {
			t.Fatalf("decode of %d bytes should need more data", n)
		}
	}
	pbuf := AppendToPlayer(nil, ToPlayer{Command: CmdWon})
	if _, ok := DecodeToPlayer(pbuf[:ToPlayerSize-1]); ok {
		t.Fatalf("short to-player buffer should need more data")
	}
}

func TestSplitToServerKeepsOrderAndTail(t *testing.T) {
	var buf []byte
	for i := int32(1); i <= 3; i++ {
		buf = AppendToServer(buf, ToServer{Command: CmdClientPosition, X: i, Y: i * 10})
	}
	buf = append(buf, 0x02, 0x00, 0x07) // 不完整的第四条

	recs, rest := SplitToServer(buf)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, r := range recs {
		if r.X != int32(i+1) || r.Y != int32(i+1)*10 {
			t.Fatalf("record %d out of order: %+v", i, r)
		}
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 tail bytes, got %d", len(rest))
	}

	recs, rest = SplitToServer(rest[:0])
	if len(recs) != 0 || len(rest) != 0 {
		t.Fatalf("empty buffer should yield nothing")
	}
}

func TestSplitToPlayer(t *testing.T) {
	buf := AppendToPlayer(nil, ToPlayer{PlayerID: 1, Command: CmdCrashed})
	buf = AppendToPlayer(buf, ToPlayer{PlayerID: 2, Command: CmdWon})
	recs, rest := SplitToPlayer(buf)
	if len(recs) != 2 || len(rest) != 0 {
		t.Fatalf("unexpected split: %d records, %d rest", len(recs), len(rest))
	}
	if recs[0].Command != CmdCrashed || recs[1].Command != CmdWon {
		t.Fatalf("unexpected commands: %v %v", recs[0].Command, recs[1].Command)
	}
}

func TestValidPlayerID(t *testing.T) {
	valid := []int16{1, 5, 9, '!', 'A', 'z', '~'}
	for _, v := range valid {
		if !ValidPlayerID(v) {
			t.Fatalf("expected %d to be valid", v)
		}
	}
	invalid := []int16{0, -1, 10, 32, 127, 1000}
	for _, v := range invalid {
		if ValidPlayerID(v) {
			t.Fatalf("expected %d to be invalid", v)
		}
	}
	if got := FormatPlayerID(3); got != "3" {
		t.Fatalf("FormatPlayerID(3) = %q", got)
	}
	if got := FormatPlayerID('x'); got != "x" {
		t.Fatalf("FormatPlayerID('x') = %q", got)
	}
	if got := FormatPlayerID(0); got != "-" {
		t.Fatalf("FormatPlayerID(0) = %q, want a placeholder", got)
	}
}

func TestCanonicalPlayerID(t *testing.T) {
	cases := map[int16]int16{1: 1, '1': 1, '9': 9, '0': '0', 'A': 'A', '!': '!'}
	for in, want := range cases {
		if got := CanonicalPlayerID(in); got != want {
			t.Fatalf("CanonicalPlayerID(%d) = %d, want %d", in, got, want)
		}
		if FormatPlayerID(in) != FormatPlayerID(CanonicalPlayerID(in)) {
			t.Fatalf("canonical form of %d renders differently", in)
		}
	}
}

func TestCommandString(t *testing.T) {
	if CmdWon.String() != "won" {
		t.Fatalf("unexpected name %q", CmdWon.String())
	}
	if Command(42).String() != "cmd(42)" {
		t.Fatalf("unexpected name %q", Command(42).String())
	}
}
