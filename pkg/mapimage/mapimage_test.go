package mapimage

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	jp "github.com/go-mclib/protocol/java_protocol"
	ns "github.com/go-mclib/protocol/java_protocol/net_structures"
)

func gradient() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, Width, Height))
	for y := range Height {
		for x := range Width {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func TestBlankIsStable(t *testing.T) {
	a, b := Blank(), Blank()
	if a != b {
		t.Fatal("Blank() returned different instances")
	}
	if a.Width() != Width || a.Height() != Height {
		t.Errorf("Blank() size = %dx%d, want %dx%d", a.Width(), a.Height(), Width, Height)
	}
	for i, v := range a.Pixels() {
		if v != 0 {
			t.Fatalf("Blank() pixel byte %d = %d, want 0", i, v)
		}
	}
}

func TestNewCopiesPixels(t *testing.T) {
	src := gradient()
	buf := New(src, Meta{Crop: FullImage})

	src.SetNRGBA(0, 0, color.NRGBA{R: 9, G: 9, B: 9, A: 9})
	if got := buf.At(0, 0); got != (color.NRGBA{A: 255}) {
		t.Errorf("At(0, 0) = %v after mutating source, want {0 0 0 255}", got)
	}

	p := buf.Pixels()
	p[0] = 200
	if buf.At(0, 0).R != 0 {
		t.Error("Pixels() exposed internal storage")
	}
}

func TestFromPixelsRejectsBadLength(t *testing.T) {
	tests := []struct {
		w, h, n int
	}{
		{0, 1, 0},
		{1, 0, 0},
		{2, 2, 15},
		{2, 2, 17},
	}
	for _, tt := range tests {
		if _, err := FromPixels(tt.w, tt.h, make([]byte, tt.n), Meta{}); err == nil {
			t.Errorf("FromPixels(%d, %d, %d bytes) succeeded, want error", tt.w, tt.h, tt.n)
		}
	}
}

func TestBuildResponseLayout(t *testing.T) {
	buf := New(gradient(), Meta{Crop: FullImage, Locked: true})

	pkt := buf.BuildResponse(300)
	if pkt.PacketID != MapItemDataID {
		t.Fatalf("PacketID = 0x%02x, want 0x%02x", pkt.PacketID, MapItemDataID)
	}

	resp, err := ParseResponse(pkt)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.MapID != 300 {
		t.Errorf("MapID = %d, want 300", resp.MapID)
	}
	if !resp.Locked {
		t.Error("Locked = false, want true")
	}
	if resp.Width != Width || resp.Height != Height {
		t.Errorf("size = %dx%d, want %dx%d", resp.Width, resp.Height, Width, Height)
	}

	// row-major from the top-left, R G B A
	for _, p := range []struct{ x, y int }{{0, 0}, {1, 0}, {0, 1}, {127, 5}, {64, 127}} {
		i := (p.y*Width + p.x) * 4
		want := color.NRGBA{R: uint8(p.x), G: uint8(p.y), B: uint8(p.x ^ p.y), A: 255}
		got := color.NRGBA{R: resp.Pixels[i], G: resp.Pixels[i+1], B: resp.Pixels[i+2], A: resp.Pixels[i+3]}
		if got != want {
			t.Errorf("pixel (%d, %d) = %v, want %v", p.x, p.y, got, want)
		}
	}
}

func TestBuildResponseIsPure(t *testing.T) {
	buf := New(gradient(), Meta{Crop: FullImage})
	a := buf.BuildResponse(7)
	b := buf.BuildResponse(7)
	if string(a.Data) != string(b.Data) {
		t.Error("BuildResponse(7) produced different payloads")
	}
	c := buf.BuildResponse(8)
	if string(a.Data) == string(c.Data) {
		t.Error("BuildResponse payload does not depend on the map id")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	for _, id := range []MapID{0, 7, 127, 128, 1 << 20, 1<<32 - 1} {
		got, err := DecodeRequest(EncodeRequest(id))
		if err != nil {
			t.Errorf("DecodeRequest(EncodeRequest(%d)): %v", id, err)
			continue
		}
		if got != id {
			t.Errorf("DecodeRequest(EncodeRequest(%d)) = %d", id, got)
		}
	}
}

func TestParseResponseTruncated(t *testing.T) {
	pkt := Blank().BuildResponse(1)
	pkt.Data = pkt.Data[:len(pkt.Data)-1]
	if _, err := ParseResponse(pkt); err == nil {
		t.Error("ParseResponse on truncated payload succeeded, want error")
	}
}

func TestParseResponseRejectsBadDimensions(t *testing.T) {
	tests := []struct {
		w, h, n int32
	}{
		{-1, -1, 4},
		{0, 0, 0},
		{-2, 2, -16},
		{2, 2, 12},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		_ = ns.VarInt(1).Encode(&buf)
		_ = ns.Int8(0).Encode(&buf)
		_ = ns.Boolean(true).Encode(&buf)
		_ = ns.VarInt(tt.w).Encode(&buf)
		_ = ns.VarInt(tt.h).Encode(&buf)
		_ = ns.VarInt(0).Encode(&buf)
		_ = ns.VarInt(0).Encode(&buf)
		_ = ns.VarInt(tt.n).Encode(&buf)
		buf.Write(make([]byte, 16))

		pkt := &jp.WirePacket{PacketID: MapItemDataID, Data: buf.Bytes()}
		if resp, err := ParseResponse(pkt); err == nil {
			t.Errorf("ParseResponse(%dx%d, %d bytes) = %+v, want error", tt.w, tt.h, tt.n, resp)
		}
	}
}
