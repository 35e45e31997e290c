package mapimage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	jp "github.com/go-mclib/protocol/java_protocol"
	ns "github.com/go-mclib/protocol/java_protocol/net_structures"
)

// play state packet ids, matching the bedrock map packets
const (
	MapItemDataID    = 0x43 // clientbound
	MapInfoRequestID = 0x44 // serverbound
)

// Response is a decoded map data packet.
type Response struct {
	MapID   MapID
	Scale   int8
	Locked  bool
	Width   int
	Height  int
	XOffset int
	YOffset int
	Pixels  []byte
}

// BuildResponse encodes the buffer as a map data packet bound to id.
func (b *Buffer) BuildResponse(id MapID) *jp.WirePacket {
	var buf bytes.Buffer
	buf.Grow(len(b.pix) + 32)

	// writes into a bytes.Buffer cannot fail
	_ = ns.VarInt(int32(id)).Encode(&buf)
	_ = ns.Int8(b.meta.Scale).Encode(&buf)
	_ = ns.Boolean(b.meta.Locked).Encode(&buf)
	_ = ns.VarInt(int32(b.width)).Encode(&buf)
	_ = ns.VarInt(int32(b.height)).Encode(&buf)
	_ = ns.VarInt(0).Encode(&buf) // x offset
	_ = ns.VarInt(0).Encode(&buf) // y offset
	_ = ns.VarInt(int32(len(b.pix))).Encode(&buf)
	buf.Write(b.pix)

	return &jp.WirePacket{
		PacketID: MapItemDataID,
		Data:     buf.Bytes(),
	}
}

// ParseResponse decodes a packet produced by BuildResponse.
func ParseResponse(pkt *jp.WirePacket) (*Response, error) {
	if pkt.PacketID != MapItemDataID {
		return nil, fmt.Errorf("mapimage: packet 0x%02x is not map item data", pkt.PacketID)
	}
	r := bytes.NewReader(pkt.Data)

	var (
		resp Response
		err  error
	)
	readVarInt := func() int {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = binary.ReadUvarint(r)
		return int(int32(uint32(v)))
	}
	readByte := func() byte {
		if err != nil {
			return 0
		}
		var c byte
		c, err = r.ReadByte()
		return c
	}

	resp.MapID = MapID(uint32(readVarInt()))
	resp.Scale = int8(readByte())
	resp.Locked = readByte() != 0
	resp.Width = readVarInt()
	resp.Height = readVarInt()
	resp.XOffset = readVarInt()
	resp.YOffset = readVarInt()
	n := readVarInt()
	if err != nil {
		return nil, fmt.Errorf("mapimage: read header: %w", err)
	}
	if resp.Width <= 0 || resp.Height <= 0 || n != resp.Width*resp.Height*4 || n > r.Len() {
		return nil, fmt.Errorf("mapimage: bad pixel length %d for %dx%d", n, resp.Width, resp.Height)
	}
	resp.Pixels = make([]byte, n)
	if _, err := io.ReadFull(r, resp.Pixels); err != nil {
		return nil, fmt.Errorf("mapimage: read pixels: %w", err)
	}
	return &resp, nil
}

// EncodeRequest builds the serverbound map info request for id.
func EncodeRequest(id MapID) *jp.WirePacket {
	var buf bytes.Buffer
	_ = ns.VarInt(int32(id)).Encode(&buf)
	return &jp.WirePacket{
		PacketID: MapInfoRequestID,
		Data:     buf.Bytes(),
	}
}

// DecodeRequest reads the map id out of a map info request.
func DecodeRequest(pkt *jp.WirePacket) (MapID, error) {
	id, err := ns.NewReader(pkt.Data).ReadVarInt()
	if err != nil {
		return 0, fmt.Errorf("mapimage: read map id: %w", err)
	}
	return MapID(uint32(id)), nil
}
