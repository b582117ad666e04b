package audio

import (
	"bytes"
	"errors"
	"fmt"
)

var oggCapture = []byte("OggS")

// oggPackets splits an Ogg bitstream into its logical packets. Packets that
// span page boundaries are reassembled; a truncated trailing packet is kept so
// partial browser chunks still yield whatever audio they carry.
func oggPackets(data []byte) ([][]byte, error) {
	var (
		packets [][]byte
		current []byte
	)

	for off := 0; off < len(data); {
		if len(data)-off < 27 || !bytes.Equal(data[off:off+4], oggCapture) {
			if len(packets) == 0 {
				return nil, fmt.Errorf("missing ogg capture pattern at offset %d", off)
			}
			break
		}

		segCount := int(data[off+26])
		headerLen := 27 + segCount
		if off+headerLen > len(data) {
			break
		}
		lacing := data[off+27 : off+headerLen]
		body := data[off+headerLen:]

		pos := 0
		for _, l := range lacing {
			n := int(l)
			if pos+n > len(body) {
				n = len(body) - pos
			}
			current = append(current, body[pos:pos+n]...)
			pos += n
			if l < 255 {
				packets = append(packets, current)
				current = nil
			}
		}

		off += headerLen + pos
	}

	if len(current) > 0 {
		packets = append(packets, current)
	}
	if len(packets) == 0 {
		return nil, errors.New("no ogg packets found")
	}
	return packets, nil
}

// opusChannels reads the channel count from an OpusHead identification packet.
func opusChannels(head []byte) (int, error) {
	if len(head) < 19 || string(head[:8]) != "OpusHead" {
		return 0, errors.New("first ogg packet is not an OpusHead")
	}
	channels := int(head[9])
	if channels < 1 || channels > 2 {
		return 0, fmt.Errorf("unsupported opus channel count %d", channels)
	}
	return channels, nil
}
