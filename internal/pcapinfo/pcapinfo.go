// Package pcapinfo summarizes a downloaded pcap file without fully decoding
// its packets.
package pcapinfo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket/pcapgo"
)

// Summary describes a pcap file's contents.
type Summary struct {
	Packets   int64
	Bytes     int64
	FirstTime time.Time
	LastTime  time.Time
	LinkType  string
}

// Duration is the span between the first and last packet.
func (s Summary) Duration() time.Duration {
	if s.FirstTime.IsZero() || s.LastTime.IsZero() {
		return 0
	}
	return s.LastTime.Sub(s.FirstTime)
}

// Summarize reads the whole pcap file and counts packets and bytes.
func Summarize(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open pcap %s: %w", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return Summary{}, fmt.Errorf("read pcap header of %s: %w", path, err)
	}

	s := Summary{LinkType: r.LinkType().String()}
	for {
		_, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, fmt.Errorf("read packet %d of %s: %w", s.Packets+1, path, err)
		}
		s.Packets++
		s.Bytes += int64(ci.Length)
		if s.FirstTime.IsZero() {
			s.FirstTime = ci.Timestamp
		}
		s.LastTime = ci.Timestamp
	}
}
