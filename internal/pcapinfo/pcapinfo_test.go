package pcapinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPcap(t *testing.T, timestamps []time.Time, payloadLen int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	payload := make([]byte, payloadLen)
	for _, ts := range timestamps {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: payloadLen,
			Length:        payloadLen,
		}
		require.NoError(t, w.WritePacket(ci, payload))
	}
	return path
}

func TestSummarize(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	path := writeTestPcap(t, []time.Time{
		first,
		first.Add(time.Second),
		first.Add(3 * time.Second),
	}, 60)

	s, err := Summarize(path)
	require.NoError(t, err)

	assert.Equal(t, int64(3), s.Packets)
	assert.Equal(t, int64(180), s.Bytes)
	assert.Equal(t, 3*time.Second, s.Duration())
	assert.True(t, s.FirstTime.Equal(first))
	assert.Equal(t, "Ethernet", s.LinkType)
}

func TestSummarizeEmptyCapture(t *testing.T) {
	path := writeTestPcap(t, nil, 0)

	s, err := Summarize(path)
	require.NoError(t, err)
	assert.Zero(t, s.Packets)
	assert.Zero(t, s.Duration())
}

func TestSummarizeMissingFile(t *testing.T) {
	_, err := Summarize(filepath.Join(t.TempDir(), "nope.pcap"))
	require.Error(t, err)
}

func TestSummarizeNotAPcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.pcap")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a pcap"), 0o644))

	_, err := Summarize(path)
	require.Error(t, err)
}
