package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"vshark/internal/config"
	"vshark/internal/parser/frametest"
)

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "--format", "raw", "-i", "eth0"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var printed struct {
		Capture struct {
			Interface string `yaml:"interface"`
			Format    string `yaml:"format"`
			Command   string `yaml:"command"`
		} `yaml:"capture"`
		Activity struct {
			Interval string `yaml:"interval"`
		} `yaml:"activity"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, "eth0", printed.Capture.Interface)
	assert.Equal(t, "raw", printed.Capture.Format)
	assert.Equal(t, "dumpcap", printed.Capture.Command)
	assert.Equal(t, "200ms", printed.Activity.Interval)
}

func TestEngineOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.QueueSize = 16
	cfg.Framer.ReadSize = 512
	cfg.History.Capacity = 7

	opts := engineOptions(cfg)
	assert.Equal(t, 16, opts.QueueSize)
	assert.Equal(t, 512, opts.ReadSize)
	assert.Equal(t, 7, opts.State.HistoryCapacity)
	assert.Equal(t, 200*time.Millisecond, opts.State.ActivityInterval)
	assert.Equal(t, 100, opts.State.ActivityWindow)
	assert.Equal(t, 50*time.Millisecond, opts.RefreshInterval)
	assert.Equal(t, 20*time.Millisecond, opts.PollTimeout)
}

func TestNewEngineReplaysFile(t *testing.T) {
	frames := [][]byte{
		frametest.Ethernet(t, frametest.TCP(t, "192.168.1.5", "8.8.8.8", 51000, 443, nil)),
		frametest.Ethernet(t, frametest.UDP(t, "10.0.0.1", "10.0.0.2", 40000, 53, nil)),
		frametest.ARP(t),
	}
	path := filepath.Join(t.TempDir(), "trace.pcap")
	require.NoError(t, os.WriteFile(path, frametest.Pcap(t, layers.LinkTypeEthernet, frames...), 0o644))

	cfg := config.Default()
	cfg.Capture.File = path
	log, _ := test.NewNullLogger()

	eng, label, err := newEngine(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, path, label)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	require.Eventually(t, func() bool {
		eng.Drain()
		return eng.Snapshot().FeedClosed
	}, 2*time.Second, time.Millisecond)

	snap := eng.Snapshot()
	assert.Equal(t, uint64(2), snap.TotalPackets)
	require.Len(t, snap.Conversations, 2)
	assert.Equal(t, "HTTPS", snap.Feed[0].Protocol)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), snap.Feed[0].Timestamp)
}

func TestNewEngineRejectsUnknownFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Format = "pcapng"
	log, _ := test.NewNullLogger()

	_, _, err := newEngine(cfg, log)
	assert.Error(t, err)
}

func TestAttachExportDisabled(t *testing.T) {
	cfg := config.Default()
	log, _ := test.NewNullLogger()
	eng, _, err := newEngine(cfg, log)
	require.NoError(t, err)

	closeExport := attachExport(eng, cfg, log)
	require.NotNil(t, closeExport)
	closeExport()
}

func TestAttachExportConnectFailureKeepsRunning(t *testing.T) {
	cfg := config.Default()
	cfg.Export.NATS.Enabled = true
	cfg.Export.NATS.URL = "nats://127.0.0.1:1"
	log, hook := test.NewNullLogger()
	eng, _, err := newEngine(cfg, log)
	require.NoError(t, err)

	closeExport := attachExport(eng, cfg, log)
	closeExport()
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "record export disabled", hook.LastEntry().Message)
}
