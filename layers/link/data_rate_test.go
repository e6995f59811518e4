package link_test

import (
	"testing"
	"time"

	"github.com/matheuscscp/link-sim/layers/link"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDataRate(t *testing.T) {
	for s, expected := range map[string]link.DataRate{
		"":           0,
		"1000000":    1000000,
		"1000000bps": 1000000,
		"10Mbps":     10 * link.MegabitPerSecond,
		"1.5Mbps":    1500 * link.KilobitPerSecond,
		"64kb/s":     64 * link.KilobitPerSecond,
		"1Gbps":      link.GigabitPerSecond,
		"1KBps":      8 * link.KilobitPerSecond,
		"100B/s":     800,
	} {
		t.Run(s, func(t *testing.T) {
			r, err := link.ParseDataRate(s)
			require.NoError(t, err)
			assert.Equal(t, expected, r)
		})
	}

	for _, s := range []string{"fast", "-1Mbps", "Mbps"} {
		_, err := link.ParseDataRate(s)
		assert.Error(t, err, s)
	}
}

func TestBytesTxTime(t *testing.T) {
	assert.Equal(t, time.Millisecond, (8 * link.MegabitPerSecond).BytesTxTime(1000))
	assert.Equal(t, 800*time.Microsecond, (10 * link.MegabitPerSecond).BytesTxTime(1000))
	assert.Equal(t, 333*time.Nanosecond, (24 * link.GigabitPerSecond).BytesTxTime(1000))
	assert.Equal(t, time.Duration(0), link.DataRate(0).BytesTxTime(1000))
}

func TestDataRateYAML(t *testing.T) {
	var conf struct {
		Rate link.DataRate `yaml:"rate"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("rate: 5Mbps\n"), &conf))
	assert.Equal(t, 5*link.MegabitPerSecond, conf.Rate)
	assert.Error(t, yaml.Unmarshal([]byte("rate: slow\n"), &conf))

	b, err := yaml.Marshal(conf)
	require.NoError(t, err)
	assert.Equal(t, "rate: 5Mbps\n", string(b))
}
