package link

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DataRate is a transmission rate in bits per second. Zero means
// unmetered, i.e. transmissions take no time.
type DataRate uint64

const (
	BitPerSecond     DataRate = 1
	KilobitPerSecond          = 1000 * BitPerSecond
	MegabitPerSecond          = 1000 * KilobitPerSecond
	GigabitPerSecond          = 1000 * MegabitPerSecond
)

// suffixes ordered so that longer suffixes are tried first
var dataRateUnits = []struct {
	suffix     string
	multiplier float64
}{
	{"kbps", 1e3}, {"Kbps", 1e3}, {"kb/s", 1e3}, {"Kb/s", 1e3},
	{"Mbps", 1e6}, {"Mb/s", 1e6},
	{"Gbps", 1e9}, {"Gb/s", 1e9},
	{"KBps", 8e3}, {"kBps", 8e3}, {"KB/s", 8e3}, {"kB/s", 8e3},
	{"MBps", 8e6}, {"MB/s", 8e6},
	{"GBps", 8e9}, {"GB/s", 8e9},
	{"bps", 1}, {"b/s", 1},
	{"Bps", 8}, {"B/s", 8},
}

// ParseDataRate parses strings like "10Mbps", "1.5Mbps", "64kb/s",
// "1000000bps" or "1000000". Upper case B stands for bytes.
func ParseDataRate(s string) (DataRate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	num, multiplier := s, 1.0
	for _, u := range dataRateUnits {
		if strings.HasSuffix(s, u.suffix) {
			num, multiplier = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.multiplier
			break
		}
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing data rate '%s': %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("data rate cannot be negative: '%s'", s)
	}
	return DataRate(v * multiplier), nil
}

// BytesTxTime returns how long it takes to transmit n bytes, rounded down
// to the nanosecond.
func (r DataRate) BytesTxTime(n int) time.Duration {
	if r == 0 || n <= 0 {
		return 0
	}
	return time.Duration(uint64(n) * 8 * uint64(time.Second) / uint64(r))
}

func (r DataRate) String() string {
	switch {
	case r == 0:
		return "0bps"
	case r%GigabitPerSecond == 0:
		return fmt.Sprintf("%dGbps", r/GigabitPerSecond)
	case r%MegabitPerSecond == 0:
		return fmt.Sprintf("%dMbps", r/MegabitPerSecond)
	case r%KilobitPerSecond == 0:
		return fmt.Sprintf("%dkbps", r/KilobitPerSecond)
	}
	return fmt.Sprintf("%dbps", uint64(r))
}

func (r *DataRate) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseDataRate(value.Value)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func (r DataRate) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}
