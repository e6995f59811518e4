package link

import (
	"fmt"
	"math"

	"github.com/matheuscscp/link-sim/layers/common"

	"github.com/iti/rngstream"
)

type (
	// ErrorModel decides which received packets are corrupted. A disabled
	// model never corrupts.
	ErrorModel interface {
		IsCorrupt(packet *common.Packet) bool
		Enable()
		Disable()
		IsEnabled() bool
	}

	// ErrorModelConfig contains the configs for NewErrorModel().
	ErrorModelConfig struct {
		// Type is "rate" or "list".
		Type string `yaml:"type"`

		// rate
		Rate   float64   `yaml:"rate"`
		Unit   ErrorUnit `yaml:"unit"`
		Stream string    `yaml:"stream"`

		// list
		Ordinals []uint64 `yaml:"ordinals"`
	}

	// ErrorUnit is what a RateErrorModel rate applies to.
	ErrorUnit string

	// RateErrorModel corrupts packets at random with a fixed probability
	// per packet, per byte or per bit.
	RateErrorModel struct {
		errorModelSwitch
		rate float64
		unit ErrorUnit
		rng  *rngstream.RngStream
	}

	// ListErrorModel corrupts the packets at the given receive ordinals,
	// counting from zero.
	ListErrorModel struct {
		errorModelSwitch
		ordinals map[uint64]struct{}
		received uint64
	}

	errorModelSwitch struct {
		disabled bool
	}
)

const (
	ErrorUnitPacket ErrorUnit = "packet"
	ErrorUnitByte   ErrorUnit = "byte"
	ErrorUnitBit    ErrorUnit = "bit"

	errorModelTypeRate = "rate"
	errorModelTypeList = "list"
)

// NewErrorModel creates an ErrorModel from config.
func NewErrorModel(conf ErrorModelConfig) (ErrorModel, error) {
	switch conf.Type {
	case errorModelTypeRate:
		return NewRateErrorModel(conf.Rate, conf.Unit, conf.Stream)
	case errorModelTypeList:
		return NewListErrorModel(conf.Ordinals), nil
	default:
		return nil, fmt.Errorf("unknown error model type '%s'", conf.Type)
	}
}

// NewRateErrorModel creates a RateErrorModel drawing from the named random
// stream. An empty unit means ErrorUnitPacket.
func NewRateErrorModel(rate float64, unit ErrorUnit, stream string) (*RateErrorModel, error) {
	if rate < 0 || rate > 1 || math.IsNaN(rate) {
		return nil, fmt.Errorf("error rate must be in [0, 1], got %v", rate)
	}
	switch unit {
	case "":
		unit = ErrorUnitPacket
	case ErrorUnitPacket, ErrorUnitByte, ErrorUnitBit:
	default:
		return nil, fmt.Errorf("unknown error unit '%s'", unit)
	}
	if stream == "" {
		stream = "receive-error-model"
	}
	return &RateErrorModel{
		rate: rate,
		unit: unit,
		rng:  rngstream.New(stream),
	}, nil
}

func (r *RateErrorModel) IsCorrupt(packet *common.Packet) bool {
	if r.disabled {
		return false
	}
	var units int
	switch r.unit {
	case ErrorUnitPacket:
		return r.rng.RandU01() < r.rate
	case ErrorUnitByte:
		units = packet.Size()
	case ErrorUnitBit:
		units = 8 * packet.Size()
	}
	// probability of at least one unit in error
	p := 1 - math.Pow(1-r.rate, float64(units))
	return r.rng.RandU01() < p
}

// NewListErrorModel creates a ListErrorModel.
func NewListErrorModel(ordinals []uint64) *ListErrorModel {
	l := &ListErrorModel{ordinals: make(map[uint64]struct{}, len(ordinals))}
	for _, o := range ordinals {
		l.ordinals[o] = struct{}{}
	}
	return l
}

// IsCorrupt counts every packet offered while enabled.
func (l *ListErrorModel) IsCorrupt(*common.Packet) bool {
	if l.disabled {
		return false
	}
	ordinal := l.received
	l.received++
	_, corrupt := l.ordinals[ordinal]
	return corrupt
}

func (e *errorModelSwitch) Enable() {
	e.disabled = false
}

func (e *errorModelSwitch) Disable() {
	e.disabled = true
}

func (e *errorModelSwitch) IsEnabled() bool {
	return !e.disabled
}
