package message

import (
	"encoding/json"

	"github.com/oraqon/dp-aero-L2/errors"
)

// OutboundCase identifies which payload an Outbound envelope carries.
type OutboundCase int

const (
	OutboundNone OutboundCase = iota
	OutboundControlCommand
	OutboundConfigurationUpdate
	OutboundFusionResult
	OutboundSystemCommand
)

func (c OutboundCase) String() string {
	switch c {
	case OutboundControlCommand:
		return "control_command"
	case OutboundConfigurationUpdate:
		return "configuration_update"
	case OutboundFusionResult:
		return "fusion_result"
	case OutboundSystemCommand:
		return "system_command"
	default:
		return "none"
	}
}

// Control command types accepted by L1 nodes.
const (
	CmdStartSensor = "START_SENSOR"
	CmdStopSensor  = "STOP_SENSOR"
	CmdChangeRate  = "CHANGE_RATE"
	CmdPointGimbal = "POINT_GIMBAL"
	CmdCalibrate   = "CALIBRATE"
	CmdReset       = "RESET"
)

// System command types.
const (
	SysShutdown = "SHUTDOWN"
	SysRestart  = "RESTART"
	SysSyncTime = "SYNC_TIME"
)

// Outbound is the L2-to-L1 envelope. TargetNodeID empty means broadcast.
// Exactly one payload field is set.
type Outbound struct {
	MessageID    string `json:"message_id"`
	TargetNodeID string `json:"target_node_id,omitempty"`
	TimestampMS  int64  `json:"timestamp_ms"`

	ControlCommand      *ControlCommand      `json:"control_command,omitempty"`
	ConfigurationUpdate *ConfigurationUpdate `json:"configuration_update,omitempty"`
	FusionResult        *FusionResult        `json:"fusion_result,omitempty"`
	SystemCommand       *SystemCommand       `json:"system_command,omitempty"`
}

// GimbalPosition is a pointing direction in radians.
type GimbalPosition struct {
	Theta float64 `json:"theta"` // azimuth
	Phi   float64 `json:"phi"`   // elevation
}

// ControlCommand directs an L1 device.
type ControlCommand struct {
	CommandType    string          `json:"command_type"`
	RateHz         float64         `json:"rate_hz,omitempty"`
	TargetPosition *GimbalPosition `json:"target_position,omitempty"`
}

// ConfigurationUpdate pushes a parameter set to a node.
type ConfigurationUpdate struct {
	Section    string            `json:"section"`
	Parameters map[string]string `json:"parameters"`
}

// FusionResult reports the algorithm's current picture to interested nodes.
type FusionResult struct {
	AlgorithmName string  `json:"algorithm_name"`
	ResultType    string  `json:"result_type"`
	Confidence    float64 `json:"confidence"`
	ResultData    string  `json:"result_data,omitempty"`
}

// SystemCommand carries process-level directives.
type SystemCommand struct {
	CommandType string `json:"command_type"`
}

// Case reports which payload the envelope carries, or OutboundNone when
// zero or more than one payload field is set.
func (m *Outbound) Case() OutboundCase {
	var c OutboundCase
	n := 0
	if m.ControlCommand != nil {
		c, n = OutboundControlCommand, n+1
	}
	if m.ConfigurationUpdate != nil {
		c, n = OutboundConfigurationUpdate, n+1
	}
	if m.FusionResult != nil {
		c, n = OutboundFusionResult, n+1
	}
	if m.SystemCommand != nil {
		c, n = OutboundSystemCommand, n+1
	}
	if n != 1 {
		return OutboundNone
	}
	return c
}

// Validate checks envelope invariants.
func (m *Outbound) Validate() error {
	if m.MessageID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Outbound", "Validate", "message_id required")
	}
	if m.Case() == OutboundNone {
		return errors.WrapInvalid(errors.ErrInvalidData, "Outbound", "Validate", "exactly one payload case required")
	}
	if m.ControlCommand != nil && m.ControlCommand.CommandType == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Outbound", "Validate", "control command_type required")
	}
	if m.SystemCommand != nil && m.SystemCommand.CommandType == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Outbound", "Validate", "system command_type required")
	}
	return nil
}

// EncodeOutbound serializes an envelope after validating it.
func EncodeOutbound(m *Outbound) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Outbound", "EncodeOutbound", "marshal envelope")
	}
	return data, nil
}

// DecodeOutbound parses and validates an L2-to-L1 envelope. Used by node
// simulators and tests.
func DecodeOutbound(data []byte) (*Outbound, error) {
	var m Outbound
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInvalid(err, "Outbound", "DecodeOutbound", "unmarshal envelope")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
