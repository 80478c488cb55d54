package message

import (
	"encoding/json"

	"github.com/oraqon/dp-aero-L2/errors"
)

// InboundCase identifies which payload an Inbound envelope carries.
type InboundCase int

const (
	InboundNone InboundCase = iota
	InboundSensorData
	InboundCapability
	InboundNodeStatus
	InboundHeartbeat
)

func (c InboundCase) String() string {
	switch c {
	case InboundSensorData:
		return "sensor_data"
	case InboundCapability:
		return "capability_advertisement"
	case InboundNodeStatus:
		return "node_status"
	case InboundHeartbeat:
		return "heartbeat"
	default:
		return "none"
	}
}

// Sender identifies the L1 node that originated a message.
type Sender struct {
	NodeID   string            `json:"node_id"`
	NodeType string            `json:"node_type"`
	Location string            `json:"location,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Inbound is the L1-to-L2 envelope. Exactly one payload field is set.
type Inbound struct {
	MessageID      string  `json:"message_id"`
	SequenceNumber uint64  `json:"sequence_number,omitempty"`
	Sender         *Sender `json:"sender,omitempty"`
	TimestampMS    int64   `json:"timestamp_ms"`

	SensorData *SensorData `json:"sensor_data,omitempty"`
	Capability *Capability `json:"capability,omitempty"`
	NodeStatus *NodeStatus `json:"node_status,omitempty"`
	Heartbeat  *Heartbeat  `json:"heartbeat,omitempty"`
}

// Case reports which payload the envelope carries, or InboundNone when
// zero or more than one payload field is set.
func (m *Inbound) Case() InboundCase {
	var c InboundCase
	n := 0
	if m.SensorData != nil {
		c, n = InboundSensorData, n+1
	}
	if m.Capability != nil {
		c, n = InboundCapability, n+1
	}
	if m.NodeStatus != nil {
		c, n = InboundNodeStatus, n+1
	}
	if m.Heartbeat != nil {
		c, n = InboundHeartbeat, n+1
	}
	if n != 1 {
		return InboundNone
	}
	return c
}

// Validate checks envelope invariants: a message id, a sender with a node
// id, and exactly one payload case.
func (m *Inbound) Validate() error {
	if m.MessageID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Inbound", "Validate", "message_id required")
	}
	if m.Sender == nil || m.Sender.NodeID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Inbound", "Validate", "sender node_id required")
	}
	if m.Case() == InboundNone {
		return errors.WrapInvalid(errors.ErrInvalidData, "Inbound", "Validate", "exactly one payload case required")
	}
	if m.SensorData != nil {
		return m.SensorData.Validate()
	}
	return nil
}

// SensorData wraps one sensor reading. Exactly one field is set.
type SensorData struct {
	Radar *RadarData `json:"radar,omitempty"`
	Lidar *LidarData `json:"lidar,omitempty"`
	Image *ImageData `json:"image,omitempty"`
	IMU   *IMUData   `json:"imu,omitempty"`
	GPS   *GPSData   `json:"gps,omitempty"`
}

// Validate enforces the one-of shape of the sensor union.
func (s *SensorData) Validate() error {
	n := 0
	if s.Radar != nil {
		n++
	}
	if s.Lidar != nil {
		n++
	}
	if s.Image != nil {
		n++
	}
	if s.IMU != nil {
		n++
	}
	if s.GPS != nil {
		n++
	}
	if n != 1 {
		return errors.WrapInvalid(errors.ErrInvalidData, "SensorData", "Validate", "exactly one sensor case required")
	}
	return nil
}

// RadarDetection is a single radar return in polar coordinates. Angles are
// radians, range in meters.
type RadarDetection struct {
	Range     float64 `json:"range"`
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	RCS       float64 `json:"rcs"`
	Velocity  float64 `json:"velocity,omitempty"`
}

// RadarData carries a frame of radar detections.
type RadarData struct {
	Detections []RadarDetection `json:"detections"`
}

// LidarPoint is a single point in the sensor frame, meters.
type LidarPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Intensity float64 `json:"intensity,omitempty"`
}

// LidarData carries a point cloud frame.
type LidarData struct {
	Points []LidarPoint `json:"points"`
}

// ImageData carries camera frame metadata. Pixel data is base64 so the
// envelope stays valid JSON.
type ImageData struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
	Data   string `json:"data_b64,omitempty"`
}

// IMUData carries inertial readings.
type IMUData struct {
	AccelX float64 `json:"accel_x"`
	AccelY float64 `json:"accel_y"`
	AccelZ float64 `json:"accel_z"`
	GyroX  float64 `json:"gyro_x"`
	GyroY  float64 `json:"gyro_y"`
	GyroZ  float64 `json:"gyro_z"`
}

// GPSData carries a position fix.
type GPSData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	FixType   string  `json:"fix_type,omitempty"`
}

// Capability advertises what a node can do and how fast it publishes.
type Capability struct {
	NodeID       string            `json:"node_id"`
	SensorTypes  []string          `json:"sensor_types,omitempty"`
	DataFormats  []string          `json:"data_formats,omitempty"`
	UpdateRateHz float64           `json:"update_rate_hz,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
}

// NodeStatus is a periodic health report from an L1 node.
type NodeStatus struct {
	NodeID      string  `json:"node_id"`
	Status      string  `json:"status"`
	CPUUsage    float64 `json:"cpu_usage,omitempty"`
	MemoryUsage float64 `json:"memory_usage,omitempty"`
}

// Heartbeat is a lightweight liveness ping.
type Heartbeat struct {
	NodeID      string            `json:"node_id"`
	TimestampMS int64             `json:"timestamp_ms,omitempty"`
	StatusInfo  map[string]string `json:"status_info,omitempty"`
}

// Node status values carried in NodeStatus.Status.
const (
	StatusOnline   = "ONLINE"
	StatusOffline  = "OFFLINE"
	StatusDegraded = "DEGRADED"
	StatusError    = "ERROR"
)

// DecodeInbound parses and validates an L1-to-L2 envelope.
func DecodeInbound(data []byte) (*Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInvalid(err, "Inbound", "DecodeInbound", "unmarshal envelope")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeInbound serializes an envelope after validating it. Used by
// simulators and tests; the L2 process itself only decodes this direction.
func EncodeInbound(m *Inbound) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Inbound", "EncodeInbound", "marshal envelope")
	}
	return data, nil
}
