package tracking

import (
	"fmt"
	"math"

	"github.com/oraqon/dp-aero-L2/fusion"
	"github.com/oraqon/dp-aero-L2/message"
	"github.com/oraqon/dp-aero-L2/taskmanager"
)

func (a *Algorithm) processSensorData(ctx *fusion.Context, nodeID string, data *message.SensorData) {
	switch {
	case data.Radar != nil:
		a.processRadar(ctx, nodeID, data.Radar)
	case data.Lidar != nil:
		a.processLidar(ctx, nodeID, data.Lidar)
	case data.Image != nil:
		a.logger.Debug("processing image data",
			"component", a.Name(),
			"node_id", nodeID,
			"width", data.Image.Width,
			"height", data.Image.Height)
	}
}

// processRadar converts each credible polar detection to Cartesian,
// associates it with the nearest known target (or creates one plus its
// tracking task) and folds the measurement in.
func (a *Algorithm) processRadar(ctx *fusion.Context, nodeID string, radar *message.RadarData) {
	targets := fusion.Targets(ctx)

	for _, det := range radar.Detections {
		if det.RCS <= radarRCSFloor {
			continue
		}
		x := det.Range * math.Cos(det.Azimuth) * math.Cos(det.Elevation)
		y := det.Range * math.Sin(det.Azimuth) * math.Cos(det.Elevation)
		z := det.Range * math.Sin(det.Elevation)

		t := a.associateOrCreate(ctx, targets, x, y, z)
		a.foldMeasurement(t, x, y, z, radarConfidenceBoost, nodeID)
	}

	ctx.Set(fusion.TargetsKey, targets)
}

// processLidar clusters the point cloud and folds each large cluster's
// centroid in as a measurement.
func (a *Algorithm) processLidar(ctx *fusion.Context, nodeID string, lidar *message.LidarData) {
	targets := fusion.Targets(ctx)

	for _, cluster := range clusterPoints(lidar.Points, clusterLinkDistance) {
		if len(cluster) < clusterObjectPoints {
			continue
		}
		var x, y, z float64
		for _, p := range cluster {
			x += p.X
			y += p.Y
			z += p.Z
		}
		n := float64(len(cluster))
		x, y, z = x/n, y/n, z/n

		t := a.associateOrCreate(ctx, targets, x, y, z)
		a.foldMeasurement(t, x, y, z, lidarConfidenceBoost, nodeID)
	}

	ctx.Set(fusion.TargetsKey, targets)
}

// processCapability registers the advertised capabilities so the
// capability-based assignment strategy can rank this device.
func (a *Algorithm) processCapability(nodeID string, cap *message.Capability) {
	a.logger.Info("node advertised capabilities",
		"component", a.Name(),
		"node_id", nodeID,
		"sensor_types", len(cap.SensorTypes))
	if len(cap.SensorTypes) > 0 {
		a.tasks.RegisterCapabilities(nodeID, cap.SensorTypes)
	}
}

// associateOrCreate finds the nearest target within the association
// radius, or creates a new one along with its TRACK_TARGET task.
func (a *Algorithm) associateOrCreate(ctx *fusion.Context, targets map[string]*fusion.Target, x, y, z float64) *fusion.Target {
	if id := closestTarget(targets, x, y, z, associationRadius); id != "" {
		return targets[id]
	}

	id := fmt.Sprintf("target_%d", len(targets))
	t := fusion.NewTarget(id)
	targets[id] = t

	deviceID := a.params.DefaultDevice
	if s := a.Assigner(); s != nil {
		if picked := s.SelectForTask(t, taskmanager.TrackTarget, a.tasks, ctx); picked != "" {
			deviceID = picked
		}
	}

	taskID := a.tasks.Create(id, taskmanager.TrackTarget, taskmanager.PriorityHigh)
	a.tasks.Assign(taskID, deviceID)
	a.logger.Info("created tracking task for new target",
		"component", a.Name(),
		"task_id", taskID,
		"target_id", id,
		"device_id", deviceID)
	return t
}

// foldMeasurement applies the position/velocity smoothing and confidence
// bump for one measurement.
//
// The velocity numerator uses the post-smoothing position, so the
// instantaneous estimate is the residual between the measurement and the
// already-updated track rather than the raw frame-to-frame displacement.
// That matches the fielded behavior exactly and is kept as-is.
func (a *Algorithm) foldMeasurement(t *fusion.Target, x, y, z, boost float64, sensorID string) {
	now := a.now()

	alpha := a.params.PositionNoise
	t.X = t.X*(1-alpha) + x*alpha
	t.Y = t.Y*(1-alpha) + y*alpha
	t.Z = t.Z*(1-alpha) + z*alpha

	if !t.LastUpdate.IsZero() {
		dt := now.Sub(t.LastUpdate).Seconds()
		if dt > 0 {
			va := a.params.VelocityAlpha
			t.VX = t.VX*va + ((x-t.X)/dt)*(1-va)
			t.VY = t.VY*va + ((y-t.Y)/dt)*(1-va)
			t.VZ = t.VZ*va + ((z-t.Z)/dt)*(1-va)
		}
	}

	t.Confidence = minf(1.0, t.Confidence+boost)
	t.LastUpdate = now
	t.SensorDetections[sensorID]++
}

// closestTarget returns the id of the nearest target within maxDistance,
// or "" when none qualifies.
func closestTarget(targets map[string]*fusion.Target, x, y, z, maxDistance float64) string {
	closest := ""
	minDist := maxDistance
	for id, t := range targets {
		if d := t.DistanceTo(x, y, z); d < minDist {
			minDist = d
			closest = id
		}
	}
	return closest
}

// clusterPoints groups points into connected components where any two
// points within linkDistance are linked, keeping components larger than
// the minimum cluster size.
func clusterPoints(points []message.LidarPoint, linkDistance float64) [][]message.LidarPoint {
	visited := make([]bool, len(points))
	var clusters [][]message.LidarPoint

	for i := range points {
		if visited[i] {
			continue
		}
		var cluster []message.LidarPoint
		queue := []int{i}
		visited[i] = true

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			cluster = append(cluster, points[cur])

			for j := range points {
				if visited[j] {
					continue
				}
				dx := points[cur].X - points[j].X
				dy := points[cur].Y - points[j].Y
				dz := points[cur].Z - points[j].Z
				if math.Sqrt(dx*dx+dy*dy+dz*dz) < linkDistance {
					visited[j] = true
					queue = append(queue, j)
				}
			}
		}

		if len(cluster) > clusterMinPoints {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}
