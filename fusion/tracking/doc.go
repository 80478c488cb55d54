// Package tracking implements the reference multi-sensor target tracking
// algorithm on top of the fusion framework.
//
// The algorithm runs a four-state machine (IDLE, ACQUIRING, TRACKING,
// LOST) over a map of fused targets built from radar detections and lidar
// clusters. Confirmed targets drive gimbal pointing commands at the
// coherent device and a periodic fusion-result broadcast. Target
// prioritization and device assignment are delegated to swappable
// strategies.
package tracking
