// Package provider holds the in-memory model provider shared by the poller and
// the mounted views.
//
// A Hub keeps the newest snapshot per subject. The poller publishes into it;
// lifecycle coordinators subscribe through the lifecycle.Provider methods and
// write normalized snapshots back with Update and Idle.
package provider
