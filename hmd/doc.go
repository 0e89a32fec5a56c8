// Package hmd declares the render-manager pipeline surface
// that the bridge drives on behalf of remote clients.
//
// The pipeline is the component that owns the head-mounted display:
// it reports per-view render parameters, accepts registered buffer sets,
// and composites presented buffers to the panel.
// hmdlink consumes it as an opaque collaborator;
// tests use the scripted implementation in [hmdtest].
package hmd
