// Package hgpu declares the narrow GPU surface that hmdlink consumes.
//
// The bridge never drives the graphics API itself;
// it only opens textures that another process shared by handle,
// and hands their keyed mutexes back and forth.
// Keeping this package to interfaces lets the render-server embedder
// plug in the real device while tests use [hgputest].
package hgpu
