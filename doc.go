// Package hmdlink bridges a rendering application and the process
// that owns the head-mounted display.
//
// A client renders views into shareable GPU textures in its own process,
// then hands the server their cross-process handles once and a
// buffer-set index per frame.
// The server imports the textures onto its own device and drives the
// display pipeline, with each texture's keyed mutex serializing
// producer and consumer across the process boundary.
// Control traffic runs over a local message-framed pipe;
// the keyed mutexes are the data-plane handshake.
//
// [Server] is the render-server side; [Client] is the library a
// rendering application links against.
package hmdlink
