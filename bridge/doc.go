// Package bridge is the call-marshalling engine.
//
// A Registry owns the type table, the struct arena and the function map.
// Hosts compose struct types bottom-up with BuildStruct, bind symbols with
// BuildFunction, and open a Session per call target with SetTarget. A Session
// holds pre-sized argument and return buffers plus two cursors; Write and
// Read move one scalar leaf at a time in depth-first field order, and Call
// hands one pointer per declared argument to the native call interface.
//
// Argument slots are padded to multiples of 8 bytes so every argument starts
// on an 8-byte boundary regardless of the native layout of its neighbours.
package bridge
