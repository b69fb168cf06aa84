// Package bytecode provides immutable descriptors of compiled code bodies.
//
// A Code carries everything a frame needs to size and describe itself: the
// instruction stream, the names of its fast-local, cell and free variable
// slots, the static bounds on value-stack and block-stack depth, and the
// offset to line table used to resolve source positions. A Code is created
// once and may be shared safely by any number of frames and goroutines.
package bytecode
