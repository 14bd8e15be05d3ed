// Package pik implements a lossy still-image codec built around an XYB
// opsin color transform, an 8x8 DCT, per-tile cross-channel correlation
// removal, a perceptually-driven quantization control loop, and ANS-coded
// entropy output.
//
// Encode and Decode are the package's two entry points; supporting
// algorithms live in internal packages this file and encode.go/decode.go
// wire together.
package pik
