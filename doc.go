// Package tilemosaic generates mosaic images from a library of small images
// (tiles). Each tile is indexed by its average color, then tiles are
// stochastically placed onto an output canvas: for a randomly sampled pixel
// of the query image the tile with the closest average color is resized and
// blended onto the canvas at the corresponding position.
//
// The more iterations are run the more of the canvas is covered, there is
// no guarantee that every area of the canvas is touched.
//
// It ships with an executable program to generate mosaics (either directly
// from command line flags or interactively) and an HTTP backend.
package tilemosaic
