// Package tilepipe is a tiled raster pipeline: compressed tile storage with
// swap and a dirty-region scheduler that keeps layer projections current.
//
// # Overview
//
// Raster data lives in sparse grids of 64x64 tiles. Tiles that nobody has
// written read as a default pixel and cost no memory. Under a memory budget,
// least recently used tiles are compressed with LZF (after planar
// linearization of their channels) and handed to a swapper, in memory or in
// a file; they are restored transparently on the next access.
//
// Edits to layers register dirty rectangles with a scheduler. Requests are
// coalesced per layer and executed in batches by a pool of tile workers;
// each composite layer's projection is rebuilt from its children, deepest
// layers first, one tile at a time.
//
// # Quick Start
//
//	import "github.com/gogpu/tilepipe/document"
//
//	doc := document.New(640, 441)
//	defer doc.Close()
//
//	bg := doc.NewPaintLayer("background")
//	_ = doc.AddNode(doc.Root(), bg, 0)
//	_ = bg.Fill(doc.Bounds(), []byte{0, 0, 255, 255})
//
//	_ = doc.WaitForDone(ctx)
//	img, _ := doc.ExportImage(doc.Bounds())
//
// # Architecture
//
// The library is organized into:
//   - codec: LZF compression, channel linearization, tile records
//   - tilestore: sparse tile grid, residency, swap
//   - scheduler: update requests, coalescing, batches, barrier lock
//   - document: concrete layer tree over the scheduler
//   - Internal: parallel (worker pool, tile masks), blend (compositing)
//
// # Coordinate System
//
// Integer pixel coordinates with the origin at the top-left; X increases
// right and Y increases down. Coordinates may be negative. Tile (c, r)
// covers pixels [64c, 64c+64) x [64r, 64r+64).
//
// # Pixels
//
// Projections are RGBA8 with premultiplied alpha, matching image.RGBA.
// Stores used only for storage may have any pixel size.
package tilepipe

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
