// Package document provides a concrete layer tree for the scheduler.
//
// A Document owns a root group, the tile stores of every layer it creates
// and a scheduler that keeps group projections up to date. Paint layers hold
// RGBA8 premultiplied pixels; group layers composite their children bottom
// to top.
//
// Structural changes (AddNode, RemoveNode) take the scheduler's barrier lock
// so that no batch observes a half-edited tree. Pixel edits through a layer
// schedule the affected area automatically; edits made directly on a
// PaintDevice must be followed by SetDirty.
//
//	doc := document.New(640, 441)
//	defer doc.Close()
//
//	bg := doc.NewPaintLayer("background")
//	_ = doc.AddNode(doc.Root(), bg, 0)
//	_ = bg.Fill(doc.Bounds(), []byte{0, 0, 255, 255})
//	_ = doc.WaitForDone(ctx)
package document
