package leader

import "github.com/wfce/gmgn-filter/internal/model"

// Buffer double-buffers the index for one column. Scans write the build
// slot; readers only ever see the render slot, which changes in a single
// assignment when a scan completes.
type Buffer struct {
	build  *Index
	render *Index
}

// Build replaces the build slot with a fresh index over items.
func (b *Buffer) Build(items []model.Item, opts Options) *Index {
	b.build = Build(items, opts)
	return b.build
}

// Building returns the index of the scan in progress, or nil.
func (b *Buffer) Building() *Index {
	return b.build
}

// Publish promotes the build slot to the render slot.
func (b *Buffer) Publish() *Index {
	if b.build != nil {
		b.render = b.build
		b.build = nil
	}
	return b.render
}

// Render returns the last published index. Nil until the first Publish;
// all Index methods accept a nil receiver.
func (b *Buffer) Render() *Index {
	return b.render
}

// Reset drops both slots.
func (b *Buffer) Reset() {
	b.build = nil
	b.render = nil
}
