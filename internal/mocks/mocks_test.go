package mocks

import (
	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/config"
)

// Compile-time checks that every mock satisfies the interface it stands in for.
var (
	_ config.Interface                 = (*MockConfig)(nil)
	_ schemas.TreeSource               = (*MockTreeSource)(nil)
	_ schemas.ProgressStore            = (*MockProgressStore)(nil)
	_ schemas.ProgressCache            = (*MockProgressCache)(nil)
	_ schemas.ItemSource               = (*MockItemSource)(nil)
	_ schemas.PlayerProgressRepository = (*MockRepository)(nil)
	_ schemas.RenderAdapter            = (*RecordingRenderer)(nil)
)
