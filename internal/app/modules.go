package app

import (
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/modules/amds"
	"github.com/vk/icupipe/modules/eicu"
	"github.com/vk/icupipe/modules/mimiciv"
)

// coreModules is the definitive list of all source modules that are compiled
// into the icupipe binary.
var coreModules = []registry.Module{
	&amds.Module{},
	&eicu.Module{},
	&mimiciv.Module{},
}
