package app

import (
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/modules/envvars"
	"github.com/vk/flowgridgo/modules/httpcall"
	"github.com/vk/flowgridgo/modules/print"
	"github.com/vk/flowgridgo/modules/s3"
	"github.com/vk/flowgridgo/modules/shell"
)

// coreModules is the set of built-in units compiled into every binary.
var coreModules = []registry.Module{
	&print.Module{},
	&envvars.Module{},
	&httpcall.Module{},
	&s3.Module{},
	&shell.Module{},
}
