//go:build !windows

package ffi

import (
	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

const dlopenFlags = purego.RTLD_NOW | purego.RTLD_GLOBAL

func dlopenLibrary(path string) (uintptr, error) {
	h, err := purego.Dlopen(path, dlopenFlags)
	return h, errors.Wrap(err, "dlopen")
}

func dlsymLibrary(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func dlcloseLibrary(handle uintptr) error {
	return errors.Wrap(purego.Dlclose(handle), "dlclose")
}
