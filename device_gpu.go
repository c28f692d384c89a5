//go:build !nogpu

package forcelayout

import "github.com/gogpu/forcelayout/compute/wgpu"

// The wgpu package registers the GPU device as a side effect of this import.
func init() {
	addLoggerSink(wgpu.SetLogger)
}
