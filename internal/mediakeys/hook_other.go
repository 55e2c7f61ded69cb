//go:build !windows

package mediakeys

type sysHook struct{}

func (h *Hook) Start() error { return ErrUnsupported }

func (h *Hook) Close() error { return nil }
